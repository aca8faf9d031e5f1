package models

import (
	"time"
)

// TransactionType represents the type of balance change
type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeLotteryEntry  TransactionType = "lottery_entry"
	TransactionTypeLotteryPayout TransactionType = "lottery_payout"
)

// Direction says whether a balance went up or down
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// BalanceHistory represents a historical balance change. Amounts are
// unsigned so the sign lives in Direction.
type BalanceHistory struct {
	ID                  int64           `db:"id"`
	AccountID           string          `db:"account_id"`
	BalanceBefore       uint64          `db:"balance_before"`
	BalanceAfter        uint64          `db:"balance_after"`
	ChangeAmount        uint64          `db:"change_amount"`
	Direction           Direction       `db:"direction"`
	TransactionType     TransactionType `db:"transaction_type"`
	TransactionMetadata map[string]any  `db:"transaction_metadata"`
	RoundID             *string         `db:"round_id"`
	CreatedAt           time.Time       `db:"created_at"`
}

// IsConsistent reports whether before, after and change agree with the direction
func (h *BalanceHistory) IsConsistent() bool {
	switch h.Direction {
	case DirectionCredit:
		return h.BalanceAfter >= h.BalanceBefore && h.BalanceAfter-h.BalanceBefore == h.ChangeAmount
	case DirectionDebit:
		return h.BalanceBefore >= h.BalanceAfter && h.BalanceBefore-h.BalanceAfter == h.ChangeAmount
	default:
		return false
	}
}
