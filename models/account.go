package models

import (
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// AccountKind distinguishes player balances from round pools
type AccountKind string

const (
	AccountKindPlayer AccountKind = "player"
	AccountKindPool   AccountKind = "pool"
)

// Account is a balance holder addressed by an opaque identity
type Account struct {
	ID        string      `db:"id"`
	Kind      AccountKind `db:"kind"`
	Balance   uint64      `db:"balance"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

// KindForAccountID infers the account kind from its id
func KindForAccountID(id string) AccountKind {
	if strings.HasPrefix(id, "pool:") {
		return AccountKindPool
	}
	return AccountKindPlayer
}

// ValidatePlayerID rejects identities that cannot hold a player balance.
// The pool: namespace is reserved for round pools.
func ValidatePlayerID(id string) error {
	if id == "" {
		return ErrInvalidIdentity
	}
	if KindForAccountID(id) == AccountKindPool {
		return fmt.Errorf("%w: %s is a pool account", ErrInvalidIdentity, id)
	}
	return nil
}

// Credit returns the balance after adding amount
func (a *Account) Credit(amount uint64) (uint64, error) {
	after, carry := bits.Add64(a.Balance, amount, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: crediting %d to account %s", ErrOverflow, amount, a.ID)
	}
	return after, nil
}

// Debit returns the balance after removing amount
func (a *Account) Debit(amount uint64) (uint64, error) {
	if a.Balance < amount {
		return 0, fmt.Errorf("%w: account %s has %d, needs %d", ErrInsufficientBalance, a.ID, a.Balance, amount)
	}
	return a.Balance - amount, nil
}
