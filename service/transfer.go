package service

import (
	"context"
	"fmt"

	"lottery/models"
)

// applyTransfer moves value between two accounts inside the caller's unit of
// work. Both rows are locked, the payee is created if missing, and one
// history row is written per side.
func applyTransfer(ctx context.Context, uow UnitOfWork, transfer models.Transfer, txType models.TransactionType, roundID string) error {
	if transfer.From == transfer.To {
		return fmt.Errorf("cannot transfer from account %s to itself", transfer.From)
	}

	accounts, err := uow.AccountRepository().GetForUpdate(ctx, transfer.From, transfer.To)
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}

	from, ok := accounts[transfer.From]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrAccountNotFound, transfer.From)
	}

	to, ok := accounts[transfer.To]
	if !ok {
		to, err = uow.AccountRepository().Create(ctx, transfer.To, models.KindForAccountID(transfer.To))
		if err != nil {
			return fmt.Errorf("failed to create account %s: %w", transfer.To, err)
		}
	}

	newFromBalance, err := from.Debit(transfer.Amount)
	if err != nil {
		return err
	}
	newToBalance, err := to.Credit(transfer.Amount)
	if err != nil {
		return err
	}

	if err := uow.AccountRepository().UpdateBalance(ctx, from.ID, newFromBalance); err != nil {
		return fmt.Errorf("failed to debit account %s: %w", from.ID, err)
	}
	if err := uow.AccountRepository().UpdateBalance(ctx, to.ID, newToBalance); err != nil {
		return fmt.Errorf("failed to credit account %s: %w", to.ID, err)
	}

	fromHistory := &models.BalanceHistory{
		AccountID:       from.ID,
		BalanceBefore:   from.Balance,
		BalanceAfter:    newFromBalance,
		ChangeAmount:    transfer.Amount,
		Direction:       models.DirectionDebit,
		TransactionType: txType,
		TransactionMetadata: map[string]any{
			"counterparty": to.ID,
		},
		RoundID: &roundID,
	}
	if err := RecordBalanceChange(ctx, uow, fromHistory); err != nil {
		return fmt.Errorf("failed to record payer balance change: %w", err)
	}

	toHistory := &models.BalanceHistory{
		AccountID:       to.ID,
		BalanceBefore:   to.Balance,
		BalanceAfter:    newToBalance,
		ChangeAmount:    transfer.Amount,
		Direction:       models.DirectionCredit,
		TransactionType: txType,
		TransactionMetadata: map[string]any{
			"counterparty": from.ID,
		},
		RoundID: &roundID,
	}
	if err := RecordBalanceChange(ctx, uow, toHistory); err != nil {
		return fmt.Errorf("failed to record payee balance change: %w", err)
	}

	return nil
}
