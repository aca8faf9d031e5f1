package service

import (
	"context"
	"fmt"

	"lottery/events"
	"lottery/models"
)

// RecordBalanceChange records a balance history entry and emits the matching
// event. Every balance change in the system goes through here.
func RecordBalanceChange(ctx context.Context, uow UnitOfWork, history *models.BalanceHistory) error {
	if !history.IsConsistent() {
		return fmt.Errorf("inconsistent balance change for account %s: %d -> %d (%s %d)",
			history.AccountID, history.BalanceBefore, history.BalanceAfter, history.Direction, history.ChangeAmount)
	}

	if err := uow.BalanceHistoryRepository().Record(ctx, history); err != nil {
		return fmt.Errorf("failed to record balance history: %w", err)
	}

	event := events.BalanceChangeEvent{
		AccountID:       history.AccountID,
		OldBalance:      history.BalanceBefore,
		NewBalance:      history.BalanceAfter,
		ChangeAmount:    history.ChangeAmount,
		Direction:       history.Direction,
		TransactionType: history.TransactionType,
	}
	if history.RoundID != nil {
		event.RoundID = *history.RoundID
	}
	uow.EventBus().Publish(event)

	return nil
}
