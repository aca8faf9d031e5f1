package service

import (
	"context"
	"fmt"

	"lottery/models"

	log "github.com/sirupsen/logrus"
)

// defaultHistoryLimit applies when GetHistory is called without a limit
const defaultHistoryLimit = 50

type accountService struct {
	uowFactory UnitOfWorkFactory
}

// NewAccountService creates a new account service
func NewAccountService(uowFactory UnitOfWorkFactory) AccountService {
	return &accountService{
		uowFactory: uowFactory,
	}
}

func (s *accountService) Deposit(ctx context.Context, accountID string, amount uint64) (*models.Account, error) {
	// Pool balances only move through entries and payouts
	if err := models.ValidatePlayerID(accountID); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, models.ErrInvalidAmount
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	accounts, err := uow.AccountRepository().GetForUpdate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	account, ok := accounts[accountID]
	if !ok {
		account, err = uow.AccountRepository().Create(ctx, accountID, models.AccountKindPlayer)
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
	}

	newBalance, err := account.Credit(amount)
	if err != nil {
		return nil, err
	}
	if err := uow.AccountRepository().UpdateBalance(ctx, accountID, newBalance); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	history := &models.BalanceHistory{
		AccountID:           accountID,
		BalanceBefore:       account.Balance,
		BalanceAfter:        newBalance,
		ChangeAmount:        amount,
		Direction:           models.DirectionCredit,
		TransactionType:     models.TransactionTypeDeposit,
		TransactionMetadata: map[string]any{},
	}
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"accountID":  accountID,
		"amount":     amount,
		"newBalance": newBalance,
	}).Info("Deposit recorded")

	account.Balance = newBalance
	return account, nil
}

func (s *accountService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, accountID)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return account, nil
}

func (s *accountService) GetHistory(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	history, err := uow.BalanceHistoryRepository().GetByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance history: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return history, nil
}
