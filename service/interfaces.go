package service

import (
	"context"
	"time"

	"lottery/events"
	"lottery/models"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByID retrieves an account, returning nil if it does not exist
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// GetForUpdate locks and returns the given accounts keyed by id. Rows are
	// locked in id order; missing accounts are absent from the map.
	GetForUpdate(ctx context.Context, ids ...string) (map[string]*models.Account, error)

	// Create creates an account with a zero balance
	Create(ctx context.Context, id string, kind models.AccountKind) (*models.Account, error)

	// UpdateBalance sets an account's balance
	UpdateBalance(ctx context.Context, id string, balance uint64) error
}

// RoundRepository defines the interface for lottery round storage
type RoundRepository interface {
	// Create stores a new round, failing with models.ErrAlreadyInitialized if
	// a round with the same id exists
	Create(ctx context.Context, round *models.LotteryRound) error

	// GetByID retrieves a round without locking it, returning nil if absent
	GetByID(ctx context.Context, id string) (*models.LotteryRound, error)

	// GetForUpdate retrieves and locks a round for the rest of the unit of
	// work, returning nil if absent
	GetForUpdate(ctx context.Context, id string) (*models.LotteryRound, error)

	// Save writes the mutable fields of a round
	Save(ctx context.Context, round *models.LotteryRound) error

	// ListSettleable returns ids of roster rounds with participants whose
	// current round opened at or before the cutoff
	ListSettleable(ctx context.Context, openedBefore time.Time, limit int) ([]string, error)
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *models.BalanceHistory) error

	// GetByAccount returns the most recent entries for an account
	GetByAccount(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork scopes repositories and events to one atomic invocation
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AccountRepository() AccountRepository
	RoundRepository() RoundRepository
	BalanceHistoryRepository() BalanceHistoryRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// InitializeRequest carries the optional round settings. Zero values fall
// back to the configured defaults.
type InitializeRequest struct {
	RoundID    string
	Layout     models.RoundLayout
	MaxPlayers int
}

// EntryResult is returned by a successful enter
type EntryResult struct {
	Player string
	Amount uint64
	Round  *models.RoundInfo
}

// PayoutResult is returned by a successful pickWinner or settlement
type PayoutResult struct {
	RoundID          string
	SettledRound     int64
	Winner           string
	WinnerIndex      int
	Payout           uint64
	ParticipantCount int
	Verified         bool
	Round            *models.RoundInfo // The reopened round
}

// LotteryService defines the lottery round operations
type LotteryService interface {
	// Initialize creates a round record with an empty pool
	Initialize(ctx context.Context, caller string, req InitializeRequest) (*models.RoundInfo, error)

	// Enter moves amount from the caller into the round's pool and records
	// one ticket for the caller
	Enter(ctx context.Context, caller, roundID string, amount uint64) (*EntryResult, error)

	// PickWinner pays the pool to the selected participant, who must be the
	// claimed payee, and reopens the round
	PickWinner(ctx context.Context, caller, roundID, payee string) (*PayoutResult, error)

	// GetInfo returns the round's pool and participant count
	GetInfo(ctx context.Context, roundID string) (*models.RoundInfo, error)

	// SettleRound pays the selected participant without a claimed payee.
	// Only roster rounds can be settled this way.
	SettleRound(ctx context.Context, roundID string) (*PayoutResult, error)

	// SettleDueRounds settles every roster round that has been open for at
	// least the given age and has participants
	SettleDueRounds(ctx context.Context, age time.Duration) ([]*PayoutResult, error)
}

// AccountService defines the balance operations outside of a round
type AccountService interface {
	// Deposit credits an account, creating it if needed
	Deposit(ctx context.Context, accountID string, amount uint64) (*models.Account, error)

	// GetAccount returns an account or models.ErrAccountNotFound
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)

	// GetHistory returns the most recent balance changes of an account
	GetHistory(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error)
}
