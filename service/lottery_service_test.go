package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lottery/config"
	"lottery/events"
	"lottery/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type lotteryMocks struct {
	factory     *MockUnitOfWorkFactory
	uow         *MockUnitOfWork
	accounts    *MockAccountRepository
	rounds      *MockRoundRepository
	history     *MockBalanceHistoryRepository
	publisher   *MockEventPublisher
	service     LotteryService
	openedAt    time.Time
	selectorNow time.Time
}

// newLotteryMocks wires a service whose clock reads an odd unix second, so a
// two-player round always selects index 1
func newLotteryMocks(t *testing.T, cfg *config.Config) *lotteryMocks {
	t.Helper()
	m := &lotteryMocks{
		factory:     new(MockUnitOfWorkFactory),
		uow:         new(MockUnitOfWork),
		accounts:    new(MockAccountRepository),
		rounds:      new(MockRoundRepository),
		history:     new(MockBalanceHistoryRepository),
		publisher:   new(MockEventPublisher),
		openedAt:    time.Unix(1_700_000_000, 0),
		selectorNow: time.Unix(1_700_000_001, 0),
	}
	m.uow.SetRepositories(m.accounts, m.rounds, m.history, m.publisher)

	if cfg == nil {
		cfg = config.NewTestConfig()
	}
	clock := models.FixedClock{At: m.selectorNow}
	m.service = NewLotteryService(m.factory, models.NewClockSelector(clock), clock, cfg)

	m.factory.On("Create").Return(m.uow)
	m.uow.On("Begin", mock.Anything).Return(nil)
	m.uow.On("Rollback").Return(nil)
	return m
}

func (m *lotteryMocks) assertAll(t *testing.T) {
	m.factory.AssertExpectations(t)
	m.uow.AssertExpectations(t)
	m.accounts.AssertExpectations(t)
	m.rounds.AssertExpectations(t)
	m.history.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
}

func rosterRound(players []string, pool uint64) *models.LotteryRound {
	return &models.LotteryRound{
		ID:               "r1",
		Layout:           models.RoundLayoutRoster,
		MaxPlayers:       10,
		TotalPool:        pool,
		Participants:     append([]string{}, players...),
		ParticipantCount: len(players),
		RoundNumber:      3,
		Authority:        "admin",
		OpenedAt:         time.Unix(1_699_000_000, 0),
	}
}

func TestLotteryService_Enter_Success(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	m.rounds.On("GetForUpdate", ctx, "r1").Return(rosterRound([]string{"bob"}, 50), nil)
	m.accounts.On("GetForUpdate", ctx, []string{"alice", "pool:r1"}).Return(map[string]*models.Account{
		"alice":   {ID: "alice", Kind: models.AccountKindPlayer, Balance: 500},
		"pool:r1": {ID: "pool:r1", Kind: models.AccountKindPool, Balance: 50},
	}, nil)
	m.accounts.On("UpdateBalance", ctx, "alice", uint64(400)).Return(nil)
	m.accounts.On("UpdateBalance", ctx, "pool:r1", uint64(150)).Return(nil)
	m.history.On("Record", ctx, mock.MatchedBy(func(h *models.BalanceHistory) bool {
		return h.AccountID == "alice" && h.Direction == models.DirectionDebit &&
			h.BalanceBefore == 500 && h.BalanceAfter == 400 &&
			h.TransactionType == models.TransactionTypeLotteryEntry && *h.RoundID == "r1"
	})).Return(nil)
	m.history.On("Record", ctx, mock.MatchedBy(func(h *models.BalanceHistory) bool {
		return h.AccountID == "pool:r1" && h.Direction == models.DirectionCredit &&
			h.BalanceBefore == 50 && h.BalanceAfter == 150
	})).Return(nil)
	m.rounds.On("Save", ctx, mock.MatchedBy(func(r *models.LotteryRound) bool {
		return r.TotalPool == 150 && r.ParticipantCount == 2 &&
			assert.ObjectsAreEqual([]string{"bob", "alice"}, r.Participants)
	})).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("events.BalanceChangeEvent")).Return().Twice()
	m.publisher.On("Publish", events.PlayerEnteredEvent{
		RoundID:          "r1",
		RoundNumber:      3,
		Player:           "alice",
		Amount:           100,
		TotalPool:        150,
		ParticipantCount: 2,
	}).Return().Once()
	m.uow.On("Commit").Return(nil)

	result, err := m.service.Enter(ctx, "alice", "r1", 100)

	require.NoError(t, err)
	assert.Equal(t, "alice", result.Player)
	assert.Equal(t, uint64(150), result.Round.TotalPool)
	assert.Equal(t, 2, result.Round.ParticipantCount)
	m.assertAll(t)
}

func TestLotteryService_Enter_RejectedBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()

	full := rosterRound([]string{"a", "b"}, 2)
	full.MaxPlayers = 2

	tests := []struct {
		name   string
		round  *models.LotteryRound
		amount uint64
		want   error
	}{
		{"zero amount", rosterRound(nil, 0), 0, models.ErrInvalidAmount},
		{"at capacity", full, 10, models.ErrTooManyPlayers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newLotteryMocks(t, nil)
			m.rounds.On("GetForUpdate", ctx, "r1").Return(tt.round, nil)

			result, err := m.service.Enter(ctx, "alice", "r1", tt.amount)

			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, result)
			m.uow.AssertNotCalled(t, "Commit")
			m.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything)
			m.rounds.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
			m.uow.AssertCalled(t, "Rollback")
		})
	}
}

func TestLotteryService_Enter_RoundNotFound(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)
	m.rounds.On("GetForUpdate", ctx, "missing").Return(nil, nil)

	_, err := m.service.Enter(ctx, "alice", "missing", 10)

	assert.ErrorIs(t, err, models.ErrRoundNotFound)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestLotteryService_Enter_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	m.rounds.On("GetForUpdate", ctx, "r1").Return(rosterRound(nil, 0), nil)
	m.accounts.On("GetForUpdate", ctx, []string{"alice", "pool:r1"}).Return(map[string]*models.Account{
		"alice":   {ID: "alice", Balance: 5},
		"pool:r1": {ID: "pool:r1", Kind: models.AccountKindPool},
	}, nil)

	_, err := m.service.Enter(ctx, "alice", "r1", 10)

	assert.ErrorIs(t, err, models.ErrInsufficientBalance)
	m.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything)
	m.rounds.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestLotteryService_Enter_UnknownPlayer(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	m.rounds.On("GetForUpdate", ctx, "r1").Return(rosterRound(nil, 0), nil)
	m.accounts.On("GetForUpdate", ctx, []string{"ghost", "pool:r1"}).Return(map[string]*models.Account{
		"pool:r1": {ID: "pool:r1", Kind: models.AccountKindPool},
	}, nil)

	_, err := m.service.Enter(ctx, "ghost", "r1", 10)

	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestLotteryService_PickWinner_Success(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	// Index 1 is selected: bob
	m.rounds.On("GetForUpdate", ctx, "r1").Return(rosterRound([]string{"alice", "bob"}, 150), nil)
	m.accounts.On("GetForUpdate", ctx, []string{"pool:r1", "bob"}).Return(map[string]*models.Account{
		"pool:r1": {ID: "pool:r1", Kind: models.AccountKindPool, Balance: 150},
		"bob":     {ID: "bob", Balance: 7},
	}, nil)
	m.accounts.On("UpdateBalance", ctx, "pool:r1", uint64(0)).Return(nil)
	m.accounts.On("UpdateBalance", ctx, "bob", uint64(157)).Return(nil)
	m.history.On("Record", ctx, mock.AnythingOfType("*models.BalanceHistory")).Return(nil).Twice()
	m.rounds.On("Save", ctx, mock.MatchedBy(func(r *models.LotteryRound) bool {
		return r.TotalPool == 0 && r.ParticipantCount == 0 && len(r.Participants) == 0 &&
			r.RoundNumber == 4 && r.OpenedAt.Equal(m.selectorNow)
	})).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("events.BalanceChangeEvent")).Return().Twice()
	m.publisher.On("Publish", events.WinnerPickedEvent{
		RoundID:          "r1",
		RoundNumber:      3,
		Winner:           "bob",
		WinnerIndex:      1,
		Payout:           150,
		ParticipantCount: 2,
		Verified:         true,
	}).Return().Once()
	m.uow.On("Commit").Return(nil)

	result, err := m.service.PickWinner(ctx, "alice", "r1", "bob")

	require.NoError(t, err)
	assert.Equal(t, "bob", result.Winner)
	assert.Equal(t, uint64(150), result.Payout)
	assert.Equal(t, int64(3), result.SettledRound)
	assert.True(t, result.Verified)
	assert.Zero(t, result.Round.TotalPool)
	assert.Zero(t, result.Round.ParticipantCount)
	m.assertAll(t)
}

func TestLotteryService_PickWinner_WrongPayee(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)
	m.rounds.On("GetForUpdate", ctx, "r1").Return(rosterRound([]string{"alice", "bob"}, 150), nil)

	_, err := m.service.PickWinner(ctx, "alice", "r1", "alice")

	assert.ErrorIs(t, err, models.ErrUnauthorizedPayee)
	m.accounts.AssertNotCalled(t, "GetForUpdate", mock.Anything, mock.Anything)
	m.rounds.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestLotteryService_PickWinner_NoPlayers(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)
	m.rounds.On("GetForUpdate", ctx, "r1").Return(rosterRound(nil, 0), nil)

	_, err := m.service.PickWinner(ctx, "alice", "r1", "alice")

	assert.ErrorIs(t, err, models.ErrNoPlayers)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestLotteryService_PickWinner_RequiresPayee(t *testing.T) {
	m := newLotteryMocks(t, nil)

	_, err := m.service.PickWinner(context.Background(), "alice", "r1", "")

	assert.ErrorIs(t, err, models.ErrInvalidIdentity)
	m.factory.AssertNotCalled(t, "Create")
}

func TestLotteryService_PickWinner_CounterLayoutPolicy(t *testing.T) {
	ctx := context.Background()
	counter := func() *models.LotteryRound {
		r := rosterRound(nil, 150)
		r.Layout = models.RoundLayoutCounter
		r.ParticipantCount = 2
		return r
	}

	t.Run("refused by default", func(t *testing.T) {
		m := newLotteryMocks(t, nil)
		m.rounds.On("GetForUpdate", ctx, "r1").Return(counter(), nil)

		_, err := m.service.PickWinner(ctx, "alice", "r1", "alice")
		assert.ErrorIs(t, err, models.ErrUnverifiablePayout)
		m.uow.AssertNotCalled(t, "Commit")
	})

	t.Run("paid unverified when allowed", func(t *testing.T) {
		cfg := config.NewTestConfig()
		cfg.AllowUnverifiedPayout = true
		m := newLotteryMocks(t, cfg)

		m.rounds.On("GetForUpdate", ctx, "r1").Return(counter(), nil)
		m.accounts.On("GetForUpdate", ctx, []string{"pool:r1", "alice"}).Return(map[string]*models.Account{
			"pool:r1": {ID: "pool:r1", Kind: models.AccountKindPool, Balance: 150},
		}, nil)
		m.accounts.On("Create", ctx, "alice", models.AccountKindPlayer).Return(&models.Account{ID: "alice"}, nil)
		m.accounts.On("UpdateBalance", ctx, "pool:r1", uint64(0)).Return(nil)
		m.accounts.On("UpdateBalance", ctx, "alice", uint64(150)).Return(nil)
		m.history.On("Record", ctx, mock.Anything).Return(nil)
		m.rounds.On("Save", ctx, mock.Anything).Return(nil)
		m.publisher.On("Publish", mock.Anything).Return()
		m.uow.On("Commit").Return(nil)

		result, err := m.service.PickWinner(ctx, "alice", "r1", "alice")
		require.NoError(t, err)
		assert.False(t, result.Verified)
		assert.Equal(t, "alice", result.Winner)
		m.assertAll(t)
	})
}

func TestLotteryService_Initialize(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	m.accounts.On("GetByID", ctx, "pool:r1").Return(nil, nil)
	m.accounts.On("Create", ctx, "pool:r1", models.AccountKindPool).Return(&models.Account{ID: "pool:r1", Kind: models.AccountKindPool}, nil)
	m.rounds.On("Create", ctx, mock.MatchedBy(func(r *models.LotteryRound) bool {
		return r.ID == "r1" && r.Authority == "admin" && r.Layout == models.RoundLayoutCounter &&
			r.MaxPlayers == models.DefaultMaxPlayers && r.TotalPool == 0 && r.ParticipantCount == 0
	})).Return(nil)
	m.publisher.On("Publish", events.RoundInitializedEvent{
		RoundID:    "r1",
		Authority:  "admin",
		Layout:     models.RoundLayoutCounter,
		MaxPlayers: models.DefaultMaxPlayers,
	}).Return()
	m.uow.On("Commit").Return(nil)

	info, err := m.service.Initialize(ctx, "admin", InitializeRequest{RoundID: "r1", Layout: models.RoundLayoutCounter})

	require.NoError(t, err)
	assert.Equal(t, &models.RoundInfo{
		RoundID:     "r1",
		Layout:      models.RoundLayoutCounter,
		MaxPlayers:  models.DefaultMaxPlayers,
		RoundNumber: 1,
	}, info)
	m.assertAll(t)
}

func TestLotteryService_Initialize_GeneratesRoundID(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	m.accounts.On("GetByID", ctx, mock.AnythingOfType("string")).Return(&models.Account{Kind: models.AccountKindPool}, nil)
	m.rounds.On("Create", ctx, mock.Anything).Return(nil)
	m.publisher.On("Publish", mock.Anything).Return()
	m.uow.On("Commit").Return(nil)

	info, err := m.service.Initialize(ctx, "admin", InitializeRequest{})

	require.NoError(t, err)
	assert.Len(t, info.RoundID, 36)
	assert.Equal(t, models.RoundLayoutRoster, info.Layout)
	m.accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestLotteryService_Initialize_AlreadyInitialized(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	m.accounts.On("GetByID", ctx, "pool:r1").Return(&models.Account{ID: "pool:r1"}, nil)
	m.rounds.On("Create", ctx, mock.Anything).Return(models.ErrAlreadyInitialized)

	_, err := m.service.Initialize(ctx, "admin", InitializeRequest{RoundID: "r1"})

	assert.ErrorIs(t, err, models.ErrAlreadyInitialized)
	m.uow.AssertNotCalled(t, "Commit")
	m.publisher.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestLotteryService_Initialize_InvalidSettings(t *testing.T) {
	m := newLotteryMocks(t, nil)

	_, err := m.service.Initialize(context.Background(), "admin", InitializeRequest{MaxPlayers: 281})
	assert.ErrorIs(t, err, models.ErrInvalidCapacity)

	_, err = m.service.Initialize(context.Background(), "", InitializeRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidIdentity)

	m.factory.AssertNotCalled(t, "Create")
}

func TestLotteryService_GetInfo(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)
	m.rounds.On("GetByID", ctx, "r1").Return(rosterRound([]string{"a", "b"}, 150), nil)
	m.rounds.On("GetByID", ctx, "nope").Return(nil, nil)
	m.uow.On("Commit").Return(nil)

	info, err := m.service.GetInfo(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, uint64(150), info.TotalPool)
	assert.Equal(t, 2, info.ParticipantCount)

	_, err = m.service.GetInfo(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrRoundNotFound)
}

func TestLotteryService_GetInfo_RepositoryError(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)
	m.rounds.On("GetByID", ctx, "r1").Return(nil, errors.New("connection reset"))

	_, err := m.service.GetInfo(ctx, "r1")
	assert.ErrorContains(t, err, "connection reset")
}

func TestLotteryService_SettleDueRounds_SkipsAlreadySettled(t *testing.T) {
	ctx := context.Background()
	m := newLotteryMocks(t, nil)

	m.rounds.On("ListSettleable", ctx, m.selectorNow.Add(-time.Minute), settleBatchSize).Return([]string{"r1", "r2"}, nil)
	m.rounds.On("GetForUpdate", ctx, "r1").Return(rosterRound(nil, 0), nil)
	m.rounds.On("GetForUpdate", ctx, "r2").Return(nil, errors.New("deadlock detected"))

	results, err := m.service.SettleDueRounds(ctx, time.Minute)

	require.NoError(t, err)
	assert.Empty(t, results)
	m.uow.AssertNotCalled(t, "Commit")
}
