package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lottery/config"
	"lottery/events"
	"lottery/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// settleBatchSize bounds how many due rounds one SettleDueRounds call handles
const settleBatchSize = 100

type lotteryService struct {
	uowFactory UnitOfWorkFactory
	selector   models.WinnerSelector
	clock      models.Clock
	config     *config.Config
}

// NewLotteryService creates a new lottery service. The selector is the only
// source of winner entropy; the clock stamps when rounds open.
func NewLotteryService(uowFactory UnitOfWorkFactory, selector models.WinnerSelector, clock models.Clock, cfg *config.Config) LotteryService {
	if clock == nil {
		clock = models.SystemClock{}
	}
	if selector == nil {
		selector = models.NewClockSelector(clock)
	}
	return &lotteryService{
		uowFactory: uowFactory,
		selector:   selector,
		clock:      clock,
		config:     cfg,
	}
}

func (s *lotteryService) Initialize(ctx context.Context, caller string, req InitializeRequest) (*models.RoundInfo, error) {
	if caller == "" {
		return nil, models.ErrInvalidIdentity
	}

	layout := req.Layout
	if layout == "" {
		layout = s.config.RoundLayout
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.config.MaxPlayers
	}
	roundID := req.RoundID
	if roundID == "" {
		roundID = uuid.NewString()
	}

	round, err := models.NewLotteryRound(roundID, caller, layout, maxPlayers, s.clock.Now())
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pool, err := uow.AccountRepository().GetByID(ctx, round.PoolAccountID())
	if err != nil {
		return nil, fmt.Errorf("failed to get pool account: %w", err)
	}
	if pool == nil {
		if _, err := uow.AccountRepository().Create(ctx, round.PoolAccountID(), models.AccountKindPool); err != nil {
			return nil, fmt.Errorf("failed to create pool account: %w", err)
		}
	}

	if err := uow.RoundRepository().Create(ctx, round); err != nil {
		if errors.Is(err, models.ErrAlreadyInitialized) {
			log.WithFields(log.Fields{
				"roundID": roundID,
				"caller":  caller,
			}).Warn("Rejected initialize of existing round")
			return nil, err
		}
		return nil, fmt.Errorf("failed to create round: %w", err)
	}

	uow.EventBus().Publish(events.RoundInitializedEvent{
		RoundID:    round.ID,
		Authority:  caller,
		Layout:     round.Layout,
		MaxPlayers: round.MaxPlayers,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"roundID":    round.ID,
		"authority":  caller,
		"layout":     round.Layout,
		"maxPlayers": round.MaxPlayers,
	}).Info("Lottery initialized")

	return round.Info(), nil
}

func (s *lotteryService) Enter(ctx context.Context, caller, roundID string, amount uint64) (*EntryResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round, err := s.lockRound(ctx, uow, roundID)
	if err != nil {
		return nil, err
	}

	transition, err := round.Enter(caller, amount)
	if err != nil {
		log.WithFields(log.Fields{
			"roundID": roundID,
			"player":  caller,
			"amount":  amount,
		}).WithError(err).Warn("Rejected lottery entry")
		return nil, err
	}

	if err := applyTransfer(ctx, uow, transition.Transfer, models.TransactionTypeLotteryEntry, round.ID); err != nil {
		return nil, fmt.Errorf("failed to move entry into pool: %w", err)
	}

	next := transition.Next()
	if err := uow.RoundRepository().Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save round: %w", err)
	}

	uow.EventBus().Publish(events.PlayerEnteredEvent{
		RoundID:          next.ID,
		RoundNumber:      next.RoundNumber,
		Player:           caller,
		Amount:           amount,
		TotalPool:        next.TotalPool,
		ParticipantCount: next.ParticipantCount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"roundID":          next.ID,
		"player":           caller,
		"amount":           amount,
		"totalPool":        next.TotalPool,
		"participantCount": next.ParticipantCount,
	}).Info("Player entered lottery")

	return &EntryResult{
		Player: caller,
		Amount: amount,
		Round:  next.Info(),
	}, nil
}

func (s *lotteryService) PickWinner(ctx context.Context, caller, roundID, payee string) (*PayoutResult, error) {
	if caller == "" || payee == "" {
		return nil, models.ErrInvalidIdentity
	}

	return s.settle(ctx, roundID, models.SettleOptions{
		Payee:           payee,
		AllowUnverified: s.config.AllowUnverifiedPayout,
	}, log.Fields{"caller": caller, "payee": payee})
}

func (s *lotteryService) SettleRound(ctx context.Context, roundID string) (*PayoutResult, error) {
	return s.settle(ctx, roundID, models.SettleOptions{}, log.Fields{"caller": "settlement"})
}

func (s *lotteryService) settle(ctx context.Context, roundID string, opts models.SettleOptions, fields log.Fields) (*PayoutResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round, err := s.lockRound(ctx, uow, roundID)
	if err != nil {
		return nil, err
	}

	// The selection clock is read here, with the round locked
	opts.At = s.clock.Now()
	transition, err := round.Settle(s.selector, opts)
	if err != nil {
		log.WithFields(fields).WithFields(log.Fields{
			"roundID":          roundID,
			"participantCount": round.ParticipantCount,
		}).WithError(err).Warn("Rejected winner pick")
		return nil, err
	}

	if err := applyTransfer(ctx, uow, transition.Transfer, models.TransactionTypeLotteryPayout, round.ID); err != nil {
		return nil, fmt.Errorf("failed to pay out pool: %w", err)
	}

	next := transition.Next()
	if err := uow.RoundRepository().Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save round: %w", err)
	}

	uow.EventBus().Publish(events.WinnerPickedEvent{
		RoundID:          round.ID,
		RoundNumber:      round.RoundNumber,
		Winner:           transition.Winner,
		WinnerIndex:      transition.WinnerIndex,
		Payout:           transition.Transfer.Amount,
		ParticipantCount: round.ParticipantCount,
		Verified:         transition.Verified,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	entry := log.WithFields(fields).WithFields(log.Fields{
		"roundID":     round.ID,
		"roundNumber": round.RoundNumber,
		"winner":      transition.Winner,
		"winnerIndex": transition.WinnerIndex,
		"payout":      transition.Transfer.Amount,
	})
	if transition.Verified {
		entry.Info("Lottery winner paid")
	} else {
		entry.Warn("Lottery winner paid without verification")
	}

	return &PayoutResult{
		RoundID:          round.ID,
		SettledRound:     round.RoundNumber,
		Winner:           transition.Winner,
		WinnerIndex:      transition.WinnerIndex,
		Payout:           transition.Transfer.Amount,
		ParticipantCount: round.ParticipantCount,
		Verified:         transition.Verified,
		Round:            next.Info(),
	}, nil
}

func (s *lotteryService) GetInfo(ctx context.Context, roundID string) (*models.RoundInfo, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round, err := uow.RoundRepository().GetByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoundNotFound, roundID)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return round.Info(), nil
}

func (s *lotteryService) SettleDueRounds(ctx context.Context, age time.Duration) ([]*PayoutResult, error) {
	cutoff := s.clock.Now().Add(-age)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	ids, err := uow.RoundRepository().ListSettleable(ctx, cutoff, settleBatchSize)
	uow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to list settleable rounds: %w", err)
	}

	var results []*PayoutResult
	for _, id := range ids {
		result, err := s.SettleRound(ctx, id)
		if err != nil {
			// Another caller may have settled the round since it was listed
			if errors.Is(err, models.ErrNoPlayers) {
				continue
			}
			log.WithField("roundID", id).WithError(err).Error("Failed to settle round")
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// lockRound loads the round for update, mapping a missing record to ErrRoundNotFound
func (s *lotteryService) lockRound(ctx context.Context, uow UnitOfWork, roundID string) (*models.LotteryRound, error) {
	round, err := uow.RoundRepository().GetForUpdate(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoundNotFound, roundID)
	}
	return round, nil
}
