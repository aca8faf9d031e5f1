package application

import (
	"context"
	"time"

	"lottery/service"

	log "github.com/sirupsen/logrus"
)

// SettlementWorker periodically pays out roster rounds that have been open
// for at least the configured interval
type SettlementWorker struct {
	lottery  service.LotteryService
	interval time.Duration
	poll     time.Duration
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(lottery service.LotteryService, interval time.Duration) *SettlementWorker {
	return &SettlementWorker{
		lottery:  lottery,
		interval: interval,
		poll:     pollInterval(interval),
	}
}

// Start begins the settlement loop and returns a function that stops it.
// The returned channel is closed once the loop has exited.
func (w *SettlementWorker) Start(ctx context.Context) (stop func(), done <-chan struct{}) {
	stopChan := make(chan struct{})
	doneChan := make(chan struct{})

	go func() {
		defer close(doneChan)
		log.WithField("interval", w.interval).Info("Settlement worker started")

		for {
			select {
			case <-ctx.Done():
				log.Info("Settlement worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Settlement worker shutting down (stop requested)...")
				return
			case <-time.After(w.poll):
				w.settleDue(ctx)
			}
		}
	}()

	return func() { close(stopChan) }, doneChan
}

// pollInterval checks a few times per interval so a round is never settled
// much later than it becomes due
func pollInterval(interval time.Duration) time.Duration {
	poll := interval / 4
	if poll < time.Second {
		poll = time.Second
	}
	return poll
}

func (w *SettlementWorker) settleDue(ctx context.Context) {
	results, err := w.lottery.SettleDueRounds(ctx, w.interval)
	if err != nil {
		log.WithError(err).Error("Error settling due rounds")
		return
	}
	if len(results) == 0 {
		log.Debug("No lottery rounds due for settlement")
		return
	}

	for _, r := range results {
		log.WithFields(log.Fields{
			"roundID":      r.RoundID,
			"settledRound": r.SettledRound,
			"winner":       r.Winner,
			"payout":       r.Payout,
		}).Info("Settled lottery round")
	}
	log.WithField("settled", len(results)).Info("Completed settlement pass")
}
