package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"lottery/config"
	"lottery/models"
	"lottery/repository/memstore"
	"lottery/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock advances by step on every read
type steppingClock struct {
	mu   sync.Mutex
	at   time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.at
	c.at = c.at.Add(c.step)
	return now
}

func TestSettlementWorker_SettlesDueRounds(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	clock := &steppingClock{at: time.Unix(1_700_000_000, 0), step: time.Minute}
	lottery := service.NewLotteryService(store, models.NewClockSelector(clock), clock, config.NewTestConfig())
	accounts := service.NewAccountService(store)

	_, err := accounts.Deposit(ctx, "alice", 100)
	require.NoError(t, err)
	_, err = lottery.Initialize(ctx, "admin", service.InitializeRequest{RoundID: "r1"})
	require.NoError(t, err)
	_, err = lottery.Enter(ctx, "alice", "r1", 40)
	require.NoError(t, err)

	worker := NewSettlementWorker(lottery, time.Minute)
	worker.poll = 10 * time.Millisecond
	stop, done := worker.Start(ctx)

	assert.Eventually(t, func() bool {
		return store.Snapshot().Rounds["r1"].RoundNumber == 2
	}, 2*time.Second, 10*time.Millisecond)

	stop()
	<-done

	snap := store.Snapshot()
	assert.Zero(t, snap.Rounds["r1"].TotalPool)
	assert.Equal(t, uint64(100), snap.Accounts["alice"])
}

func TestSettlementWorker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memstore.New(nil)
	clock := models.FixedClock{At: time.Unix(1_700_000_000, 0)}
	lottery := service.NewLotteryService(store, models.NewClockSelector(clock), clock, config.NewTestConfig())

	worker := NewSettlementWorker(lottery, time.Hour)
	_, done := worker.Start(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestPollInterval(t *testing.T) {
	assert.Equal(t, time.Second, pollInterval(time.Second))
	assert.Equal(t, 15*time.Second, pollInterval(time.Minute))
}
