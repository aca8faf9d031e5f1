package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lottery/config"
	"lottery/models"
	"lottery/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *Store, lottery service.LotteryService, players int) {
	t.Helper()
	ctx := context.Background()
	accounts := service.NewAccountService(store)
	for i := 0; i < players; i++ {
		_, err := accounts.Deposit(ctx, fmt.Sprintf("p%d", i), 1000)
		require.NoError(t, err)
	}
	_, err := lottery.Initialize(ctx, "admin", service.InitializeRequest{RoundID: "r1"})
	require.NoError(t, err)
}

func enterConcurrently(lottery service.LotteryService, players int) {
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = lottery.Enter(context.Background(), fmt.Sprintf("p%d", i), "r1", 100)
		}(i)
	}
	wg.Wait()
}

func newLottery(store *Store) service.LotteryService {
	clock := models.FixedClock{At: time.Unix(1_700_000_000, 0)}
	return service.NewLotteryService(store, models.NewClockSelector(clock), clock, config.NewTestConfig())
}

func TestStore_SerializedHostPreservesInvariants(t *testing.T) {
	store := New(nil)
	lottery := newLottery(store)
	seed(t, store, lottery, 5)
	before := store.Snapshot()

	enterConcurrently(lottery, 5)

	snap := store.Snapshot()
	round := snap.Rounds["r1"]
	assert.Equal(t, uint64(500), round.TotalPool)
	assert.Equal(t, 5, round.ParticipantCount)
	assert.Len(t, round.Participants, 5)
	assert.Equal(t, uint64(500), snap.Accounts["pool:r1"])
	assert.Equal(t, before.TotalBalance(), snap.TotalBalance())
}

// The round relies on its host executing invocations one at a time. Without
// that, concurrent entries each read the same round and the last commit wins.
func TestStore_InterleavedHostLosesUpdates(t *testing.T) {
	const players = 5

	store := New(nil)
	lottery := newLottery(store)
	seed(t, store, lottery, players)
	before := store.Snapshot()

	// Switch the same committed state to the interleaved mode
	store.barrier = newBarrier(players)
	enterConcurrently(lottery, players)

	snap := store.Snapshot()
	round := snap.Rounds["r1"]

	// Every player paid, but only one entry survived in the round and pool
	for i := 0; i < players; i++ {
		assert.Equal(t, uint64(900), snap.Accounts[fmt.Sprintf("p%d", i)])
	}
	assert.Equal(t, 1, round.ParticipantCount)
	assert.Equal(t, uint64(100), round.TotalPool)
	assert.Equal(t, uint64(100), snap.Accounts["pool:r1"])
	assert.Less(t, snap.TotalBalance(), before.TotalBalance())
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := New(nil)

	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	_, err := uow.AccountRepository().Create(ctx, "alice", models.AccountKindPlayer)
	require.NoError(t, err)
	require.NoError(t, uow.AccountRepository().UpdateBalance(ctx, "alice", 10))
	require.NoError(t, uow.Rollback())

	assert.Empty(t, store.Snapshot().Accounts)

	// A second rollback and a commit without begin are harmless or rejected
	assert.NoError(t, uow.Rollback())
	assert.Error(t, uow.Commit())
}

func TestStore_RepositoriesRequireBegin(t *testing.T) {
	uow := New(nil).Create()
	assert.Panics(t, func() { uow.RoundRepository() })
}

func TestStore_RoundCreateRequiresPoolAccount(t *testing.T) {
	ctx := context.Background()
	store := New(nil)

	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	round, err := models.NewLotteryRound("r1", "admin", models.RoundLayoutRoster, 3, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, uow.RoundRepository().Create(ctx, round), models.ErrAccountNotFound)
}

func TestStore_ListSettleable(t *testing.T) {
	ctx := context.Background()
	store := New(nil)
	base := time.Unix(1_700_000_000, 0)

	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	for i, tc := range []struct {
		id      string
		layout  models.RoundLayout
		count   int
		openAge time.Duration
	}{
		{"old", models.RoundLayoutRoster, 1, 2 * time.Hour},
		{"older", models.RoundLayoutRoster, 2, 3 * time.Hour},
		{"fresh", models.RoundLayoutRoster, 1, time.Second},
		{"empty", models.RoundLayoutRoster, 0, 3 * time.Hour},
		{"counter", models.RoundLayoutCounter, 2, 3 * time.Hour},
	} {
		_, err := uow.AccountRepository().Create(ctx, models.PoolAccountID(tc.id), models.AccountKindPool)
		require.NoError(t, err)
		round, err := models.NewLotteryRound(tc.id, "admin", tc.layout, 5, base.Add(-tc.openAge))
		require.NoError(t, err, i)
		round.ParticipantCount = tc.count
		if tc.layout == models.RoundLayoutRoster {
			for j := 0; j < tc.count; j++ {
				round.Participants = append(round.Participants, "p")
			}
		}
		require.NoError(t, uow.RoundRepository().Create(ctx, round))
	}
	require.NoError(t, uow.Commit())

	uow = store.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	ids, err := uow.RoundRepository().ListSettleable(ctx, base.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"older", "old"}, ids)

	ids, err = uow.RoundRepository().ListSettleable(ctx, base.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"older"}, ids)
}

func TestStore_InterleavedOptionWithSingleUnit(t *testing.T) {
	store := New(nil, Interleaved(1))
	require.NotNil(t, store.barrier)

	account, err := service.NewAccountService(store).Deposit(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), account.Balance)
	assert.Equal(t, uint64(5), store.Snapshot().Accounts["alice"])
	assert.Len(t, store.History(), 1)
}
