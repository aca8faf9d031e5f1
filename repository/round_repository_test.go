package repository

import (
	"context"
	"testing"
	"time"

	"lottery/models"
	"lottery/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	accounts := NewAccountRepository(testDB.DB)
	repo := NewRoundRepository(testDB.DB)
	ctx := context.Background()

	createRound := func(t *testing.T, round *models.LotteryRound) {
		t.Helper()
		_, err := accounts.Create(ctx, round.PoolAccountID(), models.AccountKindPool)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, round))
	}

	t.Run("create and read back", func(t *testing.T) {
		round := testutil.CreateTestRound("r1")
		createRound(t, round)

		got, err := repo.GetByID(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.RoundLayoutRoster, got.Layout)
		assert.Zero(t, got.TotalPool)
		assert.Equal(t, []string{}, got.Participants)
		assert.Equal(t, int64(1), got.RoundNumber)
		assert.True(t, round.OpenedAt.Equal(got.OpenedAt))
	})

	t.Run("second create reports already initialized", func(t *testing.T) {
		err := repo.Create(ctx, testutil.CreateTestRound("r1"))
		assert.ErrorIs(t, err, models.ErrAlreadyInitialized)
	})

	t.Run("missing round", func(t *testing.T) {
		got, err := repo.GetForUpdate(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)

		err = repo.Save(ctx, testutil.CreateTestRound("nope"))
		assert.ErrorIs(t, err, models.ErrRoundNotFound)
	})

	t.Run("save roster and pool", func(t *testing.T) {
		round, err := repo.GetByID(ctx, "r1")
		require.NoError(t, err)

		round.Participants = []string{"alice", "bob", "alice"}
		round.ParticipantCount = 3
		round.TotalPool = 18_000_000_000_000_000_000
		require.NoError(t, repo.Save(ctx, round))

		got, err := repo.GetByID(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob", "alice"}, got.Participants)
		assert.Equal(t, uint64(18_000_000_000_000_000_000), got.TotalPool)
	})

	t.Run("roster and count must agree", func(t *testing.T) {
		round, err := repo.GetByID(ctx, "r1")
		require.NoError(t, err)

		round.ParticipantCount = 1
		assert.Error(t, repo.Save(ctx, round))
	})

	t.Run("list settleable", func(t *testing.T) {
		old := time.Now().Add(-time.Hour).UTC()

		due := testutil.CreateTestRoundWithEntries("due", []string{"a"}, []uint64{5})
		due.OpenedAt = old
		createRound(t, due)

		empty := testutil.CreateTestRound("empty")
		empty.OpenedAt = old
		createRound(t, empty)

		counter := testutil.CreateTestRound("counter")
		counter.Layout = models.RoundLayoutCounter
		counter.ParticipantCount = 2
		counter.TotalPool = 10
		counter.OpenedAt = old
		createRound(t, counter)

		ids, err := repo.ListSettleable(ctx, time.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"due"}, ids)
	})
}
