package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockSelector(t *testing.T) {
	selector := NewClockSelector(FixedClock{At: time.Unix(1_700_000_003, 0)})

	idx, err := selector.SelectIndex(2)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = selector.SelectIndex(5)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	_, err = selector.SelectIndex(0)
	assert.ErrorIs(t, err, ErrNoPlayers)
}

func TestTimestampIndex_AlwaysInRange(t *testing.T) {
	for _, unix := range []int64{-7, -1, 0, 1, 59, 1_700_000_000} {
		for n := 1; n <= 12; n++ {
			idx := TimestampIndex(unix, n)
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, n)
		}
	}
	assert.Equal(t, 2, TimestampIndex(-1, 3))
}

func TestNewClockSelector_DefaultsToSystemClock(t *testing.T) {
	selector := NewClockSelector(nil)
	assert.IsType(t, SystemClock{}, selector.Clock)
}
