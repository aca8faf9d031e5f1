package models

import "time"

// Clock supplies the timestamp used by the selection policy
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// WinnerSelector picks the index of the winning ticket among n participants.
// It is the only source of entropy the round uses.
type WinnerSelector interface {
	SelectIndex(participants int) (int, error)
}

// ClockSelector selects unix_timestamp mod n.
//
// This is a weak policy: the timestamp has one-second granularity and whoever
// controls when pickWinner executes can steer or predict the result. Callers
// that need unpredictability must not rely on it.
type ClockSelector struct {
	Clock Clock
}

// NewClockSelector creates a selector backed by the given clock
func NewClockSelector(clock Clock) *ClockSelector {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ClockSelector{Clock: clock}
}

// SelectIndex returns the winner index for the current clock reading
func (s *ClockSelector) SelectIndex(participants int) (int, error) {
	if participants <= 0 {
		return 0, ErrNoPlayers
	}
	return TimestampIndex(s.Clock.Now().Unix(), participants), nil
}

// TimestampIndex reduces a unix timestamp onto [0, participants)
func TimestampIndex(unix int64, participants int) int {
	idx := unix % int64(participants)
	if idx < 0 {
		idx += int64(participants)
	}
	return int(idx)
}

// FixedClock always reports the same instant
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return c.At
}
