package models

import (
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// RoundLayout decides how a round stores its participants. It is fixed when
// the round is initialized.
type RoundLayout string

const (
	// RoundLayoutRoster keeps every participant identity in entry order
	RoundLayoutRoster RoundLayout = "roster"
	// RoundLayoutCounter keeps only a participant count. Degraded: the winner
	// index cannot be mapped back to an identity, so payouts are unverified.
	RoundLayoutCounter RoundLayout = "counter"
)

const (
	// DefaultMaxPlayers is the default per-round capacity
	DefaultMaxPlayers = 10
	// MaxRosterCapacity is the number of 32-byte identities that fit a
	// 9000-byte round record after its fixed header.
	MaxRosterCapacity = 280
)

// IsValid reports whether the layout is a known one
func (l RoundLayout) IsValid() bool {
	return l == RoundLayoutRoster || l == RoundLayoutCounter
}

// IsDegraded reports whether payouts for this layout can not be verified
func (l RoundLayout) IsDegraded() bool {
	return l == RoundLayoutCounter
}

// ParseRoundLayout parses a layout name, case-insensitively
func ParseRoundLayout(s string) (RoundLayout, error) {
	layout := RoundLayout(strings.ToLower(strings.TrimSpace(s)))
	if !layout.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLayout, s)
	}
	return layout, nil
}

// LotteryRound is the single persisted record of a lottery. It is recycled in
// place: settling a round resets it into the next open round.
type LotteryRound struct {
	ID               string      `db:"id"`
	Layout           RoundLayout `db:"layout"`
	MaxPlayers       int         `db:"max_players"`
	TotalPool        uint64      `db:"total_pool"`
	Participants     []string    `db:"participants"` // Empty for the counter layout
	ParticipantCount int         `db:"participant_count"`
	RoundNumber      int64       `db:"round_number"`
	Authority        string      `db:"authority"` // Caller that initialized the round
	OpenedAt         time.Time   `db:"opened_at"` // When the current round opened
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// NewLotteryRound builds a fresh open round with an empty pool
func NewLotteryRound(id, authority string, layout RoundLayout, maxPlayers int, openedAt time.Time) (*LotteryRound, error) {
	if id == "" || authority == "" {
		return nil, ErrInvalidIdentity
	}
	if !layout.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLayout, layout)
	}
	if maxPlayers <= 0 || maxPlayers > MaxRosterCapacity {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidCapacity, maxPlayers, MaxRosterCapacity)
	}

	return &LotteryRound{
		ID:           id,
		Layout:       layout,
		MaxPlayers:   maxPlayers,
		TotalPool:    0,
		Participants: []string{},
		RoundNumber:  1,
		Authority:    authority,
		OpenedAt:     openedAt,
	}, nil
}

// PoolAccountID returns the id of the account holding a round's pool
func PoolAccountID(roundID string) string {
	return "pool:" + roundID
}

// PoolAccountID returns the id of the account holding this round's pool
func (r *LotteryRound) PoolAccountID() string {
	return PoolAccountID(r.ID)
}

// IsEmpty returns true if nobody has entered the current round
func (r *LotteryRound) IsEmpty() bool {
	return r.ParticipantCount == 0
}

// IsFull returns true if the round cannot take another entry
func (r *LotteryRound) IsFull() bool {
	return r.ParticipantCount >= r.MaxPlayers
}

// Clone returns a deep copy of the round
func (r *LotteryRound) Clone() *LotteryRound {
	c := *r
	c.Participants = append([]string{}, r.Participants...)
	return &c
}

// Info returns the read-only view of the round
func (r *LotteryRound) Info() *RoundInfo {
	return &RoundInfo{
		RoundID:          r.ID,
		TotalPool:        r.TotalPool,
		ParticipantCount: r.ParticipantCount,
		Layout:           r.Layout,
		MaxPlayers:       r.MaxPlayers,
		RoundNumber:      r.RoundNumber,
	}
}

// RoundInfo is what getInfo reports
type RoundInfo struct {
	RoundID          string
	TotalPool        uint64
	ParticipantCount int
	Layout           RoundLayout
	MaxPlayers       int
	RoundNumber      int64
}

// TransitionKind identifies which operation produced a transition
type TransitionKind string

const (
	TransitionEntry  TransitionKind = "entry"
	TransitionPayout TransitionKind = "payout"
)

// Transfer is a movement of value between two accounts
type Transfer struct {
	From   string
	To     string
	Amount uint64
}

// Transition is a pending change to a round. The balance movement and the next
// record belong together: a host must commit both or neither.
type Transition struct {
	Kind     TransitionKind
	Transfer Transfer

	// Payout only
	Winner      string
	WinnerIndex int
	Verified    bool

	next *LotteryRound
}

// Next returns the round record as it will be once the transition commits
func (t *Transition) Next() *LotteryRound {
	return t.next.Clone()
}

// Enter validates an entry and returns the transition it would cause. The
// round itself is never modified.
func (r *LotteryRound) Enter(player string, amount uint64) (*Transition, error) {
	if err := ValidatePlayerID(player); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if r.IsFull() {
		return nil, fmt.Errorf("%w: %d/%d", ErrTooManyPlayers, r.ParticipantCount, r.MaxPlayers)
	}
	total, carry := bits.Add64(r.TotalPool, amount, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: pool %d + entry %d", ErrOverflow, r.TotalPool, amount)
	}

	next := r.Clone()
	next.TotalPool = total
	if r.Layout == RoundLayoutRoster {
		next.Participants = append(next.Participants, player)
	}
	next.ParticipantCount++

	return &Transition{
		Kind: TransitionEntry,
		Transfer: Transfer{
			From:   player,
			To:     r.PoolAccountID(),
			Amount: amount,
		},
		next: next,
	}, nil
}

// SettleOptions control how a round is settled
type SettleOptions struct {
	// Payee is the account the caller claims is the winner. Empty means pay
	// whoever is selected, which only a roster round can resolve.
	Payee string
	// AllowUnverified lets a counter round pay the claimed payee unchecked
	AllowUnverified bool
	// At is when the next round opens
	At time.Time
}

// Settle selects the winner and returns the payout transition that drains the
// pool and reopens the round. The round itself is never modified.
func (r *LotteryRound) Settle(selector WinnerSelector, opts SettleOptions) (*Transition, error) {
	if r.IsEmpty() {
		return nil, ErrNoPlayers
	}
	if opts.Payee != "" {
		if err := ValidatePlayerID(opts.Payee); err != nil {
			return nil, err
		}
	}

	idx, err := selector.SelectIndex(r.ParticipantCount)
	if err != nil {
		return nil, fmt.Errorf("failed to select winner: %w", err)
	}
	if idx < 0 || idx >= r.ParticipantCount {
		return nil, fmt.Errorf("selector returned index %d for %d participants", idx, r.ParticipantCount)
	}

	var winner string
	verified := false
	switch r.Layout {
	case RoundLayoutRoster:
		winner = r.Participants[idx]
		if opts.Payee != "" && opts.Payee != winner {
			return nil, ErrUnauthorizedPayee
		}
		verified = true
	case RoundLayoutCounter:
		if opts.Payee == "" || !opts.AllowUnverified {
			return nil, ErrUnverifiablePayout
		}
		winner = opts.Payee
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLayout, r.Layout)
	}
	if err := ValidatePlayerID(winner); err != nil {
		return nil, err
	}

	next := r.Clone()
	next.TotalPool = 0
	next.Participants = []string{}
	next.ParticipantCount = 0
	next.RoundNumber++
	next.OpenedAt = opts.At

	return &Transition{
		Kind: TransitionPayout,
		Transfer: Transfer{
			From:   r.PoolAccountID(),
			To:     winner,
			Amount: r.TotalPool,
		},
		Winner:      winner,
		WinnerIndex: idx,
		Verified:    verified,
		next:        next,
	}, nil
}
