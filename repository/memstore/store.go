// Package memstore is an in-memory host for the lottery services. By default
// it executes units of work one at a time; Interleaved drops that guarantee
// so tests can show what the round invariants depend on.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lottery/events"
	"lottery/models"
	"lottery/service"

	log "github.com/sirupsen/logrus"
)

// barrierTimeout releases a barrier that never fills
const barrierTimeout = 5 * time.Second

type state struct {
	accounts      map[string]*models.Account
	rounds        map[string]*models.LotteryRound
	history       []*models.BalanceHistory
	nextHistoryID int64
}

func newState() *state {
	return &state{
		accounts:      make(map[string]*models.Account),
		rounds:        make(map[string]*models.LotteryRound),
		nextHistoryID: 1,
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:      make(map[string]*models.Account, len(s.accounts)),
		rounds:        make(map[string]*models.LotteryRound, len(s.rounds)),
		history:       append([]*models.BalanceHistory(nil), s.history...),
		nextHistoryID: s.nextHistoryID,
	}
	for id, a := range s.accounts {
		acct := *a
		c.accounts[id] = &acct
	}
	for id, r := range s.rounds {
		c.rounds[id] = r.Clone()
	}
	return c
}

// Option configures a Store
type Option func(*Store)

// Interleaved disables serialization. Units of work read the committed state
// when they begin and block at commit until n units have arrived, then merge
// the records they touched over whatever is committed.
func Interleaved(n int) Option {
	return func(s *Store) {
		s.barrier = newBarrier(n)
	}
}

// Store holds the committed state and hands out units of work over it
type Store struct {
	mu        sync.Mutex // guards committed
	serial    sync.Mutex // held by the active unit in serialized mode
	committed *state
	bus       *events.Bus
	barrier   *barrier
}

// New creates an empty store. Committed events go to bus, which may be nil.
func New(bus *events.Bus, opts ...Option) *Store {
	s := &Store{
		committed: newState(),
		bus:       bus,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements service.UnitOfWorkFactory
func (s *Store) Create() service.UnitOfWork {
	return &unitOfWork{
		store:            s,
		transactionalBus: events.NewTransactionalBus(s.bus),
	}
}

// Snapshot is a deep copy of the committed state
type Snapshot struct {
	Accounts   map[string]uint64
	Rounds     map[string]models.LotteryRound
	HistoryLen int
}

// TotalBalance sums every account balance
func (s Snapshot) TotalBalance() uint64 {
	var total uint64
	for _, b := range s.Accounts {
		total += b
	}
	return total
}

// Snapshot returns the committed state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Accounts:   make(map[string]uint64, len(s.committed.accounts)),
		Rounds:     make(map[string]models.LotteryRound, len(s.committed.rounds)),
		HistoryLen: len(s.committed.history),
	}
	for id, a := range s.committed.accounts {
		snap.Accounts[id] = a.Balance
	}
	for id, r := range s.committed.rounds {
		snap.Rounds[id] = *r.Clone()
	}
	return snap
}

// History returns every committed balance change in order
func (s *Store) History() []models.BalanceHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.BalanceHistory, len(s.committed.history))
	for i, h := range s.committed.history {
		out[i] = *h
	}
	return out
}

func (s *Store) begin() *state {
	if s.barrier == nil {
		s.serial.Lock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed.clone()
}

func (s *Store) end() {
	if s.barrier == nil {
		s.serial.Unlock()
	} else {
		s.barrier.wait()
	}
}

// merge writes the records a unit touched over the committed state
func (s *Store) merge(u *unitOfWork) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range u.dirtyAccounts {
		acct := *u.working.accounts[id]
		s.committed.accounts[id] = &acct
	}
	for id := range u.dirtyRounds {
		s.committed.rounds[id] = u.working.rounds[id].Clone()
	}
	for _, h := range u.newHistory {
		h.ID = s.committed.nextHistoryID
		s.committed.nextHistoryID++
		s.committed.history = append(s.committed.history, h)
	}
}

type unitOfWork struct {
	store            *Store
	working          *state
	transactionalBus *events.TransactionalBus
	dirtyAccounts    map[string]struct{}
	dirtyRounds      map[string]struct{}
	newHistory       []*models.BalanceHistory
	active           bool
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.working = u.store.begin()
	u.dirtyAccounts = make(map[string]struct{})
	u.dirtyRounds = make(map[string]struct{})
	u.newHistory = nil
	u.active = true
	return nil
}

func (u *unitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	u.active = false

	u.store.end()
	u.store.merge(u)
	u.working = nil

	if err := u.transactionalBus.Flush(context.Background()); err != nil {
		log.WithError(err).Error("Failed to flush events after commit")
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if !u.active {
		return nil
	}
	u.active = false

	u.store.end()
	u.working = nil
	u.transactionalBus.Discard()
	return nil
}

func (u *unitOfWork) mustBeActive() {
	if !u.active {
		panic("unit of work not started - call Begin() first")
	}
}

func (u *unitOfWork) AccountRepository() service.AccountRepository {
	u.mustBeActive()
	return accountRepository{u}
}

func (u *unitOfWork) RoundRepository() service.RoundRepository {
	u.mustBeActive()
	return roundRepository{u}
}

func (u *unitOfWork) BalanceHistoryRepository() service.BalanceHistoryRepository {
	u.mustBeActive()
	return balanceHistoryRepository{u}
}

func (u *unitOfWork) EventBus() service.EventPublisher {
	u.mustBeActive()
	return u.transactionalBus
}

type accountRepository struct{ u *unitOfWork }

func (r accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	a, ok := r.u.working.accounts[id]
	if !ok {
		return nil, nil
	}
	acct := *a
	return &acct, nil
}

func (r accountRepository) GetForUpdate(ctx context.Context, ids ...string) (map[string]*models.Account, error) {
	out := make(map[string]*models.Account, len(ids))
	for _, id := range ids {
		if a, ok := r.u.working.accounts[id]; ok {
			acct := *a
			out[id] = &acct
		}
	}
	return out, nil
}

func (r accountRepository) Create(ctx context.Context, id string, kind models.AccountKind) (*models.Account, error) {
	if _, ok := r.u.working.accounts[id]; ok {
		return nil, fmt.Errorf("account %s already exists", id)
	}
	now := time.Now()
	r.u.working.accounts[id] = &models.Account{ID: id, Kind: kind, CreatedAt: now, UpdatedAt: now}
	r.u.dirtyAccounts[id] = struct{}{}

	acct := *r.u.working.accounts[id]
	return &acct, nil
}

func (r accountRepository) UpdateBalance(ctx context.Context, id string, balance uint64) error {
	a, ok := r.u.working.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}
	a.Balance = balance
	a.UpdatedAt = time.Now()
	r.u.dirtyAccounts[id] = struct{}{}
	return nil
}

type roundRepository struct{ u *unitOfWork }

func (r roundRepository) Create(ctx context.Context, round *models.LotteryRound) error {
	if _, ok := r.u.working.rounds[round.ID]; ok {
		return fmt.Errorf("%w: %s", models.ErrAlreadyInitialized, round.ID)
	}
	if _, ok := r.u.working.accounts[round.PoolAccountID()]; !ok {
		return fmt.Errorf("%w: %s", models.ErrAccountNotFound, round.PoolAccountID())
	}
	now := time.Now()
	round.CreatedAt = now
	round.UpdatedAt = now
	r.u.working.rounds[round.ID] = round.Clone()
	r.u.dirtyRounds[round.ID] = struct{}{}
	return nil
}

func (r roundRepository) GetByID(ctx context.Context, id string) (*models.LotteryRound, error) {
	round, ok := r.u.working.rounds[id]
	if !ok {
		return nil, nil
	}
	return round.Clone(), nil
}

func (r roundRepository) GetForUpdate(ctx context.Context, id string) (*models.LotteryRound, error) {
	return r.GetByID(ctx, id)
}

func (r roundRepository) Save(ctx context.Context, round *models.LotteryRound) error {
	if _, ok := r.u.working.rounds[round.ID]; !ok {
		return fmt.Errorf("%w: %s", models.ErrRoundNotFound, round.ID)
	}
	round.UpdatedAt = time.Now()
	r.u.working.rounds[round.ID] = round.Clone()
	r.u.dirtyRounds[round.ID] = struct{}{}
	return nil
}

func (r roundRepository) ListSettleable(ctx context.Context, openedBefore time.Time, limit int) ([]string, error) {
	var due []*models.LotteryRound
	for _, round := range r.u.working.rounds {
		if round.Layout == models.RoundLayoutRoster && !round.IsEmpty() && !round.OpenedAt.After(openedBefore) {
			due = append(due, round)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].OpenedAt.Equal(due[j].OpenedAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].OpenedAt.Before(due[j].OpenedAt)
	})

	ids := make([]string, 0, len(due))
	for _, round := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, round.ID)
	}
	return ids, nil
}

type balanceHistoryRepository struct{ u *unitOfWork }

func (r balanceHistoryRepository) Record(ctx context.Context, history *models.BalanceHistory) error {
	history.CreatedAt = time.Now()
	h := *history
	r.u.newHistory = append(r.u.newHistory, &h)
	return nil
}

func (r balanceHistoryRepository) GetByAccount(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error) {
	var out []*models.BalanceHistory
	for i := len(r.u.working.history) - 1; i >= 0 && len(out) < limit; i-- {
		if h := r.u.working.history[i]; h.AccountID == accountID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}

// barrier releases its waiters once n have arrived, then resets
type barrier struct {
	mu      sync.Mutex
	n       int
	arrived int
	release chan struct{}
}

func newBarrier(n int) *barrier {
	if n < 1 {
		n = 1
	}
	return &barrier{n: n, release: make(chan struct{})}
}

func (b *barrier) wait() {
	b.mu.Lock()
	b.arrived++
	ch := b.release
	if b.arrived == b.n {
		close(ch)
		b.arrived = 0
		b.release = make(chan struct{})
	}
	b.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(barrierTimeout):
		log.WithField("expected", b.n).Warn("Commit barrier timed out")
	}
}
