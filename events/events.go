package events

import (
	"context"
	"sync"

	"lottery/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange    EventType = "balance_change"
	EventTypeRoundInitialized EventType = "round_initialized"
	EventTypePlayerEntered    EventType = "player_entered"
	EventTypeWinnerPicked     EventType = "winner_picked"
)

// AllEventTypes lists every event type the service emits
var AllEventTypes = []EventType{
	EventTypeBalanceChange,
	EventTypeRoundInitialized,
	EventTypePlayerEntered,
	EventTypeWinnerPicked,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	AccountID       string
	OldBalance      uint64
	NewBalance      uint64
	ChangeAmount    uint64
	Direction       models.Direction
	TransactionType models.TransactionType
	RoundID         string
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// RoundInitializedEvent is emitted once when a round record is created
type RoundInitializedEvent struct {
	RoundID    string
	Authority  string
	Layout     models.RoundLayout
	MaxPlayers int
}

func (e RoundInitializedEvent) Type() EventType {
	return EventTypeRoundInitialized
}

// PlayerEnteredEvent is emitted for every accepted entry
type PlayerEnteredEvent struct {
	RoundID          string
	RoundNumber      int64
	Player           string
	Amount           uint64
	TotalPool        uint64
	ParticipantCount int
}

func (e PlayerEnteredEvent) Type() EventType {
	return EventTypePlayerEntered
}

// WinnerPickedEvent is emitted when a round pays out and reopens
type WinnerPickedEvent struct {
	RoundID          string
	RoundNumber      int64 // The round that was settled
	Winner           string
	WinnerIndex      int
	Payout           uint64
	ParticipantCount int
	Verified         bool
}

func (e WinnerPickedEvent) Type() EventType {
	return EventTypeWinnerPicked
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// SubscribeAll adds a handler for every event type in AllEventTypes
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// Handlers run asynchronously so a slow subscriber never holds up a commit
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until it
// commits, then flushes them to the underlying bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the events waiting for a commit
func (b *TransactionalBus) Pending() []Event {
	return append([]Event(nil), b.pending...)
}

// called after successful commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	pending := b.pending
	b.pending = nil

	if b.real == nil {
		return nil
	}

	log.WithField("pendingEventCount", len(pending)).Debug("Flushing pending events to main event bus")

	// Handlers outlive the transaction, so they must not inherit its context
	eventCtx := context.WithoutCancel(ctx)
	for _, ev := range pending {
		b.real.Emit(eventCtx, ev)
	}
	return nil
}

// called after rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
