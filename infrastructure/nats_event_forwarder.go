package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lottery/events"
	"lottery/infrastructure/observability"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const sourceService = "lottery"

// NATSEventForwarder republishes committed bus events to NATS. Each message
// is a JSON envelope with event_id, event_type, timestamp, source_service
// and payload. Amounts travel as decimal strings.
type NATSEventForwarder struct {
	publisher     MessagePublisher
	subjectMapper *EventSubjectMapper
	metrics       *observability.MetricsProvider
	now           func() time.Time
	newID         func() string
}

// NewNATSEventForwarder creates a forwarder. metrics may be nil.
func NewNATSEventForwarder(publisher MessagePublisher, subjectMapper *EventSubjectMapper, metrics *observability.MetricsProvider) *NATSEventForwarder {
	return &NATSEventForwarder{
		publisher:     publisher,
		subjectMapper: subjectMapper,
		metrics:       metrics,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
}

// SubscribeTo forwards every event emitted on bus
func (f *NATSEventForwarder) SubscribeTo(bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, event events.Event) {
		if err := f.Forward(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to forward event to NATS")
		}
	})
}

// Forward publishes a single event
func (f *NATSEventForwarder) Forward(ctx context.Context, event events.Event) error {
	subject := f.subjectMapper.MapEventToSubject(event)

	data, eventID, err := f.encode(event)
	if err != nil {
		return err
	}

	if err := f.publisher.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}
	f.metrics.RecordNATSMessagePublished(string(event.Type()))

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   eventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")
	return nil
}

func (f *NATSEventForwarder) encode(event events.Event) ([]byte, string, error) {
	payload, err := eventPayload(event)
	if err != nil {
		return nil, "", err
	}

	eventID := f.newID()
	envelope, err := structpb.NewStruct(map[string]any{
		"event_id":       eventID,
		"event_type":     string(event.Type()),
		"timestamp":      timestamppb.New(f.now()).AsTime().Format(time.RFC3339Nano),
		"source_service": sourceService,
		"payload":        payload,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to build event envelope: %w", err)
	}

	data, err := protojson.Marshal(envelope)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	return data, eventID, nil
}

func eventPayload(event events.Event) (map[string]any, error) {
	amount := func(v uint64) string { return strconv.FormatUint(v, 10) }

	switch e := event.(type) {
	case events.RoundInitializedEvent:
		return map[string]any{
			"round_id":    e.RoundID,
			"authority":   e.Authority,
			"layout":      string(e.Layout),
			"max_players": e.MaxPlayers,
		}, nil
	case events.PlayerEnteredEvent:
		return map[string]any{
			"round_id":          e.RoundID,
			"round_number":      e.RoundNumber,
			"player":            e.Player,
			"amount":            amount(e.Amount),
			"total_pool":        amount(e.TotalPool),
			"participant_count": e.ParticipantCount,
		}, nil
	case events.WinnerPickedEvent:
		return map[string]any{
			"round_id":          e.RoundID,
			"round_number":      e.RoundNumber,
			"winner":            e.Winner,
			"winner_index":      e.WinnerIndex,
			"payout":            amount(e.Payout),
			"participant_count": e.ParticipantCount,
			"verified":          e.Verified,
		}, nil
	case events.BalanceChangeEvent:
		return map[string]any{
			"account_id":       e.AccountID,
			"old_balance":      amount(e.OldBalance),
			"new_balance":      amount(e.NewBalance),
			"change_amount":    amount(e.ChangeAmount),
			"direction":        string(e.Direction),
			"transaction_type": string(e.TransactionType),
			"round_id":         e.RoundID,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported event type %s", event.Type())
	}
}
