package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lottery/events"
	"lottery/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	subject string
	data    []byte
}

// fakePublisher records messages instead of sending them
type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func newTestForwarder(pub MessagePublisher) *NATSEventForwarder {
	f := NewNATSEventForwarder(pub, NewEventSubjectMapper(), nil)
	f.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	f.newID = func() string { return "evt-1" }
	return f
}

func TestNATSEventForwarder_Envelope(t *testing.T) {
	pub := &fakePublisher{}
	f := newTestForwarder(pub)

	err := f.Forward(context.Background(), events.WinnerPickedEvent{
		RoundID:          "r1",
		RoundNumber:      3,
		Winner:           "alice",
		WinnerIndex:      1,
		Payout:           18446744073709551615,
		ParticipantCount: 2,
		Verified:         true,
	})
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "lottery.round.winner_picked", pub.messages[0].subject)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(pub.messages[0].data, &envelope))
	assert.Equal(t, "evt-1", envelope["event_id"])
	assert.Equal(t, "winner_picked", envelope["event_type"])
	assert.Equal(t, "lottery", envelope["source_service"])
	assert.Equal(t, "2024-05-01T12:00:00Z", envelope["timestamp"])

	payload := envelope["payload"].(map[string]any)
	assert.Equal(t, "alice", payload["winner"])
	assert.Equal(t, "18446744073709551615", payload["payout"])
	assert.Equal(t, true, payload["verified"])
}

func TestNATSEventForwarder_AllEventTypesHaveSubjects(t *testing.T) {
	mapper := NewEventSubjectMapper()
	samples := []events.Event{
		events.RoundInitializedEvent{RoundID: "r1", Layout: models.RoundLayoutRoster},
		events.PlayerEnteredEvent{RoundID: "r1", Amount: 5},
		events.WinnerPickedEvent{RoundID: "r1"},
		events.BalanceChangeEvent{AccountID: "a", TransactionType: models.TransactionTypeDeposit},
	}

	subjects := mapper.GetAllSubjects()
	for _, e := range samples {
		subject := mapper.MapEventToSubject(e)
		assert.Contains(t, subjects, subject)
		assert.Equal(t, e.Type(), mapper.MapSubjectToEventType(subject))

		_, err := eventPayload(e)
		assert.NoError(t, err)
	}
}

func TestNATSEventForwarder_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("stream unavailable")}
	f := newTestForwarder(pub)

	err := f.Forward(context.Background(), events.PlayerEnteredEvent{RoundID: "r1", Amount: 1})
	assert.ErrorContains(t, err, "stream unavailable")
}

func TestNATSEventForwarder_SubscribeTo(t *testing.T) {
	pub := &fakePublisher{}
	bus := events.NewBus()
	newTestForwarder(pub).SubscribeTo(bus)

	bus.Emit(context.Background(), events.PlayerEnteredEvent{RoundID: "r1", Amount: 1})
	bus.Emit(context.Background(), events.BalanceChangeEvent{AccountID: "a"})

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 10*time.Millisecond)
}
