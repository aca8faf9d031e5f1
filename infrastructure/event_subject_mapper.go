package infrastructure

import (
	"fmt"

	"lottery/events"
)

// EventSubjectMapper handles mapping between lottery events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts an event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeRoundInitialized:
		return "lottery.round.initialized"
	case events.EventTypePlayerEntered:
		return "lottery.round.entered"
	case events.EventTypeWinnerPicked:
		return "lottery.round.winner_picked"
	case events.EventTypeBalanceChange:
		return "lottery.balance.changed"
	default:
		return fmt.Sprintf("lottery.unknown.%s", event.Type())
	}
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case "lottery.round.initialized":
		return events.EventTypeRoundInitialized
	case "lottery.round.entered":
		return events.EventTypePlayerEntered
	case "lottery.round.winner_picked":
		return events.EventTypeWinnerPicked
	case "lottery.balance.changed":
		return events.EventTypeBalanceChange
	default:
		return events.EventType(subject)
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"lottery.round.initialized",
		"lottery.round.entered",
		"lottery.round.winner_picked",
		"lottery.balance.changed",
	}
}
