package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types emitted by the session service and the notify worker.
const (
	EventSessionCreated     = "session_created"
	EventSessionSigned      = "session_signed"
	EventNotificationFailed = "notification_failed"
)

// Event is one lifecycle record. Empty fields are omitted by emitters.
type Event struct {
	ID           string
	Type         string
	SID          string
	Organization string
	Source       string
	Attributes   map[string]string
	CreatedAt    time.Time
}

// NewEvent returns an Event with a fresh ID stamped now.
func NewEvent(eventType, sid, organization, source string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		SID:          sid,
		Organization: organization,
		Source:       source,
		CreatedAt:    time.Now().UTC(),
	}
}

// With sets one attribute and returns e for chaining.
func (e *Event) With(key, value string) *Event {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}
