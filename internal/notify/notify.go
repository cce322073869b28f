// Package notify delivers signee notifications through pluggable notifiers.
// Delivery is best-effort: a failed notification never affects the session it describes.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventSignatureRequested is sent once a session is stored and ready to sign.
const EventSignatureRequested = "signature_requested"

// Message is one notification addressed to a signee.
type Message struct {
	ID             string    `json:"id"`
	Event          string    `json:"event"`
	SID            string    `json:"sid"`
	RecipientEmail string    `json:"recipient_email"`
	SigningURL     string    `json:"signing_url"`
	Organization   string    `json:"organization"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage returns a Message with a fresh ID and the current time.
func NewMessage(event, sid, recipient, signingURL, organization, title string) Message {
	return Message{
		ID:             uuid.NewString(),
		Event:          event,
		SID:            sid,
		RecipientEmail: recipient,
		SigningURL:     signingURL,
		Organization:   organization,
		Title:          title,
		CreatedAt:      time.Now().UTC(),
	}
}

// Notifier delivers a single message. Implementations return an error wrapped
// with backoff.Permanent when retrying cannot help.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }
