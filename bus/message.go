package bus

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/c360/smoothsail/errors"
)

// Metadata describes a message payload.
type Metadata struct {
	Version   string            `json:"version"`
	Encoding  string            `json:"encoding"`
	Encrypted bool              `json:"encrypted"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Message is an envelope routed by the bus. Messages are immutable once
// published; handlers must treat them as read-only.
type Message struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Payload       any       `json:"payload,omitempty"`
	Metadata      Metadata  `json:"metadata"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	Target        []string  `json:"target,omitempty"`
	Priority      Priority  `json:"priority"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ReplyTo       string    `json:"reply_to,omitempty"`
}

// Expired reports whether the message has an expiry at or before now.
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// targets reports whether the message is addressed to componentID.
// Untargeted messages reach every subscriber.
func (m *Message) targets(componentID string) bool {
	return len(m.Target) == 0 || slices.Contains(m.Target, componentID)
}

func (m *Message) validate(now time.Time) error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: id is required", errors.ErrInvalidMessage)
	case m.Type == "":
		return fmt.Errorf("%w: type is required", errors.ErrInvalidMessage)
	case m.Source == "":
		return fmt.Errorf("%w: source is required", errors.ErrInvalidMessage)
	case !m.Priority.Valid():
		return fmt.Errorf("%w: invalid priority %d", errors.ErrInvalidMessage, int(m.Priority))
	case !m.ExpiresAt.IsZero() && !m.ExpiresAt.After(now):
		return fmt.Errorf("%w: expiry %s is not in the future", errors.ErrInvalidMessage,
			m.ExpiresAt.Format(time.RFC3339Nano))
	}
	return nil
}

// PublishOption configures a published message.
type PublishOption func(*Message)

// WithSource sets the publishing component. Required.
func WithSource(source string) PublishOption {
	return func(m *Message) { m.Source = source }
}

// WithTarget restricts delivery to subscriptions owned by the given components.
func WithTarget(componentIDs ...string) PublishOption {
	return func(m *Message) { m.Target = slices.Clone(componentIDs) }
}

// WithPriority sets the message priority. The default is PriorityNormal.
func WithPriority(p Priority) PublishOption {
	return func(m *Message) { m.Priority = p }
}

// WithExpiresAt sets an absolute expiry.
func WithExpiresAt(t time.Time) PublishOption {
	return func(m *Message) { m.ExpiresAt = t }
}

// WithTTL sets the expiry relative to the message timestamp.
func WithTTL(ttl time.Duration) PublishOption {
	return func(m *Message) { m.ExpiresAt = m.Timestamp.Add(ttl) }
}

// WithCorrelationID links the message to a request.
func WithCorrelationID(id string) PublishOption {
	return func(m *Message) { m.CorrelationID = id }
}

// WithReplyTo sets the message type responses are published to.
func WithReplyTo(replyTo string) PublishOption {
	return func(m *Message) { m.ReplyTo = replyTo }
}

// WithMetadata replaces the message metadata.
func WithMetadata(md Metadata) PublishOption {
	return func(m *Message) {
		headers := maps.Clone(md.Headers)
		m.Metadata = md
		m.Metadata.Headers = headers
	}
}

// WithHeader sets a single metadata header.
func WithHeader(key, value string) PublishOption {
	return func(m *Message) {
		if m.Metadata.Headers == nil {
			m.Metadata.Headers = make(map[string]string)
		}
		m.Metadata.Headers[key] = value
	}
}

func newMessage(msgType string, payload any, now time.Time, opts []PublishOption) *Message {
	m := &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: now,
		Priority:  PriorityNormal,
		Metadata: Metadata{
			Version:  "1.0",
			Encoding: "none",
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
