package orchestrator

import (
	"context"
	"time"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/component"
)

// EventKind identifies an orchestration event.
type EventKind int

const (
	EventStatusChanged EventKind = iota
	EventStartFailed
	EventRestarted
	EventRecoveryAttempted
	EventHealthCheckFailed
	EventSystemReady
	EventSystemStopped
)

var eventNames = map[EventKind]string{
	EventStatusChanged:     "status_changed",
	EventStartFailed:       "start_failed",
	EventRestarted:         "restarted",
	EventRecoveryAttempted: "recovery_attempted",
	EventHealthCheckFailed: "health_check_failed",
	EventSystemReady:       "system_ready",
	EventSystemStopped:     "system_stopped",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// MessageType is the bus message type the event is published as.
func (k EventKind) MessageType() string {
	return "orchestrator." + k.String()
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event describes one orchestration transition.
type Event struct {
	Kind        EventKind        `json:"kind"`
	ComponentID string           `json:"component_id,omitempty"`
	From        component.Status `json:"from"`
	To          component.Status `json:"to"`
	Attempt     int              `json:"attempt,omitempty"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// EventHandler receives events synchronously, in the order they happen.
type EventHandler func(Event)

// Publisher is the part of the message bus the orchestrator publishes to.
type Publisher interface {
	Publish(ctx context.Context, msgType string, payload any, opts ...bus.PublishOption) (bus.DeliveryResult, error)
}

func (k EventKind) priority() bus.Priority {
	switch k {
	case EventStartFailed, EventHealthCheckFailed:
		return bus.PriorityHigh
	default:
		return bus.PriorityNormal
	}
}

func (o *Orchestrator) emit(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if o.onEvent != nil {
		o.onEvent(ev)
	}
	if o.publisher == nil {
		return
	}
	if _, err := o.publisher.Publish(ctx, ev.Kind.MessageType(), ev,
		bus.WithSource(sourceName), bus.WithPriority(ev.Kind.priority())); err != nil {
		o.logger.Debug("event publish failed", "event", ev.Kind.String(), "error", err)
	}
}
