package health

import (
	"context"
	"time"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/component"
)

// Bus message types published by the monitor.
const (
	AlertMessageType    = "health.alert"
	RecoveryMessageType = "health.recovery"
	ResourceMessageType = "health.resource"
)

const sourceName = "health-monitor"

// Publisher is the part of the message bus the monitor publishes to.
type Publisher interface {
	Publish(ctx context.Context, msgType string, payload any, opts ...bus.PublishOption) (bus.DeliveryResult, error)
}

// Recoverer restarts a component. The orchestrator satisfies it.
type Recoverer interface {
	RestartComponent(ctx context.Context, id string) error
}

// Alert is the payload of a health.alert message.
type Alert struct {
	ComponentID     string            `json:"component_id"`
	Status          Status            `json:"status"`
	Score           int               `json:"score"`
	Trend           Trend             `json:"trend"`
	Issues          []component.Issue `json:"issues,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	FailureCount    int               `json:"failure_count"`
	Timestamp       time.Time         `json:"timestamp"`
}

// priority maps an alert to a bus priority: Critical for a critical
// condition, High otherwise.
func (a Alert) priority() bus.Priority {
	if a.Status >= StatusCritical {
		return bus.PriorityCritical
	}
	for _, issue := range a.Issues {
		if issue.Severity >= component.SeverityCritical {
			return bus.PriorityCritical
		}
	}
	return bus.PriorityHigh
}

// RecoveryEvent is the payload of a health.recovery message.
type RecoveryEvent struct {
	ComponentID  string    `json:"component_id"`
	FailureCount int       `json:"failure_count"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ResourceAlert is the payload of a health.resource message.
type ResourceAlert struct {
	Resource  string    `json:"resource"`
	Percent   float64   `json:"percent"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *Monitor) publish(ctx context.Context, msgType string, payload any, priority bus.Priority) {
	if m.publisher == nil {
		return
	}
	if _, err := m.publisher.Publish(ctx, msgType, payload,
		bus.WithSource(sourceName), bus.WithPriority(priority)); err != nil {
		m.logger.Warn("health event publish failed", "type", msgType, "error", err)
	}
}

func (m *Monitor) raiseAlert(ctx context.Context, alert Alert) {
	m.metrics.RecordAlert(alert.ComponentID, alert.Status.String())
	m.logger.Warn("health alert",
		"component_id", alert.ComponentID,
		"status", alert.Status.String(),
		"score", alert.Score,
		"issues", len(alert.Issues))
	m.publish(ctx, AlertMessageType, alert, alert.priority())
}
