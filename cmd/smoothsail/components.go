package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/component"
	"github.com/c360/smoothsail/errors"
)

const (
	busComponentID       = "message-bus"
	heartbeatComponentID = "heartbeat"

	heartbeatInterval    = 15 * time.Second
	heartbeatMessageType = "system.heartbeat"

	// queueSaturation is the queue fill ratio reported as a High issue.
	queueSaturation = 0.9
)

// busComponent puts the message bus under the orchestrator. The dependency
// registry owns the bus and closes it on exit, so Shutdown only detaches.
type busComponent struct {
	component.Base
	bus      *bus.Bus
	capacity int
}

func newBusComponent(b *bus.Bus, capacity int) *busComponent {
	return &busComponent{
		Base:     component.NewBase(busComponentID, 0),
		bus:      b,
		capacity: capacity,
	}
}

func (c *busComponent) Initialize(ctx context.Context) error {
	// The dispatch loop outlives the initialize deadline.
	err := c.bus.Start(context.WithoutCancel(ctx))
	if err != nil && !stderrors.Is(err, errors.ErrAlreadyStarted) {
		return err
	}
	return nil
}

func (c *busComponent) HealthCheck(context.Context) (component.HealthReport, error) {
	stats := c.bus.Stats()
	report := component.Healthy()

	if c.capacity > 0 {
		fill := float64(stats.QueueDepth) / float64(c.capacity)
		if fill >= queueSaturation {
			report.Healthy = false
			report.Score = 60
			report.Issues = append(report.Issues, component.Issue{
				Code:     "QUEUE_SATURATED",
				Message:  fmt.Sprintf("queue %.0f%% full (%d/%d)", fill*100, stats.QueueDepth, c.capacity),
				Severity: component.SeverityHigh,
			})
		}
	}
	if stats.DeadLetters > 0 {
		report.Issues = append(report.Issues, component.Issue{
			Code:     "DEAD_LETTERS",
			Message:  fmt.Sprintf("%d messages in the dead-letter list", stats.DeadLetters),
			Severity: component.SeverityLow,
		})
	}
	return report, nil
}

func (c *busComponent) Shutdown(context.Context) error { return nil }

func (c *busComponent) Metrics() map[string]any {
	stats := c.bus.Stats()
	return map[string]any{
		"published":     stats.Published,
		"delivered":     stats.Delivered,
		"failed":        stats.Failed,
		"queue_depth":   stats.QueueDepth,
		"dead_letters":  stats.DeadLetters,
		"subscriptions": stats.Subscriptions,
	}
}

// Heartbeat is the payload of a system.heartbeat message.
type Heartbeat struct {
	Sequence  int64         `json:"sequence"`
	Uptime    time.Duration `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
}

// heartbeatPublisher is the part of the bus the heartbeat needs.
type heartbeatPublisher interface {
	Publish(ctx context.Context, msgType string, payload any, opts ...bus.PublishOption) (bus.DeliveryResult, error)
}

// heartbeat publishes a liveness message on the bus at a fixed interval and
// reports unhealthy while publishing fails.
type heartbeat struct {
	component.Base
	publisher heartbeatPublisher
	interval  time.Duration

	beats    atomic.Int64
	failures atomic.Int64

	mu      sync.Mutex
	started time.Time
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}
}

func newHeartbeat(p heartbeatPublisher, interval time.Duration) *heartbeat {
	return &heartbeat{
		Base:      component.NewBase(heartbeatComponentID, 10, busComponentID),
		publisher: p,
		interval:  interval,
	}
}

func (h *heartbeat) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.done = make(chan struct{})
	h.started = time.Now()
	h.lastErr = nil

	go h.run(loopCtx, h.done)
	return nil
}

func (h *heartbeat) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *heartbeat) beat(ctx context.Context) {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()

	payload := Heartbeat{
		Sequence:  h.beats.Add(1),
		Uptime:    time.Since(started),
		Timestamp: time.Now(),
	}
	_, err := h.publisher.Publish(ctx, heartbeatMessageType, payload,
		bus.WithSource(heartbeatComponentID),
		bus.WithTTL(h.interval))
	if err != nil {
		h.failures.Add(1)
	}

	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
}

func (h *heartbeat) HealthCheck(context.Context) (component.HealthReport, error) {
	h.mu.Lock()
	err := h.lastErr
	h.mu.Unlock()

	if err != nil {
		return component.Unhealthy(40, component.Issue{
			Code:     "HEARTBEAT_PUBLISH_FAILED",
			Message:  err.Error(),
			Severity: component.SeverityHigh,
		}), nil
	}
	return component.Healthy(), nil
}

func (h *heartbeat) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *heartbeat) Metrics() map[string]any {
	return map[string]any{
		"beats":    h.beats.Load(),
		"failures": h.failures.Load(),
	}
}
