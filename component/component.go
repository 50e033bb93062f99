package component

import (
	"context"
)

// Component is a unit of the application managed by the orchestrator.
type Component interface {
	// ID returns the unique component id.
	ID() string
	// Dependencies returns the ids that must be Running before Initialize is called.
	Dependencies() []string
	// Priority orders independent components; lower starts earlier.
	Priority() int

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) (HealthReport, error)
	Shutdown(ctx context.Context) error
}

// MetricsProvider is implemented by components that expose runtime metrics.
type MetricsProvider interface {
	Metrics() map[string]any
}

// HealthChecker is the subset of Component the health monitor polls.
type HealthChecker interface {
	ID() string
	HealthCheck(ctx context.Context) (HealthReport, error)
}

// Base carries the declared fields of a component. Embed it to satisfy
// ID, Dependencies and Priority.
type Base struct {
	id           string
	dependencies []string
	priority     int
}

// NewBase creates a Base with the given id, priority and dependencies.
func NewBase(id string, priority int, dependencies ...string) Base {
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	return Base{id: id, dependencies: deps, priority: priority}
}

// ID returns the component id.
func (b Base) ID() string { return b.id }

// Dependencies returns a copy of the declared dependency ids.
func (b Base) Dependencies() []string {
	deps := make([]string, len(b.dependencies))
	copy(deps, b.dependencies)
	return deps
}

// Priority returns the startup priority.
func (b Base) Priority() int { return b.priority }

// Func is a Component assembled from functions. Nil functions succeed;
// a nil HealthCheckFunc reports healthy with score 100.
type Func struct {
	Base

	InitializeFunc  func(ctx context.Context) error
	HealthCheckFunc func(ctx context.Context) (HealthReport, error)
	ShutdownFunc    func(ctx context.Context) error
	MetricsFunc     func() map[string]any
}

// Initialize calls InitializeFunc.
func (f *Func) Initialize(ctx context.Context) error {
	if f.InitializeFunc == nil {
		return nil
	}
	return f.InitializeFunc(ctx)
}

// HealthCheck calls HealthCheckFunc.
func (f *Func) HealthCheck(ctx context.Context) (HealthReport, error) {
	if f.HealthCheckFunc == nil {
		return Healthy(), nil
	}
	return f.HealthCheckFunc(ctx)
}

// Shutdown calls ShutdownFunc.
func (f *Func) Shutdown(ctx context.Context) error {
	if f.ShutdownFunc == nil {
		return nil
	}
	return f.ShutdownFunc(ctx)
}

// Metrics calls MetricsFunc.
func (f *Func) Metrics() map[string]any {
	if f.MetricsFunc == nil {
		return nil
	}
	return f.MetricsFunc()
}
