// Package component defines the capabilities the orchestration substrate consumes
// from the application's building blocks.
//
// A Component declares its id, the ids it depends on and a startup priority, and
// implements Initialize, HealthCheck and Shutdown. Components may also expose
// runtime metrics by implementing MetricsProvider.
//
// Base and Func help implementers:
//
//	db := &component.Func{
//	    Base: component.NewBase("db", 1),
//	    InitializeFunc: func(ctx context.Context) error { return pool.Ping(ctx) },
//	}
//
// Status is the lifecycle state machine tracked by the orchestrator:
//
//	Uninitialized → Initializing → Running → Stopping → Stopped
//	                     ↓            ↓
//	                   Error ←────────┘
//
// Error may be retried back into Initializing. Running components can be moved
// into Maintenance and back.
package component
