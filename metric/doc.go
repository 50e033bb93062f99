// Package metric provides Prometheus instrumentation for the orchestration substrate.
//
// Metrics holds the collectors recorded by the dependency registry, the lifecycle
// orchestrator, the message bus and the health monitor. Every Record method is safe
// to call on a nil *Metrics so subsystems can run uninstrumented.
//
// MetricsRegistry owns a dedicated prometheus.Registry with the core metrics, Go
// runtime and process collectors, and accepts additional per-service collectors.
// Server exposes the registry over HTTP together with any status handlers the
// application mounts.
package metric
