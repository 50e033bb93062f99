// Package smoothsail is an in-process substrate for running a set of
// cooperating components.
//
// # Architecture
//
// Four subsystems, each usable on its own:
//
//   - dependency: a registry of token bindings that builds singletons and
//     transients on demand, resolving their dependencies first and
//     rejecting cycles at registration.
//   - orchestrator: starts components in dependency order with bounded,
//     retried initialization, supervises them with a health loop and stops
//     them in reverse order.
//   - bus: a priority message bus with wildcard subscriptions, synchronous
//     delivery for high-priority messages, a bounded asynchronous queue,
//     request/response and a dead-letter list.
//   - health: a monitor that polls health checks, classifies and trends the
//     results, raises alerts on the bus and asks the orchestrator to
//     restart components that keep failing.
//
// Supporting packages:
//
//   - component: the Component interface and health report types shared
//     by the subsystems.
//   - errors: error classification and the sentinel errors every package
//     returns.
//   - metric: Prometheus metrics for all subsystems and the HTTP server
//     that exposes them.
//   - config: layered JSON/YAML configuration with environment overrides
//     and hot reload.
//   - pkg/retry, pkg/buffer, pkg/cache: retry with backoff, a bounded ring
//     and an LRU cache.
//
// # Running
//
// cmd/smoothsail wires everything through a dependency registry:
//
//	smoothsail --config=configs/smoothsail.yaml
//
// It serves /metrics, /healthz, /readyz and /status on server.port and
// shuts down gracefully on SIGINT or SIGTERM.
package smoothsail
