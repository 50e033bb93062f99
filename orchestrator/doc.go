// Package orchestrator starts, supervises and stops a set of components.
//
// Components declare an id, a priority and the ids they depend on. StartSystem
// computes a deterministic topological order (dependencies first, ties broken
// by ascending priority, then id) and starts components one at a time:
//
//	Uninitialized -> Initializing -> Running
//	                      |
//	                      v
//	                    Error -> Initializing (retry or restart)
//
// Before initializing a component the orchestrator waits until each of its
// dependencies is Running, for at most Config.DependencyTimeout. Initialize is
// bounded by Config.StartupTimeout and retried Config.MaxStartupRetries times,
// sleeping RetryBaseDelay*attempt between attempts. A component that exhausts
// its retries aborts StartSystem.
//
// Once every component is Running, a health loop polls each Running component
// every Config.HealthCheckInterval. With AutoRecovery enabled, an unhealthy
// component is restarted, at most once per RecoveryCooldown.
//
// StopSystem shuts components down in reverse startup order through a
// ShutdownCoordinator and is safe to call more than once, including from a
// signal handler while StartSystem is still running.
//
// Every transition is reported as an Event to the handler set with
// WithEventHandler and, when WithPublisher is used, published on the bus as
// an "orchestrator.<kind>" message.
//
// Usage:
//
//	orch, err := orchestrator.New(orchestrator.DefaultConfig(),
//		orchestrator.WithLogger(logger),
//		orchestrator.WithPublisher(msgBus))
//	if err != nil {
//		return err
//	}
//	_ = orch.RegisterComponent(db)
//	_ = orch.RegisterComponent(api) // depends on "db"
//	if err := orch.StartSystem(ctx); err != nil {
//		_ = orch.StopSystem(context.Background())
//		return err
//	}
//	defer orch.StopSystem(context.Background())
package orchestrator
