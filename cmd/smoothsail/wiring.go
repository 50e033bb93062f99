package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/component"
	"github.com/c360/smoothsail/config"
	"github.com/c360/smoothsail/dependency"
	"github.com/c360/smoothsail/health"
	"github.com/c360/smoothsail/metric"
	"github.com/c360/smoothsail/orchestrator"
)

// Registry tokens for the runtime's own services.
const (
	tokenMetrics      = "metrics"
	tokenBus          = "bus"
	tokenOrchestrator = "orchestrator"
	tokenMonitor      = "monitor"
	tokenServer       = "server"
)

// app is the resolved object graph.
type app struct {
	registry *dependency.Registry
	metrics  *metric.MetricsRegistry
	bus      *bus.Bus
	orch     *orchestrator.Orchestrator
	monitor  *health.Monitor
	server   *metric.Server // nil when the HTTP server is disabled
}

// newRegistry declares how each runtime service is built. Nothing is
// constructed until the bindings are resolved.
func newRegistry(cfg *config.Config, logger *slog.Logger) (*dependency.Registry, error) {
	registry := dependency.NewRegistry(dependency.WithLogger(logger))

	bindings := []dependency.Binding{
		{
			Token:     tokenMetrics,
			Singleton: true,
			Tags:      []string{"core"},
			Factory: func(context.Context, ...any) (any, error) {
				return metric.NewMetricsRegistry(), nil
			},
		},
		{
			Token:        tokenBus,
			Singleton:    true,
			Dependencies: []string{tokenMetrics},
			Priority:     1,
			Tags:         []string{"core"},
			Factory: func(_ context.Context, deps ...any) (any, error) {
				reg := deps[0].(*metric.MetricsRegistry)
				return bus.New(cfg.BusRuntime(),
					bus.WithLogger(logger),
					bus.WithMetrics(reg.CoreMetrics()))
			},
		},
		{
			Token:        tokenOrchestrator,
			Singleton:    true,
			Dependencies: []string{tokenMetrics, tokenBus},
			Priority:     2,
			Tags:         []string{"core"},
			Factory: func(_ context.Context, deps ...any) (any, error) {
				reg := deps[0].(*metric.MetricsRegistry)
				msgBus := deps[1].(*bus.Bus)
				oc := cfg.OrchestratorRuntime()
				// The health monitor is the only poller; it recovers through the
				// orchestrator, so a second loop would check every id twice.
				oc.HealthCheckInterval = 0
				return orchestrator.New(oc,
					orchestrator.WithLogger(logger),
					orchestrator.WithMetrics(reg.CoreMetrics()),
					orchestrator.WithPublisher(msgBus),
					orchestrator.WithShutdownCoordinator(
						orchestrator.NewShutdownCoordinator(oc.ShutdownTimeout, logger)))
			},
		},
		{
			Token:        tokenMonitor,
			Singleton:    true,
			Dependencies: []string{tokenMetrics, tokenBus, tokenOrchestrator},
			Priority:     3,
			Tags:         []string{"core"},
			Factory: func(_ context.Context, deps ...any) (any, error) {
				reg := deps[0].(*metric.MetricsRegistry)
				msgBus := deps[1].(*bus.Bus)
				orch := deps[2].(*orchestrator.Orchestrator)

				opts := []health.Option{
					health.WithLogger(logger),
					health.WithMetrics(reg.CoreMetrics()),
					health.WithPublisher(msgBus),
					health.WithRecoverer(orch),
				}
				collector, err := health.NewSystemCollector(cfg.Health.DiskPath)
				if err != nil {
					logger.Warn("Resource collection disabled", "error", err)
				} else {
					opts = append(opts, health.WithCollector(collector))
				}
				return health.New(cfg.HealthRuntime(), opts...)
			},
		},
		{
			Token:        tokenServer,
			Singleton:    true,
			Dependencies: []string{tokenMetrics, tokenBus, tokenOrchestrator, tokenMonitor},
			Priority:     4,
			Tags:         []string{"http"},
			Factory: func(_ context.Context, deps ...any) (any, error) {
				reg := deps[0].(*metric.MetricsRegistry)
				srv := metric.NewServer(cfg.Server.Port, cfg.Server.MetricsPath, reg, logger)
				mountStatusHandlers(srv, deps[1].(*bus.Bus), deps[2].(*orchestrator.Orchestrator), deps[3].(*health.Monitor))
				return srv, nil
			},
		},
	}

	for _, b := range bindings {
		if err := registry.Register(b); err != nil {
			return nil, fmt.Errorf("register %s: %w", b.Token, err)
		}
	}
	return registry, nil
}

// buildApp resolves the object graph from the registry.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Prewarm(ctx); err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}

	a := &app{registry: registry}
	if a.metrics, err = dependency.ResolveAs[*metric.MetricsRegistry](ctx, registry, tokenMetrics); err != nil {
		return nil, err
	}
	if a.bus, err = dependency.ResolveAs[*bus.Bus](ctx, registry, tokenBus); err != nil {
		return nil, err
	}
	if a.orch, err = dependency.ResolveAs[*orchestrator.Orchestrator](ctx, registry, tokenOrchestrator); err != nil {
		return nil, err
	}
	if a.monitor, err = dependency.ResolveAs[*health.Monitor](ctx, registry, tokenMonitor); err != nil {
		return nil, err
	}
	if cfg.Server.Port > 0 {
		if a.server, err = dependency.ResolveAs[*metric.Server](ctx, registry, tokenServer); err != nil {
			return nil, err
		}
	}

	err = a.registerComponents(
		newBusComponent(a.bus, cfg.Bus.MaxQueueSize),
		newHeartbeat(a.bus, heartbeatInterval),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// registerComponents hands components to the orchestrator for lifecycle and
// to the health monitor for polling.
func (a *app) registerComponents(comps ...component.Component) error {
	for _, c := range comps {
		if err := a.orch.RegisterComponent(c); err != nil {
			return fmt.Errorf("register component %s: %w", c.ID(), err)
		}
		if err := a.monitor.RegisterComponent(c); err != nil {
			return fmt.Errorf("monitor component %s: %w", c.ID(), err)
		}
	}
	return nil
}
