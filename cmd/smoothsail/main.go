// Package main implements the smoothsail runtime: it builds the message bus,
// orchestrator and health monitor through the dependency registry, starts
// the registered components and serves metrics and status over HTTP.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/c360/smoothsail/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "smoothsail"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	loader, cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(cfg.Log.Level))
	logger := setupLogger(os.Stdout, levelVar, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "files", cliCfg.ConfigPaths)
		return nil
	}

	logger.Info("Starting smoothsail",
		"version", Version,
		"build_time", BuildTime,
		"config_files", cliCfg.ConfigPaths)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := a.start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		a.shutdown(shutdownCtx)
		return err
	}
	logger.Info("smoothsail started", "components", len(a.orch.SystemStatus().Components))

	var wg sync.WaitGroup
	if cliCfg.Watch && len(cliCfg.ConfigPaths) > 0 {
		safe := config.NewSafeConfig(cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, loader, func(next *config.Config) {
				a.applyConfig(safe, next, levelVar, cliCfg)
			}, config.WithWatchLogger(logger))
			if err != nil {
				logger.Error("Config watcher stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	wg.Wait()

	logger.Info("smoothsail shutdown complete")
	return nil
}

// loadConfig loads the config layers, applies flag overrides and validates
// the result.
func loadConfig(cliCfg *CLIConfig) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	for _, p := range cliCfg.ConfigPaths {
		loader.AddLayer(p)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, cliCfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

func applyFlagOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
}

// start brings the runtime up: HTTP first so probes answer during startup,
// then the components, then health polling.
func (a *app) start(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}
	if err := a.orch.StartSystem(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	return nil
}

// applyConfig applies the settings that can change without a restart.
func (a *app) applyConfig(safe *config.SafeConfig, next *config.Config, levelVar *slog.LevelVar, cliCfg *CLIConfig) {
	applyFlagOverrides(next, cliCfg)
	if err := safe.Update(next); err != nil {
		slog.Warn("Config update rejected", "error", err)
		return
	}

	levelVar.Set(parseLevel(next.Log.Level))
	if err := a.monitor.SetAlertThresholds(next.AlertThresholdsRuntime()); err != nil {
		slog.Warn("Alert thresholds not applied", "error", err)
	}
	slog.Info("Live config applied",
		"log_level", next.Log.Level,
		"cpu_threshold", next.Health.AlertThresholds.CPU,
		"memory_threshold", next.Health.AlertThresholds.Memory,
		"disk_threshold", next.Health.AlertThresholds.Disk)
}

// shutdown stops health polling first so no recovery restarts race the
// component shutdown, then stops the components, the HTTP server and
// finally the registry-owned services.
func (a *app) shutdown(ctx context.Context) error {
	start := time.Now()
	var errs []error

	if err := a.monitor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop health monitor: %w", err))
	}
	if err := a.orch.StopSystem(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop components: %w", err))
	}
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}
	if err := a.registry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("release services: %w", err))
	}

	slog.Info("Shutdown finished", "duration_ms", time.Since(start).Milliseconds(), "errors", len(errs))
	return stderrors.Join(errs...)
}
