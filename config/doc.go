// Package config loads and watches smoothsail configuration.
//
// Configuration comes from three places, each overriding the last:
// built-in defaults, an ordered list of JSON or YAML files, and
// SMOOTHSAIL_* environment variables.
//
// # Core Components
//
// Config: The complete configuration. Each section mirrors the runtime
// Config of the orchestrator, bus and health packages, and the *Runtime
// methods convert between the two. Durations are written as strings such
// as "30s" or "14d".
//
// Loader: Merges file layers over the defaults key by key, so a layer only
// needs the values it changes, then applies environment overrides.
//
// Watcher: Reloads the layers with fsnotify whenever one of them changes
// and hands each valid result to a callback.
//
// SafeConfig: An RWMutex-guarded holder that validates on Update and
// returns copies from Get.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	safe := config.NewSafeConfig(cfg)
//	go config.Watch(ctx, loader, func(next *config.Config) {
//		if err := safe.Update(next); err != nil {
//			slog.Warn("rejected config", "error", err)
//		}
//	})
//
// # Environment Variables
//
// Overrides use the section and field name in upper case, for example
// SMOOTHSAIL_LOG_LEVEL, SMOOTHSAIL_BUS_MAX_QUEUE_SIZE or
// SMOOTHSAIL_ORCHESTRATOR_STARTUP_TIMEOUT. Malformed values fail the load
// rather than being ignored.
//
// # Security
//
// Files must be regular JSON or YAML files under 1MB. Relative paths may
// not escape the working directory and JSON nesting is capped before
// decoding.
package config
