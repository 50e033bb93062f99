package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "SMOOTHSAIL"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// Layers returns the configured file layers.
func (l *Loader) Layers() []string {
	return append([]string(nil), l.layers...)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// Load loads and merges all configuration layers over the defaults, then
// applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "config validation")
		}
	}
	return cfg, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// loadRaw reads one layer as a generic map. The format follows the extension.
func loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %w", errors.ErrInvalidConfig, err)
		}
	default:
		// Validate JSON depth to prevent DoS
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON structure: %w", errors.ErrInvalidConfig, err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: parse json: %w", errors.ErrInvalidConfig, err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	key   string
	apply func(cfg *Config, value string) error
}

func stringVar(set func(*Config, string)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		set(cfg, v)
		return nil
	}
}

func intVar(set func(*Config, int)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		set(cfg, n)
		return nil
	}
}

func boolVar(set func(*Config, bool)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(cfg, b)
		return nil
	}
}

func durationVar(set func(*Config, Duration)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := parseDurationWithDays(v)
		if err != nil {
			return err
		}
		set(cfg, Duration(d))
		return nil
	}
}

var envOverrides = []envOverride{
	{"LOG_LEVEL", stringVar(func(c *Config, v string) { c.Log.Level = v })},
	{"LOG_FORMAT", stringVar(func(c *Config, v string) { c.Log.Format = v })},
	{"SERVER_PORT", intVar(func(c *Config, v int) { c.Server.Port = v })},
	{"SERVER_METRICS_PATH", stringVar(func(c *Config, v string) { c.Server.MetricsPath = v })},

	{"ORCHESTRATOR_STARTUP_TIMEOUT", durationVar(func(c *Config, v Duration) { c.Orchestrator.StartupTimeout = v })},
	{"ORCHESTRATOR_HEALTH_CHECK_INTERVAL", durationVar(func(c *Config, v Duration) { c.Orchestrator.HealthCheckInterval = v })},
	{"ORCHESTRATOR_DEPENDENCY_TIMEOUT", durationVar(func(c *Config, v Duration) { c.Orchestrator.DependencyTimeout = v })},
	{"ORCHESTRATOR_MAX_STARTUP_RETRIES", intVar(func(c *Config, v int) { c.Orchestrator.MaxStartupRetries = v })},
	{"ORCHESTRATOR_AUTO_RECOVERY", boolVar(func(c *Config, v bool) { c.Orchestrator.AutoRecovery = v })},
	{"ORCHESTRATOR_RECOVERY_COOLDOWN", durationVar(func(c *Config, v Duration) { c.Orchestrator.RecoveryCooldown = v })},
	{"ORCHESTRATOR_SHUTDOWN_TIMEOUT", durationVar(func(c *Config, v Duration) { c.Orchestrator.ShutdownTimeout = v })},

	{"BUS_MAX_QUEUE_SIZE", intVar(func(c *Config, v int) { c.Bus.MaxQueueSize = v })},
	{"BUS_MESSAGE_RETENTION", durationVar(func(c *Config, v Duration) { c.Bus.MessageRetention = v })},
	{"BUS_ENABLE_DEAD_LETTER_QUEUE", boolVar(func(c *Config, v bool) { c.Bus.EnableDeadLetterQueue = v })},
	{"BUS_SYNC_PRIORITY", func(c *Config, v string) error {
		p, err := bus.ParsePriority(v)
		if err != nil {
			return err
		}
		c.Bus.SyncPriority = p
		return nil
	}},

	{"HEALTH_CHECK_INTERVAL", durationVar(func(c *Config, v Duration) { c.Health.CheckInterval = v })},
	{"HEALTH_CHECK_TIMEOUT", durationVar(func(c *Config, v Duration) { c.Health.CheckTimeout = v })},
	{"HEALTH_FAILURE_THRESHOLD", intVar(func(c *Config, v int) { c.Health.FailureThreshold = v })},
	{"HEALTH_AUTO_RECOVERY", boolVar(func(c *Config, v bool) { c.Health.AutoRecovery = v })},
	{"HEALTH_ENABLE_ALERTS", boolVar(func(c *Config, v bool) { c.Health.EnableAlerts = v })},
	{"HEALTH_RESOURCE_INTERVAL", durationVar(func(c *Config, v Duration) { c.Health.ResourceInterval = v })},
	{"HEALTH_DISK_PATH", stringVar(func(c *Config, v string) { c.Health.DiskPath = v })},
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		key := l.envPrefix + "_" + o.key
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
		}
		if err := o.apply(cfg, val); err != nil {
			return fmt.Errorf("%w: %s=%q: %w", errors.ErrInvalidConfig, key, val, err)
		}
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML, by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode")
	}

	// Use secure file writing with validation
	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write "+path)
	}
	return nil
}
