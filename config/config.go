package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/health"
	"github.com/c360/smoothsail/orchestrator"
)

// Config represents the complete application configuration
type Config struct {
	Log          LogConfig          `json:"log" yaml:"log"`
	Server       ServerConfig       `json:"server" yaml:"server"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Bus          BusConfig          `json:"bus" yaml:"bus"`
	Health       HealthConfig       `json:"health" yaml:"health"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// ServerConfig configures the metrics and status HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port        int    `json:"port" yaml:"port"`
	MetricsPath string `json:"metrics_path" yaml:"metrics_path"`
}

// OrchestratorConfig mirrors orchestrator.Config.
type OrchestratorConfig struct {
	StartupTimeout         Duration `json:"startup_timeout" yaml:"startup_timeout"`
	HealthCheckInterval    Duration `json:"health_check_interval" yaml:"health_check_interval"`
	HealthCheckTimeout     Duration `json:"health_check_timeout" yaml:"health_check_timeout"`
	DependencyTimeout      Duration `json:"dependency_timeout" yaml:"dependency_timeout"`
	DependencyPollInterval Duration `json:"dependency_poll_interval" yaml:"dependency_poll_interval"`
	MaxStartupRetries      int      `json:"max_startup_retries" yaml:"max_startup_retries"`
	RetryBaseDelay         Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	AutoRecovery           bool     `json:"auto_recovery" yaml:"auto_recovery"`
	RecoveryCooldown       Duration `json:"recovery_cooldown" yaml:"recovery_cooldown"`
	ShutdownTimeout        Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// BusConfig mirrors bus.Config.
type BusConfig struct {
	MaxQueueSize          int          `json:"max_queue_size" yaml:"max_queue_size"`
	MessageRetention      Duration     `json:"message_retention" yaml:"message_retention"`
	HistorySize           int          `json:"history_size" yaml:"history_size"`
	EnableDeadLetterQueue bool         `json:"enable_dead_letter_queue" yaml:"enable_dead_letter_queue"`
	DeadLetterSize        int          `json:"dead_letter_size" yaml:"dead_letter_size"`
	DispatchInterval      Duration     `json:"dispatch_interval" yaml:"dispatch_interval"`
	SweepProbability      float64      `json:"sweep_probability" yaml:"sweep_probability"`
	SyncPriority          bus.Priority `json:"sync_priority" yaml:"sync_priority"`
	DefaultHandlerTimeout Duration     `json:"default_handler_timeout" yaml:"default_handler_timeout"`
	ConcurrentDelivery    bool         `json:"concurrent_delivery" yaml:"concurrent_delivery"`
}

// AlertThresholds mirrors health.AlertThresholds.
type AlertThresholds struct {
	CPU          float64  `json:"cpu" yaml:"cpu"`
	Memory       float64  `json:"memory" yaml:"memory"`
	Disk         float64  `json:"disk" yaml:"disk"`
	ResponseTime Duration `json:"response_time" yaml:"response_time"`
}

// HealthConfig mirrors health.Config.
type HealthConfig struct {
	CheckInterval    Duration        `json:"check_interval" yaml:"check_interval"`
	CheckTimeout     Duration        `json:"check_timeout" yaml:"check_timeout"`
	FailureThreshold int             `json:"failure_threshold" yaml:"failure_threshold"`
	HistoryRetention int             `json:"history_retention" yaml:"history_retention"`
	AutoRecovery     bool            `json:"auto_recovery" yaml:"auto_recovery"`
	RecoveryCooldown Duration        `json:"recovery_cooldown" yaml:"recovery_cooldown"`
	EnableAlerts     bool            `json:"enable_alerts" yaml:"enable_alerts"`
	ResourceInterval Duration        `json:"resource_interval" yaml:"resource_interval"`
	AlertThresholds  AlertThresholds `json:"alert_thresholds" yaml:"alert_thresholds"`
	AlertRateLimit   Duration        `json:"alert_rate_limit" yaml:"alert_rate_limit"`
	DiskPath         string          `json:"disk_path" yaml:"disk_path"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	oc := orchestrator.DefaultConfig()
	bc := bus.DefaultConfig()
	hc := health.DefaultConfig()

	return &Config{
		Log:    LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{Port: 9090, MetricsPath: "/metrics"},
		Orchestrator: OrchestratorConfig{
			StartupTimeout:         Duration(oc.StartupTimeout),
			HealthCheckInterval:    Duration(oc.HealthCheckInterval),
			HealthCheckTimeout:     Duration(oc.HealthCheckTimeout),
			DependencyTimeout:      Duration(oc.DependencyTimeout),
			DependencyPollInterval: Duration(oc.DependencyPollInterval),
			MaxStartupRetries:      oc.MaxStartupRetries,
			RetryBaseDelay:         Duration(oc.RetryBaseDelay),
			AutoRecovery:           oc.AutoRecovery,
			RecoveryCooldown:       Duration(oc.RecoveryCooldown),
			ShutdownTimeout:        Duration(oc.ShutdownTimeout),
		},
		Bus: BusConfig{
			MaxQueueSize:          bc.MaxQueueSize,
			MessageRetention:      Duration(bc.MessageRetention),
			HistorySize:           bc.HistorySize,
			EnableDeadLetterQueue: bc.EnableDeadLetterQueue,
			DeadLetterSize:        bc.DeadLetterSize,
			DispatchInterval:      Duration(bc.DispatchInterval),
			SweepProbability:      bc.SweepProbability,
			SyncPriority:          bc.SyncPriority,
			DefaultHandlerTimeout: Duration(bc.DefaultHandlerTimeout),
			ConcurrentDelivery:    bc.ConcurrentDelivery,
		},
		Health: HealthConfig{
			CheckInterval:    Duration(hc.CheckInterval),
			CheckTimeout:     Duration(hc.CheckTimeout),
			FailureThreshold: hc.FailureThreshold,
			HistoryRetention: hc.HistoryRetention,
			AutoRecovery:     hc.AutoRecovery,
			RecoveryCooldown: Duration(hc.RecoveryCooldown),
			EnableAlerts:     hc.EnableAlerts,
			ResourceInterval: Duration(hc.ResourceInterval),
			AlertThresholds: AlertThresholds{
				CPU:          hc.AlertThresholds.CPU,
				Memory:       hc.AlertThresholds.Memory,
				Disk:         hc.AlertThresholds.Disk,
				ResponseTime: Duration(hc.AlertThresholds.ResponseTime),
			},
			AlertRateLimit: Duration(hc.AlertRateLimit),
			DiskPath:       "/",
		},
	}
}

// OrchestratorRuntime converts the orchestrator section.
func (c *Config) OrchestratorRuntime() orchestrator.Config {
	o := c.Orchestrator
	return orchestrator.Config{
		StartupTimeout:         o.StartupTimeout.Std(),
		HealthCheckInterval:    o.HealthCheckInterval.Std(),
		HealthCheckTimeout:     o.HealthCheckTimeout.Std(),
		DependencyTimeout:      o.DependencyTimeout.Std(),
		DependencyPollInterval: o.DependencyPollInterval.Std(),
		MaxStartupRetries:      o.MaxStartupRetries,
		RetryBaseDelay:         o.RetryBaseDelay.Std(),
		AutoRecovery:           o.AutoRecovery,
		RecoveryCooldown:       o.RecoveryCooldown.Std(),
		ShutdownTimeout:        o.ShutdownTimeout.Std(),
	}
}

// BusRuntime converts the bus section.
func (c *Config) BusRuntime() bus.Config {
	b := c.Bus
	return bus.Config{
		MaxQueueSize:          b.MaxQueueSize,
		MessageRetention:      b.MessageRetention.Std(),
		HistorySize:           b.HistorySize,
		EnableDeadLetterQueue: b.EnableDeadLetterQueue,
		DeadLetterSize:        b.DeadLetterSize,
		DispatchInterval:      b.DispatchInterval.Std(),
		SweepProbability:      b.SweepProbability,
		SyncPriority:          b.SyncPriority,
		DefaultHandlerTimeout: b.DefaultHandlerTimeout.Std(),
		ConcurrentDelivery:    b.ConcurrentDelivery,
	}
}

// HealthRuntime converts the health section.
func (c *Config) HealthRuntime() health.Config {
	h := c.Health
	return health.Config{
		CheckInterval:    h.CheckInterval.Std(),
		CheckTimeout:     h.CheckTimeout.Std(),
		FailureThreshold: h.FailureThreshold,
		HistoryRetention: h.HistoryRetention,
		AutoRecovery:     h.AutoRecovery,
		RecoveryCooldown: h.RecoveryCooldown.Std(),
		EnableAlerts:     h.EnableAlerts,
		ResourceInterval: h.ResourceInterval.Std(),
		AlertThresholds:  c.AlertThresholdsRuntime(),
		AlertRateLimit:   h.AlertRateLimit.Std(),
	}
}

// AlertThresholdsRuntime converts the health alert thresholds.
func (c *Config) AlertThresholdsRuntime() health.AlertThresholds {
	t := c.Health.AlertThresholds
	return health.AlertThresholds{
		CPU:          t.CPU,
		Memory:       t.Memory,
		Disk:         t.Disk,
		ResponseTime: t.ResponseTime.Std(),
	}
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"json": true, "text": true}
)

// Validate checks every section.
func (c *Config) Validate() error {
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: log level %q", errors.ErrInvalidConfig, c.Log.Level)
	}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("%w: log format %q", errors.ErrInvalidConfig, c.Log.Format)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", errors.ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.Port > 0 && !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("%w: metrics path must start with /", errors.ErrInvalidConfig)
	}
	if err := c.OrchestratorRuntime().Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := c.BusRuntime().Validate(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	if err := c.HealthRuntime().Validate(); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	// All fields are values; a struct copy is deep.
	copied := *c
	return &copied
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: config cannot be nil", errors.ErrInvalidConfig),
			"SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return errors.WrapInvalid(err, "SafeConfig", "Update", "config validation")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
