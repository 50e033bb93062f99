package health

import (
	"fmt"
	"time"

	"github.com/c360/smoothsail/errors"
)

// AlertThresholds are the limits above which the monitor raises alerts.
// Percentages are 0-100.
type AlertThresholds struct {
	CPU          float64       `json:"cpu" yaml:"cpu"`
	Memory       float64       `json:"memory" yaml:"memory"`
	Disk         float64       `json:"disk" yaml:"disk"`
	ResponseTime time.Duration `json:"response_time" yaml:"response_time"`
}

// Config holds health monitor settings.
type Config struct {
	CheckInterval    time.Duration   // period of the poll cycle
	CheckTimeout     time.Duration   // bound on one HealthCheck call
	FailureThreshold int             // consecutive non-healthy polls before recovery
	HistoryRetention int             // samples kept per component
	AutoRecovery     bool            // ask the Recoverer to restart failing components
	RecoveryCooldown time.Duration   // minimum time between recoveries of one component
	EnableAlerts     bool            // publish alerts for non-healthy results
	ResourceInterval time.Duration   // period of resource collection; zero disables it
	AlertThresholds  AlertThresholds // resource and response time limits
	AlertRateLimit   time.Duration   // minimum time between two alerts for one resource
}

// DefaultConfig returns the default monitor settings.
func DefaultConfig() Config {
	return Config{
		CheckInterval:    30 * time.Second,
		CheckTimeout:     5 * time.Second,
		FailureThreshold: 3,
		HistoryRetention: 100,
		AutoRecovery:     true,
		RecoveryCooldown: 5 * time.Minute,
		EnableAlerts:     true,
		ResourceInterval: 60 * time.Second,
		AlertThresholds: AlertThresholds{
			CPU:          80,
			Memory:       85,
			Disk:         90,
			ResponseTime: 5 * time.Second,
		},
		AlertRateLimit: time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive", errors.ErrInvalidConfig)
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("%w: check timeout must be positive", errors.ErrInvalidConfig)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure threshold must be at least 1", errors.ErrInvalidConfig)
	}
	if c.HistoryRetention < 1 {
		return fmt.Errorf("%w: history retention must be at least 1", errors.ErrInvalidConfig)
	}
	if c.RecoveryCooldown < 0 || c.ResourceInterval < 0 || c.AlertRateLimit < 0 {
		return fmt.Errorf("%w: durations cannot be negative", errors.ErrInvalidConfig)
	}
	return c.AlertThresholds.Validate()
}

// Validate checks that percentages are within 0-100.
func (t AlertThresholds) Validate() error {
	for name, v := range map[string]float64{"cpu": t.CPU, "memory": t.Memory, "disk": t.Disk} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s threshold %.1f outside 0-100", errors.ErrInvalidConfig, name, v)
		}
	}
	if t.ResponseTime < 0 {
		return fmt.Errorf("%w: response time threshold cannot be negative", errors.ErrInvalidConfig)
	}
	return nil
}
