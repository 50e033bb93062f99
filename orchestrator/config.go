package orchestrator

import (
	"fmt"
	"time"

	"github.com/c360/smoothsail/errors"
)

// Config holds lifecycle orchestration settings.
type Config struct {
	StartupTimeout         time.Duration // bound on one Initialize call
	HealthCheckInterval    time.Duration // period of the health loop; zero disables it
	HealthCheckTimeout     time.Duration // bound on one HealthCheck call
	DependencyTimeout      time.Duration // how long to wait for dependencies to be Running
	DependencyPollInterval time.Duration
	MaxStartupRetries      int           // retries after the first failed Initialize
	RetryBaseDelay         time.Duration // sleep is RetryBaseDelay * attempt
	AutoRecovery           bool          // restart components whose health check fails
	RecoveryCooldown       time.Duration // minimum time between recoveries of one component
	ShutdownTimeout        time.Duration // bound on one Shutdown call
}

// DefaultConfig returns the default orchestration settings.
func DefaultConfig() Config {
	return Config{
		StartupTimeout:         30 * time.Second,
		HealthCheckInterval:    30 * time.Second,
		HealthCheckTimeout:     5 * time.Second,
		DependencyTimeout:      60 * time.Second,
		DependencyPollInterval: 100 * time.Millisecond,
		MaxStartupRetries:      3,
		RetryBaseDelay:         time.Second,
		AutoRecovery:           true,
		RecoveryCooldown:       5 * time.Minute,
		ShutdownTimeout:        30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"startup timeout", c.StartupTimeout},
		{"health check timeout", c.HealthCheckTimeout},
		{"dependency timeout", c.DependencyTimeout},
		{"dependency poll interval", c.DependencyPollInterval},
		{"retry base delay", c.RetryBaseDelay},
		{"shutdown timeout", c.ShutdownTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", errors.ErrInvalidConfig, p.name)
		}
	}
	if c.HealthCheckInterval < 0 {
		return fmt.Errorf("%w: health check interval cannot be negative", errors.ErrInvalidConfig)
	}
	if c.MaxStartupRetries < 0 {
		return fmt.Errorf("%w: max startup retries cannot be negative", errors.ErrInvalidConfig)
	}
	if c.RecoveryCooldown < 0 {
		return fmt.Errorf("%w: recovery cooldown cannot be negative", errors.ErrInvalidConfig)
	}
	return nil
}
