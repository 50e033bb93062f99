package config

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.StartupTimeout.Std())
	assert.Equal(t, bus.PriorityHigh, cfg.Bus.SyncPriority)
	assert.Equal(t, 80.0, cfg.Health.AlertThresholds.CPU)
	assert.Equal(t, "/", cfg.Health.DiskPath)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server port"},
		{"metrics path", func(c *Config) { c.Server.MetricsPath = "metrics" }, "metrics path"},
		{"orchestrator timeout", func(c *Config) { c.Orchestrator.StartupTimeout = 0 }, "orchestrator: "},
		{"bus queue", func(c *Config) { c.Bus.MaxQueueSize = 0 }, "bus: "},
		{"health threshold", func(c *Config) { c.Health.AlertThresholds.CPU = 150 }, "health: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("disabled server ignores metrics path", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 0
		cfg.Server.MetricsPath = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_RuntimeConversion(t *testing.T) {
	cfg := Default()
	cfg.Orchestrator.RecoveryCooldown = Duration(time.Minute)
	cfg.Bus.SyncPriority = bus.PriorityCritical
	cfg.Health.AlertThresholds.ResponseTime = Duration(2 * time.Second)

	assert.Equal(t, time.Minute, cfg.OrchestratorRuntime().RecoveryCooldown)
	assert.Equal(t, bus.PriorityCritical, cfg.BusRuntime().SyncPriority)
	assert.Equal(t, 2*time.Second, cfg.HealthRuntime().AlertThresholds.ResponseTime)
	assert.Equal(t, cfg.Health.FailureThreshold, cfg.HealthRuntime().FailureThreshold)
}

func TestDuration_JSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"string", `"30s"`, 30 * time.Second},
		{"minutes", `"5m"`, 5 * time.Minute},
		{"days", `"2d"`, 48 * time.Hour},
		{"nanoseconds", `1000000`, time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.want, d.Std())
		})
	}

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	data, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"1m30s"`, string(data))
}

func TestDuration_YAML(t *testing.T) {
	var out struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 1d\nb: 500\n"), &out))
	assert.Equal(t, 24*time.Hour, out.A.Std())
	assert.Equal(t, 500*time.Nanosecond, out.B.Std())

	assert.Error(t, yaml.Unmarshal([]byte("a: later\n"), &out))
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	assert.Equal(t, "info", sc.Get().Log.Level)

	t.Run("get returns a copy", func(t *testing.T) {
		cfg := sc.Get()
		cfg.Log.Level = "debug"
		assert.Equal(t, "info", sc.Get().Log.Level)
	})

	t.Run("update validates", func(t *testing.T) {
		bad := Default()
		bad.Log.Level = "chatty"
		err := sc.Update(bad)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
		assert.Equal(t, "info", sc.Get().Log.Level)

		assert.Error(t, sc.Update(nil))
	})

	t.Run("update applies", func(t *testing.T) {
		next := Default()
		next.Log.Level = "warn"
		require.NoError(t, sc.Update(next))
		assert.Equal(t, "warn", sc.Get().Log.Level)
	})

	t.Run("concurrent access", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = sc.Get()
			}()
			go func() {
				defer wg.Done()
				_ = sc.Update(Default())
			}()
		}
		wg.Wait()
	})
}
