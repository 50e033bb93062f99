package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Success(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false, // Disable for predictable tests
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}

	attempts := 0
	sentinel := errors.New("persistent error")
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return NonRetryable(errors.New("bad input"))
	})

	require.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, attempts)
	assert.Nil(t, NonRetryable(nil))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, cfg, func() error {
		return errors.New("keep failing")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestConfig_Delay(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		attempt  int
		expected time.Duration
	}{
		{"exponential first", Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}, 1, 10 * time.Millisecond},
		{"exponential third", Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}, 3, 40 * time.Millisecond},
		{"exponential capped", Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, Multiplier: 2}, 5, 25 * time.Millisecond},
		{"linear first", LinearConfig(4, 10*time.Millisecond), 1, 10 * time.Millisecond},
		{"linear third", LinearConfig(4, 10*time.Millisecond), 3, 30 * time.Millisecond},
		{"constant", Config{InitialDelay: 7 * time.Millisecond, MaxDelay: time.Second, Strategy: Constant}, 9, 7 * time.Millisecond},
		{"attempt below one", LinearConfig(2, 10*time.Millisecond), 0, 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.Delay(tt.attempt))
		})
	}
}

func TestRetry_LinearBackoffReportsDelays(t *testing.T) {
	cfg := LinearConfig(4, 5*time.Millisecond)

	var attempts []int
	var delays []time.Duration
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}

	err := Do(context.Background(), cfg, func() error {
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond}, delays)
}

func TestRetry_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative initial delay", Config{InitialDelay: -1}},
		{"negative max delay", Config{MaxDelay: -1}},
		{"negative multiplier", Config{Multiplier: -1}},
		{"max below initial", Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Do(context.Background(), tt.cfg, func() error { return nil })
			assert.Error(t, err)
		})
	}
}

func TestRetry_WithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		func() (string, error) {
			attempts++
			if attempts < 2 {
				return "", errors.New("not yet")
			}
			return "ready", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ready", result)
	assert.Equal(t, 2, attempts)
}

func TestRetry_ZeroAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 0}, func() error {
		attempts++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "zero attempts still runs once")
}
