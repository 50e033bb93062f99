package bus

import (
	"fmt"
	"time"

	"github.com/c360/smoothsail/errors"
)

// Config holds message bus settings.
type Config struct {
	// MaxQueueSize bounds the asynchronous queue.
	MaxQueueSize int
	// MessageRetention is how long delivered messages stay in history.
	MessageRetention time.Duration
	// HistorySize bounds the number of messages kept in history.
	HistorySize int
	// EnableDeadLetterQueue keeps failed messages for inspection and replay.
	EnableDeadLetterQueue bool
	// DeadLetterSize bounds the dead-letter list; the oldest entry is dropped first.
	DeadLetterSize int
	// DispatchInterval is the tick of the asynchronous dispatch loop.
	DispatchInterval time.Duration
	// SweepProbability is the chance per tick of sweeping expired state.
	SweepProbability float64
	// SyncPriority is the lowest priority delivered inside Publish.
	SyncPriority Priority
	// DefaultHandlerTimeout bounds handlers that set none.
	DefaultHandlerTimeout time.Duration
	// ConcurrentDelivery runs matching handlers in parallel. When false they
	// run one after another in priority order.
	ConcurrentDelivery bool
}

// DefaultConfig returns the default bus settings.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:          10000,
		MessageRetention:      time.Hour,
		HistorySize:           1000,
		EnableDeadLetterQueue: true,
		DeadLetterSize:        1000,
		DispatchInterval:      10 * time.Millisecond,
		SweepProbability:      0.01,
		SyncPriority:          PriorityHigh,
		DefaultHandlerTimeout: 30 * time.Second,
		ConcurrentDelivery:    true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.MaxQueueSize <= 0:
		return fmt.Errorf("%w: max queue size must be positive", errors.ErrInvalidConfig)
	case c.HistorySize <= 0:
		return fmt.Errorf("%w: history size must be positive", errors.ErrInvalidConfig)
	case c.EnableDeadLetterQueue && c.DeadLetterSize <= 0:
		return fmt.Errorf("%w: dead letter size must be positive", errors.ErrInvalidConfig)
	case c.MessageRetention <= 0:
		return fmt.Errorf("%w: message retention must be positive", errors.ErrInvalidConfig)
	case c.DispatchInterval <= 0:
		return fmt.Errorf("%w: dispatch interval must be positive", errors.ErrInvalidConfig)
	case c.SweepProbability < 0 || c.SweepProbability > 1:
		return fmt.Errorf("%w: sweep probability must be within [0, 1]", errors.ErrInvalidConfig)
	case !c.SyncPriority.Valid():
		return fmt.Errorf("%w: invalid sync priority %d", errors.ErrInvalidConfig, int(c.SyncPriority))
	case c.DefaultHandlerTimeout <= 0:
		return fmt.Errorf("%w: default handler timeout must be positive", errors.ErrInvalidConfig)
	}
	return nil
}
