package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/smoothsail/component"
	"github.com/c360/smoothsail/errors"
)

// ShutdownCoordinator stops components, bounding each Shutdown call.
type ShutdownCoordinator struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewShutdownCoordinator creates a coordinator that gives every component
// at most timeout to shut down.
func NewShutdownCoordinator(timeout time.Duration, logger *slog.Logger) *ShutdownCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownCoordinator{
		timeout: timeout,
		logger:  logger.With("operation", "components-shutdown"),
	}
}

// Stop shuts one component down.
func (s *ShutdownCoordinator) Stop(ctx context.Context, c component.Component) error {
	start := time.Now()
	err := runBounded(ctx, s.timeout, errors.ErrShutdownTimeout, c.Shutdown)
	if err != nil {
		s.logger.Error("component shutdown failed",
			"component_id", c.ID(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return err
	}
	s.logger.Debug("component stopped",
		"component_id", c.ID(),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// StopAll stops the components one at a time in the given order. done is
// called after each attempt. Failures do not stop the sequence; they are
// returned joined.
func (s *ShutdownCoordinator) StopAll(ctx context.Context, comps []component.Component, done func(id string, err error)) error {
	overall := time.Now()
	var errs []error
	for _, c := range comps {
		err := s.Stop(ctx, c)
		if done != nil {
			done(c.ID(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", c.ID(), err))
		}
	}
	s.logger.Debug("component shutdown sequence completed",
		"count", len(comps),
		"duration_ms", time.Since(overall).Milliseconds(),
		"error_count", len(errs))
	return stderrors.Join(errs...)
}
