package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"time"
)

// runBounded runs fn with a deadline of timeout. When the deadline passes
// first, fn is abandoned and timeoutErr is returned; fn's own result is
// ignored. Panics in fn become errors.
func runBounded(ctx context.Context, timeout time.Duration, timeoutErr error, fn func(context.Context) error) error {
	_, err := callBounded(ctx, timeout, timeoutErr, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func callBounded[T any](ctx context.Context, timeout time.Duration, timeoutErr error, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v\n%s", p, debug.Stack())}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", timeoutErr, timeout)
		}
		return zero, ctx.Err()
	}
}
