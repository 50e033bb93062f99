// Package retry provides backoff retry logic for transient failures.
//
// # Overview
//
// Do runs a function until it succeeds, the attempt budget is exhausted, the context
// is cancelled or the function returns an error marked with NonRetryable. The delay
// between attempts follows one of three strategies:
//
//   - Exponential: InitialDelay, then multiplied by Multiplier, capped at MaxDelay
//   - Linear: InitialDelay * attempt, used for component startup retries
//   - Constant: InitialDelay every time, used for message handler retries
//
// # Usage
//
//	cfg := retry.LinearConfig(maxRetries+1, time.Second)
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("initialize failed, retrying", "attempt", attempt, "error", err)
//	}
//	err := retry.Do(ctx, cfg, func() error {
//	    return c.Initialize(ctx)
//	})
package retry
