package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/pkg/retry"
)

// HandlerResult is the outcome of one subscription's handling of a message.
type HandlerResult struct {
	SubscriptionID string        `json:"subscription_id"`
	ComponentID    string        `json:"component_id"`
	Value          any           `json:"value,omitempty"`
	Err            error         `json:"-"`
	Duration       time.Duration `json:"duration"`
	Attempts       int           `json:"attempts"`
}

// DeliveryResult describes what happened to a published message. For queued
// messages it is returned before delivery and only Queued and MessageID are set.
type DeliveryResult struct {
	MessageID string          `json:"message_id"`
	Queued    bool            `json:"queued"`
	Success   bool            `json:"success"`
	Delivered int             `json:"delivered"`
	Failed    int             `json:"failed"`
	Results   []HandlerResult `json:"results,omitempty"`
}

// Err joins the handler failures, or returns nil if every handler succeeded.
func (r DeliveryResult) Err() error {
	if r.Failed == 0 {
		return nil
	}
	errs := make([]error, 0, r.Failed)
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.ComponentID, res.Err))
		}
	}
	return fmt.Errorf("%w: %w", errors.ErrDeliveryFailed, stderrors.Join(errs...))
}

// matching returns the subscriptions for msg, highest handler priority first.
// Equal priorities keep subscription order.
func (b *Bus) matching(msg *Message) []*subscription {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.order))
	for _, id := range b.order {
		if s, ok := b.subs[id]; ok && s.matches(msg) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].opts.Priority > subs[j].opts.Priority
	})
	return subs
}

// deliver invokes every matching handler and dead-letters the message if any
// of them failed.
func (b *Bus) deliver(ctx context.Context, msg *Message) DeliveryResult {
	subs := b.matching(msg)
	result := DeliveryResult{
		MessageID: msg.ID,
		Results:   make([]HandlerResult, len(subs)),
	}

	if b.cfg.ConcurrentDelivery {
		var wg sync.WaitGroup
		for i, s := range subs {
			wg.Add(1)
			go func(i int, s *subscription) {
				defer wg.Done()
				result.Results[i] = b.invoke(ctx, s, msg)
			}(i, s)
		}
		wg.Wait()
	} else {
		for i, s := range subs {
			result.Results[i] = b.invoke(ctx, s, msg)
		}
	}

	for _, res := range result.Results {
		if res.Err != nil {
			result.Failed++
		} else {
			result.Delivered++
		}
	}
	result.Success = result.Failed == 0

	b.delivered.Add(int64(result.Delivered))
	b.failed.Add(int64(result.Failed))

	if !result.Success {
		b.logger.Warn("message delivery failed",
			"message_id", msg.ID, "type", msg.Type,
			"failed", result.Failed, "delivered", result.Delivered)
		b.deadLetter(msg, result.Err().Error(), result.Failed)
	} else {
		b.logger.Debug("message delivered",
			"message_id", msg.ID, "type", msg.Type, "handlers", result.Delivered)
	}
	return result
}

// invoke runs one handler with its timeout and retry policy and records stats.
func (b *Bus) invoke(ctx context.Context, s *subscription, msg *Message) HandlerResult {
	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = b.cfg.DefaultHandlerTimeout
	}

	cfg := retry.Config{
		MaxAttempts:  s.opts.MaxRetries + 1,
		InitialDelay: s.opts.RetryDelay,
		MaxDelay:     s.opts.RetryDelay,
		Strategy:     retry.Constant,
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
		cfg.MaxDelay = cfg.InitialDelay
	}

	res := HandlerResult{SubscriptionID: s.id, ComponentID: s.componentID}
	attempt := func() (any, error) {
		res.Attempts++
		return callHandler(ctx, s.handler, msg, timeout)
	}

	start := time.Now()
	var value any
	var err error
	if s.opts.MaxRetries > 0 {
		cfg.OnRetry = func(n int, err error, delay time.Duration) {
			b.logger.Debug("handler failed, retrying",
				"subscription", s.id, "component_id", s.componentID,
				"message_id", msg.ID, "attempt", n, "delay", delay, "error", err)
		}
		value, err = retry.DoWithResult(ctx, cfg, attempt)
	} else {
		value, err = attempt()
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
	} else {
		res.Value = value
	}

	s.record(res.Duration, res.Err)
	b.metrics.RecordDelivery(s.componentID, deliveryLabel(res.Err), res.Duration)
	return res
}

// callHandler races the handler against timeout. A handler that outlives
// it keeps running, but its result is discarded.
func callHandler(ctx context.Context, h Handler, msg *Message, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v\n%s", p, debug.Stack())}
			}
		}()
		v, err := h.Handle(ctx, msg)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", errors.ErrHandlerTimeout, timeout)
		}
		return nil, ctx.Err()
	}
}

func deliveryLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case stderrors.Is(err, errors.ErrHandlerTimeout):
		return "timeout"
	default:
		return "failure"
	}
}
