package bus

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/c360/smoothsail/errors"
)

// Handler processes a delivered message. The returned value is reported in
// the DeliveryResult; a request reply handler returns the reply payload.
type Handler interface {
	Handle(ctx context.Context, msg *Message) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) (any, error) {
	return f(ctx, msg)
}

// Prioritized handlers declare their own priority. WithHandlerPriority overrides it.
type Prioritized interface {
	Priority() int
}

// Filter handlers decide per message whether they want it.
type Filter interface {
	CanHandle(msg *Message) bool
}

// SubscribeOptions controls delivery to one subscription.
type SubscribeOptions struct {
	Priority    int
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Acknowledge bool
	Persistent  bool
	Regex       bool
	Filter      func(msg *Message) bool

	prioritySet bool
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*SubscribeOptions)

// WithHandlerPriority sets the order among handlers matching the same message.
// Higher runs first.
func WithHandlerPriority(p int) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Priority = p
		o.prioritySet = true
	}
}

// WithFilter adds a per-message predicate.
func WithFilter(fn func(msg *Message) bool) SubscribeOption {
	return func(o *SubscribeOptions) { o.Filter = fn }
}

// WithTimeout bounds each handler invocation.
func WithTimeout(d time.Duration) SubscribeOption {
	return func(o *SubscribeOptions) { o.Timeout = d }
}

// WithMaxRetries retries a failed invocation up to n more times.
func WithMaxRetries(n int) SubscribeOption {
	return func(o *SubscribeOptions) { o.MaxRetries = n }
}

// WithRetryDelay sets the pause between handler retries.
func WithRetryDelay(d time.Duration) SubscribeOption {
	return func(o *SubscribeOptions) { o.RetryDelay = d }
}

// WithAcknowledge marks the subscription as acknowledging; its handler
// result is recorded as the acknowledgement in SubscriptionStats.
func WithAcknowledge() SubscribeOption {
	return func(o *SubscribeOptions) { o.Acknowledge = true }
}

// WithPersistent keeps the subscription through UnsubscribeComponent.
func WithPersistent() SubscribeOption {
	return func(o *SubscribeOptions) { o.Persistent = true }
}

// AsRegex treats the pattern as a regular expression instead of a wildcard.
func AsRegex() SubscribeOption {
	return func(o *SubscribeOptions) { o.Regex = true }
}

// SubscriptionStats is a snapshot of per-subscription delivery counters.
type SubscriptionStats struct {
	Received       int64         `json:"received"`
	Processed      int64         `json:"processed"`
	Failed         int64         `json:"failed"`
	Acknowledged   int64         `json:"acknowledged"`
	AverageLatency time.Duration `json:"average_latency"`
	LastError      string        `json:"last_error,omitempty"`
	LastReceived   time.Time     `json:"last_received,omitempty"`
}

type subscription struct {
	id          string
	componentID string
	pattern     string
	matcher     *regexp.Regexp
	handler     Handler
	opts        SubscribeOptions

	mu    sync.Mutex
	stats SubscriptionStats
}

func (s *subscription) matches(msg *Message) bool {
	if !s.matcher.MatchString(msg.Type) || !msg.targets(s.componentID) {
		return false
	}
	if f, ok := s.handler.(Filter); ok && !f.CanHandle(msg) {
		return false
	}
	if s.opts.Filter != nil && !s.opts.Filter(msg) {
		return false
	}
	return true
}

func (s *subscription) record(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Received++
	s.stats.LastReceived = time.Now()
	if err != nil {
		s.stats.Failed++
		s.stats.LastError = err.Error()
	} else {
		s.stats.Processed++
		if s.opts.Acknowledge {
			s.stats.Acknowledged++
		}
	}

	// Running mean over every invocation.
	n := s.stats.Received
	s.stats.AverageLatency += (latency - s.stats.AverageLatency) / time.Duration(n)
}

func (s *subscription) snapshot() SubscriptionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// wildcardToRegex converts a pattern where * matches any run of characters
// and ? matches exactly one into an anchored regular expression.
func wildcardToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

func compilePattern(pattern string, isRegex bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", errors.ErrInvalidMessage)
	}
	expr := pattern
	if !isRegex {
		expr = wildcardToRegex(pattern)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %w", errors.ErrInvalidMessage, pattern, err)
	}
	return re, nil
}
