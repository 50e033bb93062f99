package bus

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/metric"
	"github.com/c360/smoothsail/pkg/buffer"
	"github.com/c360/smoothsail/pkg/cache"
)

// patternCacheSize bounds the compiled subscription pattern cache.
const patternCacheSize = 512

// DeadLetter is a message that could not be delivered.
type DeadLetter struct {
	Message  *Message  `json:"message"`
	Reason   string    `json:"reason"`
	Failures int       `json:"failures"`
	FailedAt time.Time `json:"failed_at"`
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published     int64 `json:"published"`
	Delivered     int64 `json:"delivered"`
	Failed        int64 `json:"failed"`
	Expired       int64 `json:"expired"`
	Evicted       int64 `json:"evicted"`
	DeadLettered  int64 `json:"dead_lettered"`
	QueueDepth    int   `json:"queue_depth"`
	Subscriptions int   `json:"subscriptions"`
	DeadLetters   int   `json:"dead_letters"`
	History       int   `json:"history"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records bus activity on m.
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

type queued struct {
	msg    *Message
	seq    uint64
	inline bool // being delivered by Publish; skipped by the dispatcher
}

// Bus is an in-process priority message bus.
type Bus struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	mu     sync.RWMutex
	subs   map[string]*subscription
	order  []string // subscription ids in subscribe order
	queue  []*queued
	seq    uint64
	closed bool

	history     *cache.LRU[*Message]
	patterns    *cache.LRU[*regexp.Regexp]
	deadLetters *buffer.Ring[DeadLetter]

	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}

	published    atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	expired      atomic.Int64
	evicted      atomic.Int64
	deadLettered atomic.Int64
}

// New creates a bus. Call Start to run asynchronous dispatch.
func New(cfg Config, opts ...Option) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Bus", "New", "config validation")
	}

	b := &Bus{
		cfg:    cfg,
		logger: slog.Default(),
		subs:   make(map[string]*subscription),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "message-bus")

	var err error
	if b.history, err = cache.NewLRU[*Message](cfg.HistorySize); err != nil {
		return nil, errors.Wrap(err, "Bus", "New", "history cache")
	}
	if b.patterns, err = cache.NewLRU[*regexp.Regexp](patternCacheSize); err != nil {
		return nil, errors.Wrap(err, "Bus", "New", "pattern cache")
	}

	dlqSize := cfg.DeadLetterSize
	if dlqSize <= 0 {
		dlqSize = 1
	}
	b.deadLetters = buffer.NewRing[DeadLetter](dlqSize, buffer.WithDropCallback[DeadLetter](func(dl DeadLetter) {
		b.logger.Warn("dead letter dropped, list full", "message_id", dl.Message.ID, "type", dl.Message.Type)
	}))
	return b, nil
}

// Start runs the dispatch loop until ctx is cancelled or Shutdown is called.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.WrapFatal(errors.ErrShuttingDown, "Bus", "Start", "state check")
	}
	if !b.started.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Bus", "Start", "state check")
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	go b.dispatchLoop(ctx)

	b.logger.Info("message bus started", "dispatch_interval", b.cfg.DispatchInterval,
		"sync_priority", b.cfg.SyncPriority.String())
	return nil
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.dispatchOne(ctx)
			if rand.Float64() < b.cfg.SweepProbability {
				b.sweep()
			}
		}
	}
}

// dispatchOne delivers the highest-priority, oldest queued message.
// Messages that expired while queued are dropped on the way.
func (b *Bus) dispatchOne(ctx context.Context) {
	now := time.Now()
	var next *Message
	dropped := 0

	b.mu.Lock()
	b.sortQueueLocked()
	for i := 0; i < len(b.queue); {
		q := b.queue[i]
		if q.inline {
			i++
			continue
		}
		b.queue = slices.Delete(b.queue, i, i+1)
		if q.msg.Expired(now) {
			dropped++
			continue
		}
		next = q.msg
		break
	}
	depth := len(b.queue)
	b.mu.Unlock()

	b.metrics.RecordQueueDepth(depth)
	if dropped > 0 {
		b.expired.Add(int64(dropped))
		b.metrics.RecordExpired(dropped)
		b.logger.Debug("dropped expired messages", "count", dropped)
	}
	if next != nil {
		b.deliver(ctx, next)
	}
}

func (b *Bus) sortQueueLocked() {
	sort.SliceStable(b.queue, func(i, j int) bool {
		a, c := b.queue[i], b.queue[j]
		if a.msg.Priority != c.msg.Priority {
			return a.msg.Priority > c.msg.Priority
		}
		if !a.msg.Timestamp.Equal(c.msg.Timestamp) {
			return a.msg.Timestamp.Before(c.msg.Timestamp)
		}
		return a.seq < c.seq
	})
}

// sweep drops expired queued messages and history older than the retention.
func (b *Bus) sweep() {
	now := time.Now()

	b.mu.Lock()
	before := len(b.queue)
	b.queue = slices.DeleteFunc(b.queue, func(q *queued) bool {
		return !q.inline && q.msg.Expired(now)
	})
	dropped := before - len(b.queue)
	depth := len(b.queue)
	b.mu.Unlock()

	cutoff := now.Add(-b.cfg.MessageRetention)
	aged := b.history.DeleteFunc(func(_ string, m *Message) bool {
		return m.Timestamp.Before(cutoff)
	})

	b.metrics.RecordQueueDepth(depth)
	if dropped > 0 {
		b.expired.Add(int64(dropped))
		b.metrics.RecordExpired(dropped)
	}
	if dropped > 0 || aged > 0 {
		b.logger.Debug("swept bus state", "expired", dropped, "history_aged", aged)
	}
}

// Publish builds and routes a message. Messages at or above the sync priority
// are delivered before Publish returns; lower priorities are queued and the
// returned result only reports that.
func (b *Bus) Publish(ctx context.Context, msgType string, payload any, opts ...PublishOption) (DeliveryResult, error) {
	msg := newMessage(msgType, payload, time.Now(), opts)
	return b.route(ctx, msg, "Publish")
}

func (b *Bus) route(ctx context.Context, msg *Message, method string) (DeliveryResult, error) {
	if err := msg.validate(time.Now()); err != nil {
		b.deadLetter(msg, err.Error(), 0)
		return DeliveryResult{MessageID: msg.ID}, errors.WrapInvalid(err, "Bus", method, "message validation")
	}

	inline := msg.Priority >= b.cfg.SyncPriority
	entry, err := b.enqueue(msg, inline)
	if err != nil {
		return DeliveryResult{MessageID: msg.ID}, err
	}

	b.published.Add(1)
	b.metrics.RecordPublished(msg.Priority.String(), inline)
	if _, err := b.history.Set(msg.ID, msg); err != nil {
		b.logger.Debug("history store failed", "message_id", msg.ID, "error", err)
	}

	if !inline {
		return DeliveryResult{MessageID: msg.ID, Queued: true, Success: true}, nil
	}

	defer b.dequeue(entry)
	return b.deliver(ctx, msg), nil
}

// enqueue adds msg to the queue, evicting the oldest message at or below
// Normal priority when the queue is full.
func (b *Bus) enqueue(msg *Message, inline bool) (*queued, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.WrapFatal(errors.ErrShuttingDown, "Bus", "Publish", "state check")
	}

	if len(b.queue) >= b.cfg.MaxQueueSize {
		victim := -1
		for i, q := range b.queue {
			if q.inline || q.msg.Priority > PriorityNormal {
				continue
			}
			if victim < 0 || q.msg.Timestamp.Before(b.queue[victim].msg.Timestamp) {
				victim = i
			}
		}
		if victim < 0 {
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: %d messages queued, none evictable", errors.ErrQueueFull, len(b.queue)),
				"Bus", "Publish", "enqueue")
		}
		evicted := b.queue[victim].msg
		b.queue = slices.Delete(b.queue, victim, victim+1)
		b.evicted.Add(1)
		b.metrics.RecordEviction()
		b.logger.Warn("queue full, evicted message",
			"message_id", evicted.ID, "type", evicted.Type, "priority", evicted.Priority.String())
	}

	b.seq++
	entry := &queued{msg: msg, seq: b.seq, inline: inline}
	b.queue = append(b.queue, entry)
	b.metrics.RecordQueueDepth(len(b.queue))
	return entry, nil
}

func (b *Bus) dequeue(entry *queued) {
	b.mu.Lock()
	b.queue = slices.DeleteFunc(b.queue, func(q *queued) bool { return q == entry })
	depth := len(b.queue)
	b.mu.Unlock()
	b.metrics.RecordQueueDepth(depth)
}

func (b *Bus) deadLetter(msg *Message, reason string, failures int) {
	if !b.cfg.EnableDeadLetterQueue {
		return
	}
	b.deadLetters.Push(DeadLetter{
		Message:  msg,
		Reason:   reason,
		Failures: failures,
		FailedAt: time.Now(),
	})
	b.deadLettered.Add(1)
	b.metrics.RecordDeadLetter()
	b.logger.Warn("message dead-lettered", "message_id", msg.ID, "type", msg.Type, "reason", reason)
}

// Subscribe registers handler for message types matching pattern on behalf of
// componentID. Patterns use * and ? wildcards unless AsRegex is given.
func (b *Bus) Subscribe(componentID, pattern string, handler Handler, opts ...SubscribeOption) (string, error) {
	if componentID == "" {
		return "", errors.WrapInvalid(fmt.Errorf("%w: component id is required", errors.ErrInvalidMessage),
			"Bus", "Subscribe", "subscription validation")
	}
	if handler == nil {
		return "", errors.WrapInvalid(fmt.Errorf("%w: handler is required", errors.ErrInvalidMessage),
			"Bus", "Subscribe", "subscription validation")
	}

	var o SubscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.prioritySet {
		if p, ok := handler.(Prioritized); ok {
			o.Priority = p.Priority()
		}
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}

	matcher, err := b.compile(pattern, o.Regex)
	if err != nil {
		return "", errors.WrapInvalid(err, "Bus", "Subscribe", "pattern compilation")
	}

	s := &subscription{
		id:          uuid.NewString(),
		componentID: componentID,
		pattern:     pattern,
		matcher:     matcher,
		handler:     handler,
		opts:        o,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", errors.WrapFatal(errors.ErrShuttingDown, "Bus", "Subscribe", "state check")
	}
	b.subs[s.id] = s
	b.order = append(b.order, s.id)

	b.logger.Debug("subscribed", "subscription", s.id, "component_id", componentID,
		"pattern", pattern, "priority", o.Priority)
	return s.id, nil
}

func (b *Bus) compile(pattern string, isRegex bool) (*regexp.Regexp, error) {
	key := "wc:" + pattern
	if isRegex {
		key = "re:" + pattern
	}
	if re, ok := b.patterns.Get(key); ok {
		return re, nil
	}
	re, err := compilePattern(pattern, isRegex)
	if err != nil {
		return nil, err
	}
	_, _ = b.patterns.Set(key, re)
	return re, nil
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[id]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownSubscription, id),
			"Bus", "Unsubscribe", "subscription lookup")
	}
	b.removeLocked(id)
	return nil
}

// UnsubscribeComponent removes every non-persistent subscription owned by
// componentID and returns how many were removed.
func (b *Bus) UnsubscribeComponent(componentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []string
	for id, s := range b.subs {
		if s.componentID == componentID && !s.opts.Persistent {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		b.removeLocked(id)
	}
	return len(ids)
}

func (b *Bus) removeLocked(id string) {
	delete(b.subs, id)
	b.order = slices.DeleteFunc(b.order, func(s string) bool { return s == id })
}

// SubscriptionStats returns the counters of one subscription.
func (b *Bus) SubscriptionStats(id string) (SubscriptionStats, error) {
	b.mu.RLock()
	s, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return SubscriptionStats{}, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownSubscription, id),
			"Bus", "SubscriptionStats", "subscription lookup")
	}
	return s.snapshot(), nil
}

// History returns a published message still held in history.
func (b *Bus) History(id string) (*Message, bool) {
	return b.history.Peek(id)
}

// DeadLetters returns the dead-letter list, oldest first.
func (b *Bus) DeadLetters() []DeadLetter {
	return b.deadLetters.Snapshot()
}

// ReplayDeadLetter removes a dead letter and routes its message again.
func (b *Bus) ReplayDeadLetter(ctx context.Context, messageID string) (DeliveryResult, error) {
	var found *Message
	b.deadLetters.Remove(func(dl DeadLetter) bool {
		if found == nil && dl.Message.ID == messageID {
			found = dl.Message
			return true
		}
		return false
	})
	if found == nil {
		return DeliveryResult{}, errors.WrapInvalid(fmt.Errorf("%w: no dead letter %s", errors.ErrInvalidMessage, messageID),
			"Bus", "ReplayDeadLetter", "dead letter lookup")
	}

	b.logger.Info("replaying dead letter", "message_id", messageID, "type", found.Type)
	return b.route(ctx, found, "ReplayDeadLetter")
}

// QueueDepth returns the number of queued messages.
func (b *Bus) QueueDepth() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, q := range b.queue {
		if !q.inline {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subs := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Failed:        b.failed.Load(),
		Expired:       b.expired.Load(),
		Evicted:       b.evicted.Load(),
		DeadLettered:  b.deadLettered.Load(),
		QueueDepth:    b.QueueDepth(),
		Subscriptions: subs,
		DeadLetters:   b.deadLetters.Len(),
		History:       b.history.Len(),
	}
}

// Shutdown stops dispatch, delivers queued messages of High priority or
// above, and clears all bus state. Later calls are no-ops.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		b.stopOnce.Do(func() {
			cancel()
			select {
			case <-b.done:
			case <-ctx.Done():
				b.logger.Warn("dispatch loop did not stop before shutdown deadline")
			}
		})
	}

	b.mu.Lock()
	var drain []*Message
	for _, q := range b.queue {
		if !q.inline && q.msg.Priority >= PriorityHigh {
			drain = append(drain, q.msg)
		}
	}
	b.mu.Unlock()

	sort.SliceStable(drain, func(i, j int) bool { return drain[i].Priority > drain[j].Priority })
	now := time.Now()
	for _, msg := range drain {
		if msg.Expired(now) {
			continue
		}
		if res := b.deliver(ctx, msg); !res.Success {
			b.logger.Warn("drain delivery failed", "message_id", msg.ID, "type", msg.Type, "error", res.Err())
		}
	}

	b.mu.Lock()
	dropped := 0
	for _, q := range b.queue {
		if !q.inline && q.msg.Priority < PriorityHigh {
			dropped++
		}
	}
	b.queue = nil
	b.subs = make(map[string]*subscription)
	b.order = nil
	b.mu.Unlock()

	b.history.Clear()
	b.deadLetters.Clear()
	b.patterns.Clear()
	b.metrics.RecordQueueDepth(0)

	b.logger.Info("message bus shut down", "drained", len(drain), "discarded", dropped)
	return nil
}
