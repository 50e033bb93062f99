package bus

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/metric"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DispatchInterval = time.Millisecond
	cfg.DefaultHandlerTimeout = time.Second
	return cfg
}

func newTestBus(t *testing.T, cfg Config, opts ...Option) *Bus {
	t.Helper()
	b, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string) Handler {
	return HandlerFunc(func(_ context.Context, msg *Message) (any, error) {
		r.mu.Lock()
		r.calls = append(r.calls, name+":"+msg.Type)
		r.mu.Unlock()
		return name, nil
	})
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestWildcardToRegex(t *testing.T) {
	tests := []struct {
		pattern string
		regex   bool
		input   string
		match   bool
	}{
		{"orders.*", false, "orders.created", true},
		{"orders.*", false, "shipments.created", false},
		{"orders.*", false, "orders", false},
		{"job.?", false, "job.1", true},
		{"job.?", false, "job.12", false},
		{"a.b", false, "axb", false},
		{"*", false, "anything.at.all", true},
		{"exact", false, "exact", true},
		{"exact", false, "not-exact", false},
		{`^orders\.(created|paid)$`, true, "orders.paid", true},
		{`^orders\.(created|paid)$`, true, "orders.shipped", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			re, err := compilePattern(tt.pattern, tt.regex)
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.input))
		})
	}

	_, err := compilePattern("(", true)
	assert.ErrorIs(t, err, errors.ErrInvalidMessage)
}

func TestBus_PatternRouting(t *testing.T) {
	b := newTestBus(t, testConfig())
	var calls atomic.Int32
	_, err := b.Subscribe("svc1", "orders.*", HandlerFunc(func(context.Context, *Message) (any, error) {
		calls.Add(1)
		return nil, nil
	}))
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "orders.created", map[string]any{},
		WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)

	res, err = b.Publish(context.Background(), "shipments.created", map[string]any{},
		WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Delivered)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_PublishValidation(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		opts    []PublishOption
	}{
		{"missing type", "", []PublishOption{WithSource("x")}},
		{"missing source", "a", nil},
		{"past expiry", "a", []PublishOption{WithSource("x"), WithExpiresAt(time.Now().Add(-time.Second))}},
		{"invalid priority", "a", []PublishOption{WithSource("x"), WithPriority(Priority(42))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBus(t, testConfig())
			_, err := b.Publish(context.Background(), tt.msgType, nil, tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidMessage)
			assert.True(t, errors.IsInvalid(err))
			assert.Equal(t, 0, b.QueueDepth())
			assert.Equal(t, int64(0), b.Stats().Published)
			assert.Len(t, b.DeadLetters(), 1)
		})
	}
}

func TestBus_SyncPublishReturnsHandlerOutcome(t *testing.T) {
	b := newTestBus(t, testConfig())
	_, err := b.Subscribe("ok", "job.run", HandlerFunc(func(context.Context, *Message) (any, error) {
		return "done", nil
	}))
	require.NoError(t, err)
	_, err = b.Subscribe("bad", "job.run", HandlerFunc(func(context.Context, *Message) (any, error) {
		return nil, stderrors.New("boom")
	}))
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "job.run", nil, WithSource("x"), WithPriority(PriorityCritical))
	require.NoError(t, err)

	assert.False(t, res.Queued)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.ErrorIs(t, res.Err(), errors.ErrDeliveryFailed)

	dead := b.DeadLetters()
	require.Len(t, dead, 1, "a failed delivery is dead-lettered once")
	assert.Equal(t, res.MessageID, dead[0].Message.ID)
	assert.Equal(t, 1, dead[0].Failures)
}

func TestBus_AsyncPublishIsQueued(t *testing.T) {
	b := newTestBus(t, testConfig())
	delivered := make(chan string, 1)
	_, err := b.Subscribe("svc", "event.*", HandlerFunc(func(_ context.Context, msg *Message) (any, error) {
		delivered <- msg.ID
		return nil, nil
	}))
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "event.tick", nil, WithSource("x"))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, 1, b.QueueDepth(), "nothing is delivered before the loop starts")

	require.NoError(t, b.Start(context.Background()))
	select {
	case id := <-delivered:
		assert.Equal(t, res.MessageID, id)
	case <-time.After(time.Second):
		t.Fatal("queued message was not delivered")
	}
	assert.ErrorIs(t, b.Start(context.Background()), errors.ErrAlreadyStarted)
}

func TestBus_AsyncOrderIsPriorityThenFIFO(t *testing.T) {
	b := newTestBus(t, testConfig())
	rec := &recorder{}
	_, err := b.Subscribe("svc", "*", rec.handler("h"))
	require.NoError(t, err)

	ctx := context.Background()
	for _, m := range []struct {
		msgType  string
		priority Priority
	}{
		{"low", PriorityLow},
		{"normal.1", PriorityNormal},
		{"normal.2", PriorityNormal},
	} {
		_, err := b.Publish(ctx, m.msgType, nil, WithSource("x"), WithPriority(m.priority))
		require.NoError(t, err)
	}

	require.NoError(t, b.Start(ctx))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	want := []string{"h:normal.1", "h:normal.2", "h:low"}
	if diff := cmp.Diff(want, rec.snapshot()); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestBus_HandlerPriorityOrder(t *testing.T) {
	cfg := testConfig()
	cfg.ConcurrentDelivery = false
	b := newTestBus(t, cfg)
	rec := &recorder{}

	ids := map[int]string{}
	for _, p := range []int{1, 10, 5} {
		id, err := b.Subscribe("svc", "work", rec.handler("p"+strconv.Itoa(p)), WithHandlerPriority(p))
		require.NoError(t, err)
		ids[p] = id
	}

	res, err := b.Publish(context.Background(), "work", nil, WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	require.Equal(t, 3, res.Delivered)

	assert.Equal(t, []string{"p10:work", "p5:work", "p1:work"}, rec.snapshot())
	assert.Equal(t, ids[10], res.Results[0].SubscriptionID)
	assert.Equal(t, ids[5], res.Results[1].SubscriptionID)
	assert.Equal(t, ids[1], res.Results[2].SubscriptionID)

	for _, id := range ids {
		stats, err := b.SubscriptionStats(id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Received)
		assert.Equal(t, int64(1), stats.Processed)
	}
}

type prioritizedHandler struct {
	HandlerFunc
	priority int
	accept   bool
}

func (h prioritizedHandler) Priority() int           { return h.priority }
func (h prioritizedHandler) CanHandle(*Message) bool { return h.accept }

func TestBus_HandlerCapabilities(t *testing.T) {
	b := newTestBus(t, testConfig())
	noop := HandlerFunc(func(context.Context, *Message) (any, error) { return nil, nil })

	high, err := b.Subscribe("a", "x", prioritizedHandler{HandlerFunc: noop, priority: 7, accept: true})
	require.NoError(t, err)
	_, err = b.Subscribe("b", "x", prioritizedHandler{HandlerFunc: noop, priority: 9, accept: false})
	require.NoError(t, err)
	_, err = b.Subscribe("c", "x", noop, WithFilter(func(m *Message) bool { return m.Payload == "keep" }))
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "x", "drop", WithSource("s"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, high, res.Results[0].SubscriptionID)

	res, err = b.Publish(context.Background(), "x", "keep", WithSource("s"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
}

func TestBus_Target(t *testing.T) {
	b := newTestBus(t, testConfig())
	rec := &recorder{}
	_, err := b.Subscribe("alpha", "ping", rec.handler("alpha"))
	require.NoError(t, err)
	_, err = b.Subscribe("beta", "ping", rec.handler("beta"))
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "ping", nil,
		WithSource("x"), WithTarget("beta"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	assert.Equal(t, []string{"beta:ping"}, rec.snapshot())
}

func TestBus_QueueEviction(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	m := metric.NewMetrics()
	b := newTestBus(t, cfg, WithMetrics(m))

	first, err := b.Publish(context.Background(), "normal", nil, WithSource("x"))
	require.NoError(t, err)
	require.Equal(t, 1, b.QueueDepth())

	rec := &recorder{}
	_, err = b.Subscribe("svc", "*", rec.handler("h"))
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "critical", nil, WithSource("x"), WithPriority(PriorityCritical))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"h:critical"}, rec.snapshot())
	assert.Equal(t, 0, b.QueueDepth(), "the normal message was evicted")
	assert.Equal(t, int64(1), b.Stats().Evicted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueEvictions))

	_, ok := b.History(first.MessageID)
	assert.True(t, ok, "evicted messages stay in history")
}

func TestBus_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	cfg.SyncPriority = PriorityEmergency
	b := newTestBus(t, cfg)

	_, err := b.Publish(context.Background(), "high", nil, WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "low", nil, WithSource("x"), WithPriority(PriorityLow))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrQueueFull)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 1, b.QueueDepth())
}

func TestBus_ExpiredWhileQueued(t *testing.T) {
	b := newTestBus(t, testConfig())
	rec := &recorder{}
	_, err := b.Subscribe("svc", "*", rec.handler("h"))
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "stale", nil, WithSource("x"), WithTTL(20*time.Millisecond))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool { return b.Stats().Expired == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, int64(0), b.Stats().Delivered)
}

func TestBus_HandlerTimeoutAndPanic(t *testing.T) {
	b := newTestBus(t, testConfig())
	_, err := b.Subscribe("slow", "work", HandlerFunc(func(ctx context.Context, _ *Message) (any, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	}), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	_, err = b.Subscribe("crash", "work", HandlerFunc(func(context.Context, *Message) (any, error) {
		panic("handler bug")
	}))
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "work", nil, WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	require.Equal(t, 2, res.Failed)

	byComponent := map[string]error{}
	for _, r := range res.Results {
		byComponent[r.ComponentID] = r.Err
	}
	assert.ErrorIs(t, byComponent["slow"], errors.ErrHandlerTimeout)
	assert.Contains(t, byComponent["crash"].Error(), "handler bug")
}

func TestBus_HandlerRetries(t *testing.T) {
	b := newTestBus(t, testConfig())
	var calls atomic.Int32
	id, err := b.Subscribe("flaky", "work", HandlerFunc(func(context.Context, *Message) (any, error) {
		if calls.Add(1) < 3 {
			return nil, stderrors.New("not yet")
		}
		return "ok", nil
	}), WithMaxRetries(2), WithRetryDelay(time.Millisecond), WithAcknowledge())
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "work", nil, WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Results[0].Attempts)
	assert.Equal(t, "ok", res.Results[0].Value)

	stats, err := b.SubscriptionStats(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Received)
	assert.Equal(t, int64(1), stats.Acknowledged)
}

func TestBus_RequestRespond(t *testing.T) {
	b := newTestBus(t, testConfig())
	_, err := b.Subscribe("pricing", "pricing.quote", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return b.Respond(ctx, msg, msg.Payload.(int)*2, WithSource("pricing"))
	}))
	require.NoError(t, err)
	before := b.Stats().Subscriptions

	reply, err := b.Request(context.Background(), "pricing.quote", 21, time.Second, WithSource("shop"))
	require.NoError(t, err)
	assert.Equal(t, 42, reply)
	assert.Equal(t, before, b.Stats().Subscriptions, "reply subscription is removed")
}

func TestBus_RequestPrefersInlineReplyOverTimeout(t *testing.T) {
	b := newTestBus(t, testConfig())
	_, err := b.Subscribe("slow", "slow.quote", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return b.Respond(ctx, msg, "late", WithSource("slow"))
	}))
	require.NoError(t, err)

	// High priority is delivered inline, so the reply is in before Publish
	// returns even though the timeout has already passed.
	for i := 0; i < 10; i++ {
		reply, err := b.Request(context.Background(), "slow.quote", i, 5*time.Millisecond, WithSource("shop"))
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, "late", reply)
	}
}

func TestBus_RequestTimeout(t *testing.T) {
	b := newTestBus(t, testConfig())
	before := b.Stats().Subscriptions

	_, err := b.Request(context.Background(), "nobody.home", nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRequestTimeout)
	assert.Equal(t, before, b.Stats().Subscriptions)
}

func TestBus_RespondWithoutReplyAddress(t *testing.T) {
	b := newTestBus(t, testConfig())
	_, err := b.Respond(context.Background(), &Message{ID: "1", Type: "x"}, nil)
	assert.ErrorIs(t, err, errors.ErrNoReplyAddress)
}

func TestBus_UnsubscribeComponent(t *testing.T) {
	b := newTestBus(t, testConfig())
	noop := HandlerFunc(func(context.Context, *Message) (any, error) { return nil, nil })

	_, err := b.Subscribe("svc", "a", noop)
	require.NoError(t, err)
	keep, err := b.Subscribe("svc", "b", noop, WithPersistent())
	require.NoError(t, err)
	other, err := b.Subscribe("other", "a", noop)
	require.NoError(t, err)

	assert.Equal(t, 1, b.UnsubscribeComponent("svc"))
	assert.Equal(t, 2, b.Stats().Subscriptions)

	require.NoError(t, b.Unsubscribe(other))
	assert.ErrorIs(t, b.Unsubscribe(other), errors.ErrUnknownSubscription)
	_, err = b.SubscriptionStats(keep)
	assert.NoError(t, err)
}

func TestBus_ReplayDeadLetter(t *testing.T) {
	b := newTestBus(t, testConfig())
	var fail atomic.Bool
	fail.Store(true)
	_, err := b.Subscribe("svc", "work", HandlerFunc(func(context.Context, *Message) (any, error) {
		if fail.Load() {
			return nil, stderrors.New("down")
		}
		return nil, nil
	}))
	require.NoError(t, err)

	res, err := b.Publish(context.Background(), "work", nil, WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Len(t, b.DeadLetters(), 1)

	fail.Store(false)
	replayed, err := b.ReplayDeadLetter(context.Background(), res.MessageID)
	require.NoError(t, err)
	assert.True(t, replayed.Success)
	assert.Equal(t, res.MessageID, replayed.MessageID)
	assert.Empty(t, b.DeadLetters())

	_, err = b.ReplayDeadLetter(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrInvalidMessage)
}

func TestBus_DisabledDeadLetterQueue(t *testing.T) {
	cfg := testConfig()
	cfg.EnableDeadLetterQueue = false
	b := newTestBus(t, cfg)
	_, err := b.Subscribe("svc", "work", HandlerFunc(func(context.Context, *Message) (any, error) {
		return nil, stderrors.New("down")
	}))
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "work", nil, WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	assert.Empty(t, b.DeadLetters())
}

func TestBus_Shutdown(t *testing.T) {
	cfg := testConfig()
	cfg.SyncPriority = PriorityEmergency
	b, err := New(cfg)
	require.NoError(t, err)

	rec := &recorder{}
	_, err = b.Subscribe("svc", "*", rec.handler("h"))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = b.Publish(ctx, "low", nil, WithSource("x"), WithPriority(PriorityLow))
	require.NoError(t, err)
	_, err = b.Publish(ctx, "high", nil, WithSource("x"), WithPriority(PriorityHigh))
	require.NoError(t, err)
	_, err = b.Publish(ctx, "critical", nil, WithSource("x"), WithPriority(PriorityCritical))
	require.NoError(t, err)

	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, []string{"h:critical", "h:high"}, rec.snapshot(), "only High and above are drained")
	assert.Equal(t, 0, b.QueueDepth())
	assert.Equal(t, 0, b.Stats().Subscriptions)

	require.NoError(t, b.Shutdown(ctx), "shutdown is idempotent")

	_, err = b.Publish(ctx, "late", nil, WithSource("x"))
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, b.Start(ctx), errors.ErrShuttingDown)
}

func TestBus_ConcurrentShutdown(t *testing.T) {
	b, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Shutdown(context.Background()))
		}()
	}
	wg.Wait()
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"queue size", func(c *Config) { c.MaxQueueSize = 0 }},
		{"history size", func(c *Config) { c.HistorySize = 0 }},
		{"dead letter size", func(c *Config) { c.DeadLetterSize = 0 }},
		{"retention", func(c *Config) { c.MessageRetention = 0 }},
		{"dispatch interval", func(c *Config) { c.DispatchInterval = 0 }},
		{"sweep probability", func(c *Config) { c.SweepProbability = 2 }},
		{"sync priority", func(c *Config) { c.SyncPriority = Priority(-1) }},
		{"handler timeout", func(c *Config) { c.DefaultHandlerTimeout = 0 }},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)

			_, err = New(cfg)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestPriority_Text(t *testing.T) {
	for p := PriorityLow; p <= PriorityEmergency; p++ {
		text, err := p.MarshalText()
		require.NoError(t, err)

		var parsed Priority
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, p, parsed)
	}

	_, err := ParsePriority("urgent")
	assert.Error(t, err)
	assert.Equal(t, "priority(9)", Priority(9).String())
}
