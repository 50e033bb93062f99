package dependency

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/metric"
)

type closer struct {
	name  string
	order *[]string
	mu    *sync.Mutex
	err   error
}

func (c *closer) Shutdown(context.Context) error {
	c.mu.Lock()
	*c.order = append(*c.order, c.name)
	c.mu.Unlock()
	return c.err
}

func valueFactory(v any) Factory {
	return func(context.Context, ...any) (any, error) { return v, nil }
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		binding Binding
		target  error
	}{
		{"empty token", Binding{Factory: valueFactory(1)}, errors.ErrInvalidBinding},
		{"nil factory", Binding{Token: "a"}, errors.ErrInvalidBinding},
		{"negative priority", Binding{Token: "a", Factory: valueFactory(1), Priority: -1}, errors.ErrInvalidBinding},
		{"empty dependency", Binding{Token: "a", Factory: valueFactory(1), Dependencies: []string{""}}, errors.ErrInvalidBinding},
		{"duplicate dependency", Binding{Token: "a", Factory: valueFactory(1), Dependencies: []string{"b", "b"}}, errors.ErrInvalidBinding},
		{"empty tag", Binding{Token: "a", Factory: valueFactory(1), Tags: []string{""}}, errors.ErrInvalidBinding},
		{"self dependency", Binding{Token: "a", Factory: valueFactory(1), Dependencies: []string{"a"}}, errors.ErrCircularDependency},
		{"valid", Binding{Token: "a", Factory: valueFactory(1), Dependencies: []string{"later"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.binding)
			if tt.target == nil {
				require.NoError(t, err)
				assert.True(t, r.Has(tt.binding.Token))
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, errors.IsInvalid(err))
			assert.Empty(t, r.Tokens())
		})
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Binding{Token: "db", Factory: valueFactory(1)}))

	err := r.Register(Binding{Token: "db", Factory: valueFactory(2)})
	assert.ErrorIs(t, err, errors.ErrDuplicateToken)
}

func TestRegistry_RegisterCycleLeavesRegistryUnchanged(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Binding{Token: "a", Factory: valueFactory(1), Dependencies: []string{"b"}}))
	require.NoError(t, r.Register(Binding{Token: "b", Factory: valueFactory(1), Dependencies: []string{"c"}}))

	err := r.Register(Binding{Token: "c", Factory: valueFactory(1), Dependencies: []string{"a"}})
	require.Error(t, err)

	var cycle *errors.CircularDependencyError
	require.True(t, stderrors.As(err, &cycle))
	assert.Equal(t, []string{"c", "a", "b", "c"}, cycle.Path)
	assert.False(t, r.Has("c"))
	assert.Equal(t, []string{"a", "b"}, r.Tokens())
}

func TestRegistry_ResolveOrderAndDependencies(t *testing.T) {
	r := NewRegistry()
	var calls []string
	var mu sync.Mutex
	record := func(name string, v any) Factory {
		return func(_ context.Context, deps ...any) (any, error) {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			if len(deps) == 0 {
				return v, nil
			}
			return deps, nil
		}
	}

	require.NoError(t, r.Register(Binding{Token: "config", Factory: record("config", "cfg"), Singleton: true}))
	require.NoError(t, r.Register(Binding{Token: "logger", Factory: record("logger", "log"), Singleton: true}))
	require.NoError(t, r.Register(Binding{
		Token:        "service",
		Factory:      record("service", nil),
		Dependencies: []string{"logger", "config"},
	}))

	inst, err := r.Resolve(context.Background(), "service")
	require.NoError(t, err)
	assert.Equal(t, []any{"log", "cfg"}, inst)
	assert.Equal(t, []string{"logger", "config", "service"}, calls)
}

func TestRegistry_ResolveErrors(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Resolve(context.Background(), "missing")
		assert.ErrorIs(t, err, errors.ErrUnknownToken)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Binding{Token: "a", Factory: valueFactory(1), Dependencies: []string{"ghost"}}))
		_, err := r.Resolve(context.Background(), "a")
		assert.ErrorIs(t, err, errors.ErrUnknownToken)
	})

	t.Run("factory error", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Binding{Token: "a", Factory: func(context.Context, ...any) (any, error) {
			return nil, stderrors.New("boom")
		}}))
		_, err := r.Resolve(context.Background(), "a")
		assert.ErrorIs(t, err, errors.ErrInstantiation)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("nil result", func(t *testing.T) {
		r := NewRegistry()
		var typedNil *closer
		require.NoError(t, r.Register(Binding{Token: "a", Factory: valueFactory(typedNil)}))
		_, err := r.Resolve(context.Background(), "a")
		assert.ErrorIs(t, err, errors.ErrInstantiation)
	})

	t.Run("factory panic", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Binding{Token: "a", Singleton: true, Factory: func(context.Context, ...any) (any, error) {
			panic("kaboom")
		}}))
		_, err := r.Resolve(context.Background(), "a")
		assert.ErrorIs(t, err, errors.ErrInstantiation)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("cancelled context", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Binding{Token: "a", Factory: valueFactory(1)}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Resolve(ctx, "a")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRegistry_FailedSingletonIsRetried(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	require.NoError(t, r.Register(Binding{Token: "flaky", Singleton: true, Factory: func(context.Context, ...any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, stderrors.New("not yet")
		}
		return "ok", nil
	}}))

	_, err := r.Resolve(context.Background(), "flaky")
	require.Error(t, err)

	inst, err := r.Resolve(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, "ok", inst)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	const n = 50

	tests := []struct {
		name      string
		singleton bool
		expected  int32
	}{
		{"singleton built once", true, 1},
		{"transient built every time", false, n},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			var calls atomic.Int32
			require.NoError(t, r.Register(Binding{
				Token:     "svc",
				Singleton: tt.singleton,
				Factory: func(context.Context, ...any) (any, error) {
					calls.Add(1)
					time.Sleep(10 * time.Millisecond)
					return &struct{ n int }{}, nil
				},
			}))

			var wg sync.WaitGroup
			results := make([]any, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = r.Resolve(context.Background(), "svc")
				}(i)
			}
			wg.Wait()

			for i := 0; i < n; i++ {
				require.NoError(t, errs[i])
			}
			assert.Equal(t, tt.expected, calls.Load())
			if tt.singleton {
				for i := 1; i < n; i++ {
					assert.Same(t, results[0], results[i])
				}
			}
		})
	}
}

func TestRegistry_CancelledCallerDoesNotFailSharedBuild(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	building := make(chan struct{})
	require.NoError(t, r.Register(Binding{
		Token:     "db",
		Singleton: true,
		Factory: func(ctx context.Context, _ ...any) (any, error) {
			if calls.Add(1) == 1 {
				close(building)
			}
			select {
			case <-time.After(50 * time.Millisecond):
				return &struct{ n int }{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}))

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(short, "db")
		firstErr <- err
	}()
	<-building

	v, err := r.Resolve(context.Background(), "db")
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, int32(1), calls.Load())

	err = <-firstErr
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, errors.IsTransient(err))

	cached, err := r.Resolve(context.Background(), "db")
	require.NoError(t, err)
	assert.Same(t, v, cached)
}

func TestResolveAs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Binding{Token: "name", Factory: valueFactory("smoothsail")}))

	name, err := ResolveAs[string](context.Background(), r, "name")
	require.NoError(t, err)
	assert.Equal(t, "smoothsail", name)

	_, err = ResolveAs[int](context.Background(), r, "name")
	assert.ErrorIs(t, err, errors.ErrInvalidBinding)
}

func TestRegistry_TokensAndTags(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Binding{Token: "zeta", Factory: valueFactory(1), Priority: 1, Tags: []string{"core"}}))
	require.NoError(t, r.Register(Binding{Token: "alpha", Factory: valueFactory(1), Priority: 1}))
	require.NoError(t, r.Register(Binding{Token: "bus", Factory: valueFactory(1), Priority: 0, Tags: []string{"core"}}))

	assert.Equal(t, []string{"bus", "alpha", "zeta"}, r.Tokens())
	assert.Equal(t, []string{"bus", "zeta"}, r.ByTag("core"))
	assert.Empty(t, r.ByTag("none"))
}

func TestRegistry_Prewarm(t *testing.T) {
	r := NewRegistry()
	var singletons, transients atomic.Int32
	require.NoError(t, r.Register(Binding{Token: "s", Singleton: true, Factory: func(context.Context, ...any) (any, error) {
		singletons.Add(1)
		return 1, nil
	}}))
	require.NoError(t, r.Register(Binding{Token: "t", Factory: func(context.Context, ...any) (any, error) {
		transients.Add(1)
		return 1, nil
	}}))

	require.NoError(t, r.Prewarm(context.Background()))
	assert.Equal(t, int32(1), singletons.Load())
	assert.Equal(t, int32(0), transients.Load())
}

func TestRegistry_Shutdown(t *testing.T) {
	var order []string
	var mu sync.Mutex
	r := NewRegistry()

	require.NoError(t, r.Register(Binding{Token: "db", Singleton: true, Factory: valueFactory(&closer{name: "db", order: &order, mu: &mu})}))
	require.NoError(t, r.Register(Binding{
		Token:        "api",
		Singleton:    true,
		Dependencies: []string{"db"},
		Factory:      valueFactory(&closer{name: "api", order: &order, mu: &mu, err: stderrors.New("close failed")}),
	}))

	_, err := r.Resolve(context.Background(), "api")
	require.NoError(t, err)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, []string{"api", "db"}, order, "singletons release in reverse creation order")

	require.NoError(t, r.Shutdown(context.Background()), "shutdown is idempotent")
	assert.Len(t, order, 2)

	_, err = r.Resolve(context.Background(), "db")
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
	assert.True(t, errors.IsFatal(err))

	err = r.Register(Binding{Token: "late", Factory: valueFactory(1)})
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}

func TestRegistry_Metrics(t *testing.T) {
	m := metric.NewMetrics()
	r := NewRegistry(WithMetrics(m))
	require.NoError(t, r.Register(Binding{Token: "s", Singleton: true, Factory: valueFactory(1)}))

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "s")
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("s", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("s", "cached")))
}
