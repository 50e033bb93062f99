package dependency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/metric"
)

// Shutdowner is implemented by instances that release resources on registry shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for resolution traces and shutdown failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records resolutions on the given metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry stores bindings and resolves them.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string]*Binding
	instances map[string]any
	created   []string // singleton tokens in creation order
	closed    bool

	group   singleflight.Group
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		bindings:  make(map[string]*Binding),
		instances: make(map[string]any),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "dependency-registry")
	return r
}

// Register adds a binding. It fails without changing the registry when the
// token is taken, the binding is malformed, or the binding would close a cycle.
func (r *Registry) Register(b Binding) error {
	if err := b.validate(); err != nil {
		return errors.WrapInvalid(err, "Registry", "Register", "binding validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.WrapFatal(errors.ErrShuttingDown, "Registry", "Register", "registry state check")
	}
	if _, exists := r.bindings[b.Token]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDuplicateToken, b.Token),
			"Registry", "Register", "token uniqueness check")
	}
	if err := r.checkCycleLocked(&b); err != nil {
		return errors.WrapInvalid(err, "Registry", "Register", "cycle check")
	}

	r.bindings[b.Token] = b.clone()
	r.logger.Debug("binding registered", "token", b.Token, "singleton", b.Singleton,
		"dependencies", b.Dependencies)
	return nil
}

// checkCycleLocked walks the proposed binding's transitive dependencies through
// the registered bindings and fails if any path leads back to its token.
// Unregistered dependencies end the walk; they surface at Resolve.
func (r *Registry) checkCycleLocked(proposed *Binding) error {
	visited := make(map[string]bool)

	var visit func(token string, path []string) error
	visit = func(token string, path []string) error {
		if token == proposed.Token {
			return errors.NewCircularDependency(path, token)
		}
		if visited[token] {
			return nil
		}
		visited[token] = true

		b, ok := r.bindings[token]
		if !ok {
			return nil
		}
		next := append(path, token)
		for _, dep := range b.Dependencies {
			if err := visit(dep, next); err != nil {
				return err
			}
		}
		return nil
	}

	root := []string{proposed.Token}
	for _, dep := range proposed.Dependencies {
		if err := visit(dep, root); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the instance behind token, building its dependencies first.
func (r *Registry) Resolve(ctx context.Context, token string) (any, error) {
	return r.resolve(ctx, token, &resolutionContext{})
}

// ResolveAs resolves token and asserts the instance type.
func ResolveAs[T any](ctx context.Context, r *Registry, token string) (T, error) {
	var zero T
	inst, err := r.Resolve(ctx, token)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, errors.WrapInvalid(
			fmt.Errorf("%w: %s resolved to %T, not %T", errors.ErrInvalidBinding, token, inst, zero),
			"Registry", "ResolveAs", "type assertion")
	}
	return typed, nil
}

func (r *Registry) resolve(ctx context.Context, token string, rc *resolutionContext) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "Registry", "Resolve", "context check")
	}

	r.mu.RLock()
	closed := r.closed
	b, ok := r.bindings[token]
	inst, cached := r.instances[token]
	r.mu.RUnlock()

	if closed {
		return nil, errors.WrapFatal(errors.ErrShuttingDown, "Registry", "Resolve", "registry state check")
	}
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownToken, token),
			"Registry", "Resolve", "binding lookup")
	}
	if rc.contains(token) {
		return nil, errors.WrapInvalid(errors.NewCircularDependency(rc.path, token),
			"Registry", "Resolve", "resolution path check")
	}
	if cached {
		r.metrics.RecordResolution(token, "cached")
		return inst, nil
	}

	next := rc.child(token)
	if !b.Singleton {
		return r.build(ctx, b, next)
	}

	// The build is shared by concurrent callers; each caller's own ctx only
	// bounds its wait.
	buildCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(token, func() (any, error) {
		// Another caller may have finished between the cache read and here.
		r.mu.RLock()
		inst, cached := r.instances[token]
		r.mu.RUnlock()
		if cached {
			return inst, nil
		}

		inst, err := r.build(buildCtx, b, next)
		if err != nil {
			return nil, err
		}
		return inst, r.store(buildCtx, token, inst)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "Registry", "Resolve", "waiting for "+token)
	}
}

// build resolves the binding's dependencies in declaration order and invokes its factory.
func (r *Registry) build(ctx context.Context, b *Binding, rc *resolutionContext) (any, error) {
	start := time.Now()

	deps := make([]any, 0, len(b.Dependencies))
	for _, dep := range b.Dependencies {
		inst, err := r.resolve(ctx, dep, rc)
		if err != nil {
			return nil, err
		}
		deps = append(deps, inst)
	}

	inst, err := invoke(ctx, b.Factory, deps)
	if err != nil {
		r.metrics.RecordResolution(b.Token, "failed")
		return nil, errors.Wrap(fmt.Errorf("%w: %s: %w", errors.ErrInstantiation, b.Token, err),
			"Registry", "Resolve", "factory")
	}
	if isNil(inst) {
		r.metrics.RecordResolution(b.Token, "failed")
		return nil, errors.Wrap(fmt.Errorf("%w: %s factory returned nil", errors.ErrInstantiation, b.Token),
			"Registry", "Resolve", "factory")
	}

	r.metrics.RecordResolution(b.Token, "created")
	r.logger.Debug("dependency instantiated", "token", b.Token, "depth", rc.depth(),
		"duration_ms", time.Since(start).Milliseconds())
	return inst, nil
}

// store caches a singleton. If the registry shut down while it was being
// built, the instance is released instead.
func (r *Registry) store(ctx context.Context, token string, inst any) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.release(ctx, token, inst)
		return errors.WrapFatal(errors.ErrShuttingDown, "Registry", "Resolve", "caching "+token)
	}
	r.instances[token] = inst
	r.created = append(r.created, token)
	r.mu.Unlock()
	return nil
}

// invoke runs a factory, converting a panic into an error.
func invoke(ctx context.Context, f Factory, deps []any) (inst any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("factory panic: %v\n%s", p, debug.Stack())
		}
	}()
	return f(ctx, deps...)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Has reports whether a binding exists for token.
func (r *Registry) Has(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[token]
	return ok
}

// Tokens returns all registered tokens ordered by ascending priority, then token.
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(*Binding) bool { return true })
}

// ByTag returns the tokens carrying tag, ordered like Tokens.
func (r *Registry) ByTag(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(b *Binding) bool { return b.hasTag(tag) })
}

func (r *Registry) sortedLocked(keep func(*Binding) bool) []string {
	selected := make([]*Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		if keep(b) {
			selected = append(selected, b)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Priority != selected[j].Priority {
			return selected[i].Priority < selected[j].Priority
		}
		return selected[i].Token < selected[j].Token
	})

	tokens := make([]string, len(selected))
	for i, b := range selected {
		tokens[i] = b.Token
	}
	return tokens
}

// Prewarm resolves every singleton binding in priority order so construction
// failures surface at startup rather than on first use.
func (r *Registry) Prewarm(ctx context.Context) error {
	for _, token := range r.Tokens() {
		r.mu.RLock()
		b := r.bindings[token]
		r.mu.RUnlock()
		if b == nil || !b.Singleton {
			continue
		}
		if _, err := r.Resolve(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown releases every cached singleton in reverse creation order and
// clears the cache. Individual failures are logged, not returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	created := r.created
	instances := r.instances
	r.created = nil
	r.instances = make(map[string]any)
	r.mu.Unlock()

	for i := len(created) - 1; i >= 0; i-- {
		token := created[i]
		r.release(ctx, token, instances[token])
	}

	r.logger.Info("dependency registry shut down", "released", len(created))
	return nil
}

func (r *Registry) release(ctx context.Context, token string, inst any) {
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("shutdown panic: %v", p)
			}
		}()
		switch v := inst.(type) {
		case Shutdowner:
			err = v.Shutdown(ctx)
		case io.Closer:
			err = v.Close()
		}
	}()
	if err != nil {
		r.logger.Warn("singleton shutdown failed", "token", token, "error", err)
	}
}
