package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/c360/smoothsail/component"
	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/metric"
	"github.com/c360/smoothsail/pkg/retry"
)

const sourceName = "orchestrator"

type systemState int

const (
	stateIdle systemState = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
)

var stateNames = [...]string{"idle", "starting", "running", "stopping", "stopped"}

func (s systemState) String() string { return stateNames[s] }

type entry struct {
	comp      component.Component
	priority  int
	deps      []string
	status    component.Status
	startedAt time.Time
	lastError error

	restarts     int
	restarting   bool
	checking     bool
	lastHealth   *component.HealthReport
	lastHealthAt time.Time
	lastRecovery time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records lifecycle activity on m.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPublisher mirrors every event to the bus as an "orchestrator.<kind>" message.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithEventHandler receives every event synchronously.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) { o.onEvent = h }
}

// WithShutdownCoordinator replaces the default coordinator built from ShutdownTimeout.
func WithShutdownCoordinator(s *ShutdownCoordinator) Option {
	return func(o *Orchestrator) { o.shutdown = s }
}

// Orchestrator sequences component startup, health checks, restarts and shutdown.
type Orchestrator struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *metric.Metrics
	publisher Publisher
	onEvent   EventHandler
	shutdown  *ShutdownCoordinator

	mu         sync.RWMutex
	components map[string]*entry
	graph      map[string][]string // id -> declared dependency ids
	order      []string
	state      systemState

	ready        chan struct{}
	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

// New creates an orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Orchestrator", "New", "config validation")
	}

	o := &Orchestrator{
		cfg:        cfg,
		logger:     slog.Default(),
		components: make(map[string]*entry),
		graph:      make(map[string][]string),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", sourceName)
	if o.shutdown == nil {
		o.shutdown = NewShutdownCoordinator(cfg.ShutdownTimeout, o.logger)
	}
	return o, nil
}

// RegisterComponent adds c in the Uninitialized state.
func (o *Orchestrator) RegisterComponent(c component.Component) error {
	if c == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil component", errors.ErrInvalidComponent),
			"Orchestrator", "RegisterComponent", "component validation")
	}
	id := c.ID()
	deps := c.Dependencies()
	if err := validateDeclaration(id, c.Priority(), deps); err != nil {
		return errors.WrapInvalid(err, "Orchestrator", "RegisterComponent", "component validation")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state >= stateStopping {
		return errors.WrapFatal(errors.ErrShuttingDown, "Orchestrator", "RegisterComponent", "state check")
	}
	if _, exists := o.components[id]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDuplicateComponent, id),
			"Orchestrator", "RegisterComponent", "id uniqueness check")
	}

	o.components[id] = &entry{
		comp:     c,
		priority: c.Priority(),
		deps:     slices.Clone(deps),
		status:   component.StatusUninitialized,
	}
	o.graph[id] = slices.Clone(deps)
	o.metrics.RecordComponentStatus(id, int(component.StatusUninitialized))

	o.logger.Debug("component registered", "component_id", id,
		"priority", c.Priority(), "dependencies", deps)
	return nil
}

func validateDeclaration(id string, priority int, deps []string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", errors.ErrInvalidComponent)
	}
	if priority < 0 {
		return fmt.Errorf("%w: %s has negative priority %d", errors.ErrInvalidComponent, id, priority)
	}
	seen := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		switch {
		case dep == "":
			return fmt.Errorf("%w: %s declares an empty dependency", errors.ErrInvalidComponent, id)
		case dep == id:
			return fmt.Errorf("%w: %s depends on itself", errors.ErrInvalidComponent, id)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("%w: %s declares %s twice", errors.ErrInvalidComponent, id, dep)
		}
		seen[dep] = struct{}{}
	}
	return nil
}

// UnregisterComponent removes a component that is Uninitialized, Stopped or in Error.
func (o *Orchestrator) UnregisterComponent(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.components[id]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownComponent, id),
			"Orchestrator", "UnregisterComponent", "component lookup")
	}
	switch e.status {
	case component.StatusUninitialized, component.StatusStopped, component.StatusError:
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, id, e.status),
			"Orchestrator", "UnregisterComponent", "status check")
	}

	delete(o.components, id)
	delete(o.graph, id)
	o.order = slices.DeleteFunc(o.order, func(s string) bool { return s == id })
	o.metrics.ForgetComponent(id)
	return nil
}

func (o *Orchestrator) computeOrderLocked() ([]string, error) {
	nodes := make(map[string]node, len(o.components))
	for id, e := range o.components {
		nodes[id] = node{id: id, priority: e.priority, deps: o.graph[id]}
	}
	return startupOrder(nodes)
}

// StartupOrder returns the order computed by the last StartSystem, or the
// order the current registrations would produce.
func (o *Orchestrator) StartupOrder() ([]string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.order != nil {
		return slices.Clone(o.order), nil
	}
	order, err := o.computeOrderLocked()
	if err != nil {
		return nil, errors.WrapInvalid(err, "Orchestrator", "StartupOrder", "dependency graph")
	}
	return order, nil
}

// StartSystem starts every component in dependency order and then runs the
// health loop. A component that exhausts its retries aborts the call; the
// components already running are left for StopSystem.
func (o *Orchestrator) StartSystem(ctx context.Context) error {
	o.mu.Lock()
	if o.state != stateIdle {
		state := o.state
		o.mu.Unlock()
		if state >= stateStopping {
			return errors.WrapFatal(errors.ErrShuttingDown, "Orchestrator", "StartSystem", "state check")
		}
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Orchestrator", "StartSystem", "state check")
	}
	order, err := o.computeOrderLocked()
	if err != nil {
		o.mu.Unlock()
		return errors.WrapInvalid(err, "Orchestrator", "StartSystem", "startup order")
	}
	o.order = order
	o.state = stateStarting
	o.mu.Unlock()

	o.logger.Info("starting system", "components", len(order), "order", order)
	start := time.Now()

	for _, id := range order {
		if o.stopping() {
			return errors.WrapFatal(errors.ErrShuttingDown, "Orchestrator", "StartSystem", "state check")
		}
		if err := o.startWithRetries(ctx, id); err != nil {
			if stderrors.Is(err, errors.ErrShuttingDown) {
				return err
			}
			o.logger.Error("system startup aborted", "component_id", id, "error", err)
			return errors.Wrap(err, "Orchestrator", "StartSystem", "start "+id)
		}
	}

	o.mu.Lock()
	if o.state != stateStarting {
		o.mu.Unlock()
		return errors.WrapFatal(errors.ErrShuttingDown, "Orchestrator", "StartSystem", "state check")
	}
	o.state = stateRunning
	if o.cfg.HealthCheckInterval > 0 {
		hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		o.healthCancel = cancel
		o.healthDone = make(chan struct{})
		go o.healthLoop(hctx, o.healthDone)
	}
	close(o.ready)
	o.mu.Unlock()

	o.logger.Info("system ready", "components", len(order),
		"duration_ms", time.Since(start).Milliseconds())
	o.emit(ctx, Event{Kind: EventSystemReady})
	return nil
}

func (o *Orchestrator) stopping() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state >= stateStopping
}

// Ready is closed once StartSystem has brought every component to Running.
func (o *Orchestrator) Ready() <-chan struct{} {
	return o.ready
}

func (o *Orchestrator) startWithRetries(ctx context.Context, id string) error {
	e, err := o.lookup(id, "StartSystem")
	if err != nil {
		return err
	}

	start := time.Now()
	o.setStatus(ctx, id, component.StatusInitializing, nil)
	if err := o.waitForDependencies(ctx, id, e.deps); err != nil {
		o.setStatus(ctx, id, component.StatusError, err)
		return err
	}

	cfg := retry.LinearConfig(o.cfg.MaxStartupRetries+1, o.cfg.RetryBaseDelay)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		o.logger.Warn("component start failed, retrying",
			"component_id", id, "attempt", attempt, "delay", delay, "error", err)
		o.emit(ctx, Event{Kind: EventStartFailed, ComponentID: id, Attempt: attempt, Error: err.Error()})
	}

	attempt := 0
	err = retry.Do(ctx, cfg, func() error {
		attempt++
		if attempt > 1 {
			if o.stopping() {
				return retry.NonRetryable(errors.WrapFatal(errors.ErrShuttingDown, "Orchestrator", "StartComponent", "state check"))
			}
			o.setStatus(ctx, id, component.StatusInitializing, nil)
		}
		if err := o.initialize(ctx, e.comp); err != nil {
			o.setStatus(ctx, id, component.StatusError, err)
			return err
		}
		return nil
	})
	if err != nil {
		o.emit(ctx, Event{Kind: EventStartFailed, ComponentID: id, Attempt: attempt, Error: err.Error()})
		return err
	}

	if err := o.markRunning(ctx, id); err != nil {
		return err
	}
	o.metrics.RecordStartupDuration(id, time.Since(start))
	o.logger.Info("component running", "component_id", id, "attempts", attempt,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// startOnce is the single-attempt start path used by restarts.
func (o *Orchestrator) startOnce(ctx context.Context, e *entry, id string) error {
	o.setStatus(ctx, id, component.StatusInitializing, nil)
	if err := o.waitForDependencies(ctx, id, e.deps); err != nil {
		o.setStatus(ctx, id, component.StatusError, err)
		return err
	}
	if err := o.initialize(ctx, e.comp); err != nil {
		o.setStatus(ctx, id, component.StatusError, err)
		return err
	}
	return o.markRunning(ctx, id)
}

func (o *Orchestrator) initialize(ctx context.Context, c component.Component) error {
	err := runBounded(ctx, o.cfg.StartupTimeout, errors.ErrStartupTimeout, c.Initialize)
	o.metrics.RecordStartAttempt(c.ID(), err == nil)
	return err
}

// waitForDependencies polls until every dependency is Running, for at most
// DependencyTimeout.
func (o *Orchestrator) waitForDependencies(ctx context.Context, id string, deps []string) error {
	if len(deps) == 0 {
		return nil
	}

	poll := func() (struct{}, error) {
		pending, err := o.pendingDependencies(id, deps)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if len(pending) > 0 {
			return struct{}{}, fmt.Errorf("%w: %s waiting for %v", errors.ErrDependencyTimeout, id, pending)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.cfg.DependencyPollInterval)),
		backoff.WithMaxElapsedTime(o.cfg.DependencyTimeout))
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrMissingDependency):
		return errors.WrapInvalid(err, "Orchestrator", "StartComponent", "dependency lookup")
	case ctx.Err() != nil:
		return errors.WrapTransient(ctx.Err(), "Orchestrator", "StartComponent", "dependency wait")
	case !stderrors.Is(err, errors.ErrDependencyTimeout):
		err = fmt.Errorf("%w: %w", errors.ErrDependencyTimeout, err)
	}
	return errors.WrapTransient(err, "Orchestrator", "StartComponent", "dependency wait")
}

func (o *Orchestrator) pendingDependencies(id string, deps []string) ([]string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var pending []string
	for _, dep := range deps {
		e, ok := o.components[dep]
		if !ok {
			return nil, &errors.MissingDependencyError{Component: id, Dependency: dep}
		}
		if e.status != component.StatusRunning {
			pending = append(pending, dep)
		}
	}
	return pending, nil
}

func (o *Orchestrator) lookup(id, method string) (*entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.components[id]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownComponent, id),
			"Orchestrator", method, "component lookup")
	}
	return e, nil
}

// markRunning promotes a component whose Initialize returned to Running.
// Once StopSystem has begun, the component is shut down again instead and
// ErrShuttingDown is returned.
func (o *Orchestrator) markRunning(ctx context.Context, id string) error {
	o.mu.Lock()
	e, ok := o.components[id]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	if o.state >= stateStopping {
		o.mu.Unlock()
		o.discardLateStart(ctx, e.comp)
		return errors.WrapFatal(errors.ErrShuttingDown, "Orchestrator", "StartComponent", "state check")
	}
	e.startedAt = time.Now()
	from := e.transition(component.StatusRunning, nil)
	o.mu.Unlock()

	o.statusChanged(ctx, id, from, component.StatusRunning, nil)
	return nil
}

// discardLateStart shuts down a component that finished initializing after
// the system began stopping.
func (o *Orchestrator) discardLateStart(ctx context.Context, c component.Component) {
	id := c.ID()
	o.logger.Warn("component finished starting during shutdown, stopping it", "component_id", id)

	ctx = context.WithoutCancel(ctx)
	if err := o.shutdown.Stop(ctx, c); err != nil {
		o.setStatus(ctx, id, component.StatusError, err)
		return
	}
	o.setStatus(ctx, id, component.StatusStopped, nil)
}

// transition sets the status and returns the previous one. Callers hold o.mu.
func (e *entry) transition(to component.Status, cause error) component.Status {
	from := e.status
	e.status = to
	if cause != nil {
		e.lastError = cause
	} else if to == component.StatusRunning {
		e.lastError = nil
	}
	return from
}

// setStatus records a transition and emits EventStatusChanged.
func (o *Orchestrator) setStatus(ctx context.Context, id string, to component.Status, cause error) {
	o.mu.Lock()
	e, ok := o.components[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	from := e.transition(to, cause)
	o.mu.Unlock()

	o.statusChanged(ctx, id, from, to, cause)
}

func (o *Orchestrator) statusChanged(ctx context.Context, id string, from, to component.Status, cause error) {
	if from == to {
		return
	}
	o.metrics.RecordComponentStatus(id, int(to))
	o.logger.Debug("component status changed", "component_id", id,
		"from", from.String(), "to", to.String())

	ev := Event{Kind: EventStatusChanged, ComponentID: id, From: from, To: to}
	if cause != nil {
		ev.Error = cause.Error()
	}
	o.emit(ctx, ev)
}

// RestartComponent shuts a component down and starts it again with a single
// attempt. A failure leaves the component in Error and is returned.
func (o *Orchestrator) RestartComponent(ctx context.Context, id string) error {
	o.mu.Lock()
	e, ok := o.components[id]
	switch {
	case !ok:
		o.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownComponent, id),
			"Orchestrator", "RestartComponent", "component lookup")
	case o.state == stateIdle:
		o.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Orchestrator", "RestartComponent", "state check")
	case o.state >= stateStopping:
		o.mu.Unlock()
		return errors.WrapFatal(errors.ErrShuttingDown, "Orchestrator", "RestartComponent", "state check")
	case e.restarting:
		o.mu.Unlock()
		return errors.WrapTransient(fmt.Errorf("%w: %s", errors.ErrRestartInProgress, id),
			"Orchestrator", "RestartComponent", "restart guard")
	}
	e.restarting = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		e.restarting = false
		o.mu.Unlock()
	}()

	o.logger.Info("restarting component", "component_id", id)

	o.setStatus(ctx, id, component.StatusStopping, nil)
	if err := o.shutdown.Stop(ctx, e.comp); err != nil {
		o.setStatus(ctx, id, component.StatusError, err)
		o.metrics.RecordRestart(id, false)
		return errors.Wrap(err, "Orchestrator", "RestartComponent", "shutdown "+id)
	}
	o.setStatus(ctx, id, component.StatusStopped, nil)

	if err := o.startOnce(ctx, e, id); err != nil {
		o.metrics.RecordRestart(id, false)
		return errors.Wrap(err, "Orchestrator", "RestartComponent", "start "+id)
	}

	o.mu.Lock()
	e.restarts++
	restarts := e.restarts
	o.mu.Unlock()

	o.metrics.RecordRestart(id, true)
	o.logger.Info("component restarted", "component_id", id, "restarts", restarts)
	o.emit(ctx, Event{Kind: EventRestarted, ComponentID: id, Attempt: restarts})
	return nil
}

// SetMaintenance moves a Running component into Maintenance, or back. The
// health loop skips components in maintenance.
func (o *Orchestrator) SetMaintenance(ctx context.Context, id string, on bool) error {
	e, err := o.lookup(id, "SetMaintenance")
	if err != nil {
		return err
	}

	from, to := component.StatusRunning, component.StatusMaintenance
	if !on {
		from, to = to, from
	}

	o.mu.RLock()
	current := e.status
	o.mu.RUnlock()
	if current != from {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s, not %s", errors.ErrInvalidState, id, current, from),
			"Orchestrator", "SetMaintenance", "status check")
	}
	o.setStatus(ctx, id, to, nil)
	return nil
}

func (o *Orchestrator) healthLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(o.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.checkComponents(ctx)
		}
	}
}

// checkComponents runs one health pass over the Running components, in parallel.
func (o *Orchestrator) checkComponents(ctx context.Context) {
	o.mu.Lock()
	var targets []string
	for id, e := range o.components {
		if e.status != component.StatusRunning || e.restarting {
			continue
		}
		if e.checking {
			o.logger.Debug("previous health check still running", "component_id", id)
			continue
		}
		e.checking = true
		targets = append(targets, id)
	}
	o.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range targets {
		g.Go(func() error {
			o.checkComponent(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) checkComponent(ctx context.Context, id string) {
	o.mu.RLock()
	e := o.components[id]
	o.mu.RUnlock()
	if e == nil {
		return
	}

	// The in-flight flag is cleared when the component's own call returns,
	// so a check abandoned at the timeout still blocks the next one.
	report, err := callBounded(ctx, o.cfg.HealthCheckTimeout, errors.ErrHealthCheckTimeout,
		func(ctx context.Context) (component.HealthReport, error) {
			defer func() {
				o.mu.Lock()
				e.checking = false
				o.mu.Unlock()
			}()
			return e.comp.HealthCheck(ctx)
		})

	now := time.Now()
	o.mu.Lock()
	if err == nil {
		r := report
		e.lastHealth = &r
	} else {
		e.lastHealth = &component.HealthReport{Healthy: false}
	}
	e.lastHealthAt = now
	o.mu.Unlock()

	switch {
	case err != nil:
		o.logger.Warn("health check failed", "component_id", id, "error", err)
		o.emit(ctx, Event{Kind: EventHealthCheckFailed, ComponentID: id, Error: err.Error()})
	case !report.Healthy:
		o.logger.Warn("component unhealthy", "component_id", id, "score", report.Score)
		o.emit(ctx, Event{Kind: EventHealthCheckFailed, ComponentID: id,
			Error: fmt.Sprintf("unhealthy: score %d", report.Score)})
	}

	if (err != nil || !report.Healthy) && o.cfg.AutoRecovery {
		o.handleUnhealthy(ctx, id)
	}
}

// handleUnhealthy restarts id unless it was already recovered within the cooldown.
func (o *Orchestrator) handleUnhealthy(ctx context.Context, id string) {
	if _, err := o.attemptRecovery(ctx, id, "orchestrator"); err != nil {
		o.logger.Error("automatic recovery failed", "component_id", id, "error", err)
	}
}

// attemptRecovery attempts a cooldown-gated restart and reports whether it ran.
func (o *Orchestrator) attemptRecovery(ctx context.Context, id, source string) (bool, error) {
	o.mu.Lock()
	e, ok := o.components[id]
	if !ok {
		o.mu.Unlock()
		return false, nil
	}
	now := time.Now()
	if !e.lastRecovery.IsZero() && now.Sub(e.lastRecovery) < o.cfg.RecoveryCooldown {
		o.mu.Unlock()
		o.logger.Debug("recovery skipped, in cooldown", "component_id", id,
			"since_last_ms", now.Sub(e.lastRecovery).Milliseconds())
		return false, nil
	}
	e.lastRecovery = now
	o.mu.Unlock()

	o.metrics.RecordRecoveryAttempt(id, source)
	o.emit(ctx, Event{Kind: EventRecoveryAttempted, ComponentID: id})
	return true, o.RestartComponent(ctx, id)
}

// StopSystem stops the health loop and shuts every started component down in
// reverse startup order. Calls after the first are no-ops.
func (o *Orchestrator) StopSystem(ctx context.Context) error {
	o.mu.Lock()
	if o.state >= stateStopping {
		o.mu.Unlock()
		return nil
	}
	o.state = stateStopping
	cancel, done := o.healthCancel, o.healthDone
	order := slices.Clone(o.order)
	if order == nil {
		if computed, err := o.computeOrderLocked(); err == nil {
			order = computed
		} else {
			for id := range o.components {
				order = append(order, id)
			}
			slices.Sort(order)
		}
	}
	o.mu.Unlock()

	o.logger.Info("stopping system")
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			o.logger.Warn("health loop did not stop before shutdown deadline")
		}
	}

	var targets []component.Component
	o.mu.RLock()
	for i := len(order) - 1; i >= 0; i-- {
		e, ok := o.components[order[i]]
		if !ok {
			continue
		}
		switch e.status {
		case component.StatusUninitialized, component.StatusStopped:
			continue
		}
		targets = append(targets, e.comp)
	}
	o.mu.RUnlock()

	for _, c := range targets {
		o.setStatus(ctx, c.ID(), component.StatusStopping, nil)
	}
	err := o.shutdown.StopAll(ctx, targets, func(id string, err error) {
		if err != nil {
			o.setStatus(ctx, id, component.StatusError, err)
			return
		}
		o.setStatus(ctx, id, component.StatusStopped, nil)
	})

	o.mu.Lock()
	o.state = stateStopped
	o.mu.Unlock()

	o.emit(ctx, Event{Kind: EventSystemStopped})
	if err != nil {
		o.logger.Error("system stopped with errors", "error", err)
		return errors.Wrap(err, "Orchestrator", "StopSystem", "component shutdown")
	}
	o.logger.Info("system stopped", "components", len(targets))
	return nil
}
