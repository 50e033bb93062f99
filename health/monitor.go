package health

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/component"
	"github.com/c360/smoothsail/errors"
	"github.com/c360/smoothsail/metric"
)

// Issue codes raised by the monitor itself.
const (
	IssueCheckFailed = "HEALTH_CHECK_FAILED"
	IssueSlowCheck   = "SLOW_HEALTH_CHECK"
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records health results on metrics.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithPublisher sends alerts and recovery events to p.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// WithRecoverer sets what restarts failing components.
func WithRecoverer(r Recoverer) Option {
	return func(m *Monitor) { m.recoverer = r }
}

// WithCollector enables resource collection with c.
func WithCollector(c Collector) Option {
	return func(m *Monitor) { m.collector = c }
}

// SystemHealth is the aggregate view over all tracked components.
type SystemHealth struct {
	Status     Status            `json:"status"`
	Counts     map[string]int    `json:"counts"`
	Components map[string]Status `json:"components"`
	Resources  *ResourceUsage    `json:"resources,omitempty"`
	CheckedAt  time.Time         `json:"checked_at,omitempty"`
}

// Monitor polls components, classifies their health, raises alerts and
// triggers recovery.
type Monitor struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *metric.Metrics
	publisher Publisher
	recoverer Recoverer
	collector Collector
	limiters  resourceLimiters
	now       func() time.Time

	mu        sync.RWMutex
	records   map[string]*record
	system    Status
	checkedAt time.Time
	resources *ResourceUsage

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

// New creates a monitor.
func New(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Monitor", "New", "config validation")
	}
	m := &Monitor{
		cfg:      cfg,
		logger:   slog.Default(),
		limiters: newResourceLimiters(cfg.AlertRateLimit),
		now:      time.Now,
		records:  make(map[string]*record),
		system:   StatusHealthy,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "health-monitor")
	return m, nil
}

// RegisterComponent starts tracking c as Healthy with score 100.
func (m *Monitor) RegisterComponent(c component.HealthChecker) error {
	if c == nil || c.ID() == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: component id is required", errors.ErrInvalidComponent),
			"Monitor", "RegisterComponent", "component validation")
	}
	id := c.ID()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[id]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDuplicateComponent, id),
			"Monitor", "RegisterComponent", "id uniqueness check")
	}
	m.records[id] = newRecord(c, m.cfg.HistoryRetention)
	m.logger.Debug("component registered", "component_id", id)
	return nil
}

// UnregisterComponent stops tracking id and discards its record.
func (m *Monitor) UnregisterComponent(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownComponent, id),
			"Monitor", "UnregisterComponent", "component lookup")
	}
	delete(m.records, id)
	m.system = m.aggregateLocked()
	return nil
}

// SetAlertThresholds replaces the alert thresholds.
func (m *Monitor) SetAlertThresholds(t AlertThresholds) error {
	if err := t.Validate(); err != nil {
		return errors.WrapInvalid(err, "Monitor", "SetAlertThresholds", "threshold validation")
	}
	m.mu.Lock()
	m.cfg.AlertThresholds = t
	m.mu.Unlock()
	return nil
}

// Start runs the poll loop and, when a collector is set, the resource loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Monitor", "Start", "state check")
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.loop(ctx, m.cfg.CheckInterval, func(ctx context.Context) { m.CheckNow(ctx) })

	if m.collector != nil && m.cfg.ResourceInterval > 0 {
		m.wg.Add(1)
		go m.loop(ctx, m.cfg.ResourceInterval, func(ctx context.Context) { _, _ = m.CheckResources(ctx) })
	}

	m.logger.Info("health monitor started",
		"check_interval", m.cfg.CheckInterval, "resource_interval", m.cfg.ResourceInterval)
	return nil
}

// Stop ends the loops and waits for them, or for ctx. Safe to call more than once.
func (m *Monitor) Stop(ctx context.Context) error {
	m.lifecycle.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.lifecycle.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("health monitor stopped")
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Monitor", "Stop", "wait for loops")
	}
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// CheckNow runs one poll cycle over every tracked component, checking them
// concurrently, and returns the aggregate status.
func (m *Monitor) CheckNow(ctx context.Context) Status {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			m.checkComponent(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	previous := m.system
	m.system = m.aggregateLocked()
	m.checkedAt = m.now()
	system := m.system
	m.mu.Unlock()

	m.metrics.RecordSystemHealth(int(system))
	if system != previous {
		m.logger.Info("system health changed", "from", previous.String(), "to", system.String())
	}
	return system
}

func (m *Monitor) checkComponent(ctx context.Context, id string) {
	m.mu.Lock()
	r, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	inFlight := r.checking
	if !inFlight {
		r.checking = true
	}
	m.mu.Unlock()

	start := time.Now()
	var report component.HealthReport
	var status Status
	if inFlight {
		// The previous check has not returned yet; it counts as a failure.
		report, status = failedReport("previous health check still running"), StatusOffline
	} else {
		report, status = m.runCheck(ctx, r)
	}
	took := time.Since(start)

	m.mu.RLock()
	thresholds := m.cfg.AlertThresholds
	m.mu.RUnlock()
	if !inFlight && status != StatusOffline && thresholds.ResponseTime > 0 && took > thresholds.ResponseTime {
		report.Issues = append(report.Issues, component.Issue{
			Code:     IssueSlowCheck,
			Severity: component.SeverityMedium,
			Message:  fmt.Sprintf("health check took %s, limit %s", took.Round(time.Millisecond), thresholds.ResponseTime),
		})
		report.Recommendations = append(report.Recommendations, "investigate slow health check")
	}

	m.mu.Lock()
	if m.records[id] != r {
		m.mu.Unlock()
		return
	}
	r.apply(status, report, m.now(), took)
	snap := r.snapshot(id)
	m.mu.Unlock()

	m.metrics.RecordHealth(id, snap.Score, int(snap.Status), took)
	m.logger.Debug("health checked", "component_id", id, "status", snap.Status.String(),
		"score", snap.Score, "trend", snap.Trend.String(), "duration_ms", took.Milliseconds())

	if snap.Status == StatusHealthy {
		return
	}
	if m.cfg.EnableAlerts {
		m.raiseAlert(ctx, Alert{
			ComponentID:     id,
			Status:          snap.Status,
			Score:           snap.Score,
			Trend:           snap.Trend,
			Issues:          snap.Issues,
			Recommendations: snap.Recommendations,
			FailureCount:    snap.FailureCount,
			Timestamp:       snap.LastCheck,
		})
	}
	if m.cfg.AutoRecovery && snap.FailureCount >= m.cfg.FailureThreshold {
		m.attemptRecovery(ctx, id)
	}
}

// runCheck calls the component's HealthCheck bounded by CheckTimeout. The
// in-flight flag is cleared when the call itself returns, so an abandoned
// call still blocks the next poll of the same component.
func (m *Monitor) runCheck(ctx context.Context, r *record) (component.HealthReport, Status) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	type outcome struct {
		report component.HealthReport
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			m.mu.Lock()
			r.checking = false
			m.mu.Unlock()
		}()
		defer func() {
			if p := recover(); p != nil {
				m.logger.Error("health check panicked", "component_id", r.checker.ID(),
					"panic", p, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("health check panic: %v", p)}
			}
		}()
		report, err := r.checker.HealthCheck(ctx)
		done <- outcome{report: report, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = fmt.Errorf("%w after %s", errors.ErrHealthCheckTimeout, m.cfg.CheckTimeout)
	}
	if out.err != nil {
		return failedReport(out.err.Error()), StatusOffline
	}

	report := out.report
	report.Score = component.ClampScore(report.Score)
	report.Issues = sanitizeIssues(report.Issues)
	return report, statusFor(report)
}

func failedReport(reason string) component.HealthReport {
	return component.HealthReport{
		Healthy: false,
		Score:   0,
		Issues: []component.Issue{{
			Code:     IssueCheckFailed,
			Severity: component.SeverityCritical,
			Message:  sanitize(reason),
		}},
		Recommendations: []string{"check component logs", "verify component dependencies are reachable"},
	}
}

// attemptRecovery asks the recoverer to restart id unless the previous
// attempt is within RecoveryCooldown. The attempt time is recorded before
// the restart, whatever its outcome.
func (m *Monitor) attemptRecovery(ctx context.Context, id string) {
	if m.recoverer == nil {
		return
	}

	now := m.now()
	m.mu.Lock()
	r, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if !r.lastRecovery.IsZero() && now.Sub(r.lastRecovery) < m.cfg.RecoveryCooldown {
		m.mu.Unlock()
		m.logger.Debug("recovery skipped, in cooldown", "component_id", id)
		return
	}
	r.lastRecovery = now
	failures := r.failureCount
	m.mu.Unlock()

	m.metrics.RecordRecoveryAttempt(id, "health")
	m.logger.Info("attempting recovery", "component_id", id, "failure_count", failures)

	err := m.recoverer.RestartComponent(ctx, id)
	event := RecoveryEvent{ComponentID: id, FailureCount: failures, Success: err == nil, Timestamp: now}
	if err != nil {
		event.Error = sanitize(err.Error())
		m.logger.Error("recovery failed", "component_id", id, "error", err)
	}
	m.publish(ctx, RecoveryMessageType, event, bus.PriorityHigh)
}

func (m *Monitor) aggregateLocked() Status {
	worst := StatusHealthy
	for _, r := range m.records {
		worst = worst.Worse(r.status)
	}
	return worst
}

// Record returns a snapshot of one component's record.
func (m *Monitor) Record(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownComponent, id),
			"Monitor", "Record", "component lookup")
	}
	return r.snapshot(id), nil
}

// Records returns snapshots of every record, sorted by component id.
func (m *Monitor) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for id, r := range m.records {
		out = append(out, r.snapshot(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out
}

// SystemStatus returns the aggregate from the last poll cycle.
func (m *Monitor) SystemStatus() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sh := SystemHealth{
		Status:     m.system,
		Counts:     make(map[string]int),
		Components: make(map[string]Status, len(m.records)),
		CheckedAt:  m.checkedAt,
	}
	for id, r := range m.records {
		sh.Components[id] = r.status
		sh.Counts[r.status.String()]++
	}
	if m.resources != nil {
		res := *m.resources
		sh.Resources = &res
	}
	return sh
}
