package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "smoothsail"

// Metrics contains all substrate-level metrics
type Metrics struct {
	// Dependency registry
	Resolutions *prometheus.CounterVec

	// Lifecycle orchestrator
	ComponentStatus  *prometheus.GaugeVec
	StartAttempts    *prometheus.CounterVec
	StartupDuration  *prometheus.HistogramVec
	Restarts         *prometheus.CounterVec
	RecoveryAttempts *prometheus.CounterVec

	// Message bus
	MessagesPublished *prometheus.CounterVec
	MessagesDelivered *prometheus.CounterVec
	HandlerDuration   *prometheus.HistogramVec
	QueueDepth        prometheus.Gauge
	QueueEvictions    prometheus.Counter
	MessagesExpired   prometheus.Counter
	DeadLetters       prometheus.Counter

	// Health monitor
	HealthScore         *prometheus.GaugeVec
	HealthStatus        *prometheus.GaugeVec
	HealthCheckDuration *prometheus.HistogramVec
	Alerts              *prometheus.CounterVec
	SystemHealth        prometheus.Gauge
	ResourceUsage       *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all substrate metrics
func NewMetrics() *Metrics {
	return &Metrics{
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dependency",
				Name:      "resolutions_total",
				Help:      "Dependency resolutions by token and result (created, cached, failed)",
			},
			[]string{"token", "result"},
		),

		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=uninitialized, 1=initializing, 2=running, 3=stopping, 4=stopped, 5=error, 6=maintenance)",
			},
			[]string{"component"},
		),

		StartAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "component",
				Name:      "start_attempts_total",
				Help:      "Component initialize attempts by result",
			},
			[]string{"component", "result"},
		),

		StartupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "component",
				Name:      "startup_duration_seconds",
				Help:      "Time from first initialize attempt to Running",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),

		Restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "component",
				Name:      "restarts_total",
				Help:      "Component restarts by result",
			},
			[]string{"component", "result"},
		),

		RecoveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "component",
				Name:      "recovery_attempts_total",
				Help:      "Automatic recovery attempts by initiating subsystem",
			},
			[]string{"component", "source"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "published_total",
				Help:      "Messages published by priority and delivery mode (sync, async)",
			},
			[]string{"priority", "mode"},
		),

		MessagesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "deliveries_total",
				Help:      "Handler invocations by subscribing component and result",
			},
			[]string{"component", "result"},
		),

		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "handler_duration_seconds",
				Help:      "Message handler latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "queue_depth",
				Help:      "Messages waiting for asynchronous dispatch",
			},
		),

		QueueEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "queue_evictions_total",
				Help:      "Low priority messages evicted to make room in a full queue",
			},
		),

		MessagesExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "expired_total",
				Help:      "Queued messages dropped after expiring",
			},
		),

		DeadLetters: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "dead_letters_total",
				Help:      "Messages moved to the dead-letter queue",
			},
		),

		HealthScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "score",
				Help:      "Latest component health score (0-100)",
			},
			[]string{"component"},
		),

		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Component health status (0=healthy, 1=warning, 2=degraded, 3=critical, 4=offline)",
			},
			[]string{"component"},
		),

		HealthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_duration_seconds",
				Help:      "Health check response time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),

		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "alerts_total",
				Help:      "Health alerts raised by component and status",
			},
			[]string{"component", "status"},
		),

		SystemHealth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "system_status",
				Help:      "Aggregate system health status (0=healthy, 1=warning, 2=degraded, 3=critical, 4=offline)",
			},
		),

		ResourceUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "resource_usage_percent",
				Help:      "Coarse system resource usage (cpu, memory, disk)",
			},
			[]string{"resource"},
		),
	}
}

// collectors returns every core collector for registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Resolutions,
		m.ComponentStatus,
		m.StartAttempts,
		m.StartupDuration,
		m.Restarts,
		m.RecoveryAttempts,
		m.MessagesPublished,
		m.MessagesDelivered,
		m.HandlerDuration,
		m.QueueDepth,
		m.QueueEvictions,
		m.MessagesExpired,
		m.DeadLetters,
		m.HealthScore,
		m.HealthStatus,
		m.HealthCheckDuration,
		m.Alerts,
		m.SystemHealth,
		m.ResourceUsage,
	}
}

// RecordResolution counts a dependency resolution
func (m *Metrics) RecordResolution(token, result string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(token, result).Inc()
}

// RecordComponentStatus updates the component status gauge
func (m *Metrics) RecordComponentStatus(component string, status int) {
	if m == nil {
		return
	}
	m.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordStartAttempt counts one initialize attempt
func (m *Metrics) RecordStartAttempt(component string, success bool) {
	if m == nil {
		return
	}
	m.StartAttempts.WithLabelValues(component, resultLabel(success)).Inc()
}

// RecordStartupDuration records time taken to reach Running
func (m *Metrics) RecordStartupDuration(component string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StartupDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordRestart counts a component restart
func (m *Metrics) RecordRestart(component string, success bool) {
	if m == nil {
		return
	}
	m.Restarts.WithLabelValues(component, resultLabel(success)).Inc()
}

// RecordRecoveryAttempt counts an automatic recovery attempt
func (m *Metrics) RecordRecoveryAttempt(component, source string) {
	if m == nil {
		return
	}
	m.RecoveryAttempts.WithLabelValues(component, source).Inc()
}

// RecordPublished counts a published message
func (m *Metrics) RecordPublished(priority string, sync bool) {
	if m == nil {
		return
	}
	mode := "async"
	if sync {
		mode = "sync"
	}
	m.MessagesPublished.WithLabelValues(priority, mode).Inc()
}

// RecordDelivery counts one handler invocation and observes its latency
func (m *Metrics) RecordDelivery(component, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.MessagesDelivered.WithLabelValues(component, result).Inc()
	m.HandlerDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordQueueDepth updates the async queue depth
func (m *Metrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordEviction counts a queue eviction
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.QueueEvictions.Inc()
}

// RecordExpired counts expired queued messages
func (m *Metrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MessagesExpired.Add(float64(n))
}

// RecordDeadLetter counts a dead-lettered message
func (m *Metrics) RecordDeadLetter() {
	if m == nil {
		return
	}
	m.DeadLetters.Inc()
}

// RecordHealth updates score, status and check latency for a component
func (m *Metrics) RecordHealth(component string, score, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HealthScore.WithLabelValues(component).Set(float64(score))
	m.HealthStatus.WithLabelValues(component).Set(float64(status))
	m.HealthCheckDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// ForgetComponent removes per-component health series
func (m *Metrics) ForgetComponent(component string) {
	if m == nil {
		return
	}
	m.HealthScore.DeleteLabelValues(component)
	m.HealthStatus.DeleteLabelValues(component)
	m.ComponentStatus.DeleteLabelValues(component)
}

// RecordAlert counts a health alert
func (m *Metrics) RecordAlert(component, status string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(component, status).Inc()
}

// RecordSystemHealth updates the aggregate health gauge
func (m *Metrics) RecordSystemHealth(status int) {
	if m == nil {
		return
	}
	m.SystemHealth.Set(float64(status))
}

// RecordResourceUsage updates a resource usage gauge
func (m *Metrics) RecordResourceUsage(resource string, percent float64) {
	if m == nil {
		return
	}
	m.ResourceUsage.WithLabelValues(resource).Set(percent)
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
