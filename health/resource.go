package health

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/smoothsail/bus"
)

// ResourceUsage is a coarse snapshot of host resources.
type ResourceUsage struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	DiskPercent    float64   `json:"disk_percent"`
	NetworkRxBytes uint64    `json:"network_rx_bytes"`
	NetworkTxBytes uint64    `json:"network_tx_bytes"`
	CollectedAt    time.Time `json:"collected_at"`
}

// Collector samples host resource usage.
type Collector interface {
	Collect(ctx context.Context) (ResourceUsage, error)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context) (ResourceUsage, error)

// Collect calls f.
func (f CollectorFunc) Collect(ctx context.Context) (ResourceUsage, error) {
	return f(ctx)
}

// Resource names used in metrics and resource alerts.
const (
	ResourceCPU    = "cpu"
	ResourceMemory = "memory"
	ResourceDisk   = "disk"
)

// resourceLimiters rate-limits alerts per resource.
type resourceLimiters map[string]*rate.Limiter

func newResourceLimiters(every time.Duration) resourceLimiters {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	return resourceLimiters{
		ResourceCPU:    rate.NewLimiter(limit, 1),
		ResourceMemory: rate.NewLimiter(limit, 1),
		ResourceDisk:   rate.NewLimiter(limit, 1),
	}
}

// CheckResources collects one resource sample and alerts on every limit it
// exceeds. It is a no-op without a collector.
func (m *Monitor) CheckResources(ctx context.Context) (ResourceUsage, error) {
	if m.collector == nil {
		return ResourceUsage{}, nil
	}

	usage, err := m.collector.Collect(ctx)
	if err != nil {
		m.logger.Debug("resource collection failed", "error", err)
		return ResourceUsage{}, err
	}
	if usage.CollectedAt.IsZero() {
		usage.CollectedAt = m.now()
	}

	m.mu.Lock()
	m.resources = &usage
	thresholds := m.cfg.AlertThresholds
	m.mu.Unlock()

	samples := []struct {
		resource  string
		percent   float64
		threshold float64
	}{
		{ResourceCPU, usage.CPUPercent, thresholds.CPU},
		{ResourceMemory, usage.MemoryPercent, thresholds.Memory},
		{ResourceDisk, usage.DiskPercent, thresholds.Disk},
	}
	for _, s := range samples {
		m.metrics.RecordResourceUsage(s.resource, s.percent)
		if s.threshold <= 0 || s.percent < s.threshold {
			continue
		}
		if !m.limiters[s.resource].Allow() {
			continue
		}
		m.logger.Warn("resource usage above threshold",
			"resource", s.resource, "percent", s.percent, "threshold", s.threshold)
		if m.cfg.EnableAlerts {
			m.metrics.RecordAlert(s.resource, "resource")
			m.publish(ctx, ResourceMessageType, ResourceAlert{
				Resource:  s.resource,
				Percent:   s.percent,
				Threshold: s.threshold,
				Timestamp: usage.CollectedAt,
			}, bus.PriorityHigh)
		}
	}
	return usage, nil
}
