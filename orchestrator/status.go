package orchestrator

import (
	"fmt"
	"slices"
	"time"

	"github.com/c360/smoothsail/component"
	"github.com/c360/smoothsail/errors"
)

// ComponentInfo is a snapshot of one component's lifecycle state.
type ComponentInfo struct {
	ID           string                  `json:"id"`
	Status       component.Status        `json:"status"`
	Priority     int                     `json:"priority"`
	Dependencies []string                `json:"dependencies,omitempty"`
	StartedAt    time.Time               `json:"started_at,omitempty"`
	Uptime       time.Duration           `json:"uptime,omitempty"`
	Restarts     int                     `json:"restarts"`
	LastError    string                  `json:"last_error,omitempty"`
	LastHealth   *component.HealthReport `json:"last_health,omitempty"`
	LastHealthAt time.Time               `json:"last_health_at,omitempty"`
	Metrics      map[string]any          `json:"metrics,omitempty"`
}

// SystemStatus summarizes every registered component.
type SystemStatus struct {
	State      string          `json:"state"`
	Ready      bool            `json:"ready"`
	Order      []string        `json:"startup_order,omitempty"`
	Counts     map[string]int  `json:"counts"`
	Components []ComponentInfo `json:"components"`
}

// ComponentStatus returns a snapshot of one component.
func (o *Orchestrator) ComponentStatus(id string) (ComponentInfo, error) {
	o.mu.RLock()
	e, ok := o.components[id]
	if !ok {
		o.mu.RUnlock()
		return ComponentInfo{}, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownComponent, id),
			"Orchestrator", "ComponentStatus", "component lookup")
	}
	info := o.infoLocked(id, e, time.Now())
	o.mu.RUnlock()

	info.Metrics = componentMetrics(e.comp)
	return info, nil
}

// SystemStatus returns the state of the system and every component, sorted by
// startup order when one has been computed and by id otherwise.
func (o *Orchestrator) SystemStatus() SystemStatus {
	now := time.Now()

	o.mu.RLock()
	ids := slices.Clone(o.order)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	var rest []string
	for id := range o.components {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	ids = append(ids, rest...)

	st := SystemStatus{
		State:  o.state.String(),
		Order:  slices.Clone(o.order),
		Counts: make(map[string]int),
	}
	select {
	case <-o.ready:
		st.Ready = o.state == stateRunning
	default:
	}

	comps := make([]component.Component, 0, len(ids))
	for _, id := range ids {
		e, ok := o.components[id]
		if !ok {
			continue
		}
		info := o.infoLocked(id, e, now)
		st.Components = append(st.Components, info)
		st.Counts[info.Status.String()]++
		comps = append(comps, e.comp)
	}
	o.mu.RUnlock()

	// Component metrics are gathered outside the lock; providers may block.
	for i, c := range comps {
		st.Components[i].Metrics = componentMetrics(c)
	}
	return st
}

func (o *Orchestrator) infoLocked(id string, e *entry, now time.Time) ComponentInfo {
	info := ComponentInfo{
		ID:           id,
		Status:       e.status,
		Priority:     e.priority,
		Dependencies: slices.Clone(e.deps),
		Restarts:     e.restarts,
		LastHealthAt: e.lastHealthAt,
	}
	if e.lastError != nil {
		info.LastError = e.lastError.Error()
	}
	if e.lastHealth != nil {
		report := *e.lastHealth
		info.LastHealth = &report
	}
	if e.status.IsActive() && !e.startedAt.IsZero() {
		info.StartedAt = e.startedAt
		info.Uptime = now.Sub(e.startedAt)
	}
	return info
}

func componentMetrics(c component.Component) (metrics map[string]any) {
	mp, ok := c.(component.MetricsProvider)
	if !ok {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			metrics = map[string]any{"error": fmt.Sprintf("metrics panic: %v", p)}
		}
	}()
	return mp.Metrics()
}
