package health

import (
	"fmt"
	"strings"

	"github.com/c360/smoothsail/component"
)

// Status is the monitor's classification of a component. Values are ordered
// from best to worst.
type Status int

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusDegraded
	StatusCritical
	StatusOffline
)

var statusNames = [...]string{
	StatusHealthy:  "healthy",
	StatusWarning:  "warning",
	StatusDegraded: "degraded",
	StatusCritical: "critical",
	StatusOffline:  "offline",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown health status %q", text)
}

// Worse returns the worse of s and other.
func (s Status) Worse(other Status) Status {
	if other > s {
		return other
	}
	return s
}

// Trend is the direction of a component's recent scores.
type Trend int

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDegrading
)

var trendNames = [...]string{
	TrendStable:    "stable",
	TrendImproving: "improving",
	TrendDegrading: "degrading",
}

func (t Trend) String() string {
	if t < 0 || int(t) >= len(trendNames) {
		return fmt.Sprintf("trend(%d)", int(t))
	}
	return trendNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

const (
	trendWindow    = 3
	trendThreshold = 10
)

// statusFor classifies a health report. Issue severity is checked before the
// score, so a single High issue yields Degraded even at score 95.
func statusFor(report component.HealthReport) Status {
	if sev, ok := report.MaxSeverity(); ok {
		switch {
		case sev >= component.SeverityCritical:
			return StatusCritical
		case sev >= component.SeverityHigh:
			return StatusDegraded
		}
	}

	switch score := report.Score; {
	case score >= 90:
		return StatusHealthy
	case score >= 70:
		return StatusWarning
	case score >= 50:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// trendOf compares the oldest and newest of the last three scores.
func trendOf(scores []int) Trend {
	if len(scores) < trendWindow {
		return TrendStable
	}
	recent := scores[len(scores)-trendWindow:]
	delta := recent[len(recent)-1] - recent[0]
	switch {
	case delta > trendThreshold:
		return TrendImproving
	case delta < -trendThreshold:
		return TrendDegrading
	default:
		return TrendStable
	}
}
