package component

import (
	"fmt"
	"strings"
)

// Severity grades a health issue.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns a string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity as its name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Issue is a single problem reported by a health check.
type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// HealthReport is the result of a component health check.
type HealthReport struct {
	Healthy         bool           `json:"healthy"`
	Score           int            `json:"score"` // 0-100
	Details         map[string]any `json:"details,omitempty"`
	Issues          []Issue        `json:"issues,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// Healthy returns a healthy report with score 100.
func Healthy() HealthReport {
	return HealthReport{Healthy: true, Score: 100}
}

// Unhealthy returns an unhealthy report with the given score and issues.
func Unhealthy(score int, issues ...Issue) HealthReport {
	return HealthReport{Healthy: false, Score: score, Issues: issues}
}

// MaxSeverity returns the highest issue severity and whether any issue exists.
func (r HealthReport) MaxSeverity() (Severity, bool) {
	if len(r.Issues) == 0 {
		return SeverityLow, false
	}
	highest := r.Issues[0].Severity
	for _, issue := range r.Issues[1:] {
		if issue.Severity > highest {
			highest = issue.Severity
		}
	}
	return highest, true
}

// ClampScore limits a score to 0-100.
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
