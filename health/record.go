package health

import (
	"time"

	"github.com/c360/smoothsail/component"
	"github.com/c360/smoothsail/pkg/buffer"
)

// Sample is one poll result kept in a record's history.
type Sample struct {
	Timestamp    time.Time     `json:"timestamp"`
	Score        int           `json:"score"`
	Status       Status        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
}

// Record is a snapshot of one component's health.
type Record struct {
	ComponentID         string            `json:"component_id"`
	Status              Status            `json:"status"`
	Score               int               `json:"score"`
	Trend               Trend             `json:"trend"`
	Issues              []component.Issue `json:"issues,omitempty"`
	Recommendations     []string          `json:"recommendations,omitempty"`
	Details             map[string]any    `json:"details,omitempty"`
	FailureCount        int               `json:"failure_count"`
	SuccessCount        int               `json:"success_count"`
	LastCheck           time.Time         `json:"last_check,omitempty"`
	ResponseTime        time.Duration     `json:"response_time"`
	LastRecoveryAttempt time.Time         `json:"last_recovery_attempt,omitempty"`
	History             []Sample          `json:"history,omitempty"`
}

type record struct {
	checker component.HealthChecker

	status          Status
	score           int
	trend           Trend
	issues          []component.Issue
	recommendations []string
	details         map[string]any
	failureCount    int
	successCount    int
	lastCheck       time.Time
	responseTime    time.Duration
	lastRecovery    time.Time
	history         *buffer.Ring[Sample]

	checking bool
}

func newRecord(c component.HealthChecker, retention int) *record {
	return &record{
		checker: c,
		status:  StatusHealthy,
		score:   100,
		trend:   TrendStable,
		history: buffer.NewRing[Sample](retention),
	}
}

// apply folds one poll result into the record.
func (r *record) apply(status Status, report component.HealthReport, at time.Time, took time.Duration) {
	wasHealthy := r.status == StatusHealthy
	isHealthy := status == StatusHealthy
	if wasHealthy != isHealthy {
		r.failureCount, r.successCount = 0, 0
	}
	if isHealthy {
		r.successCount++
	} else {
		r.failureCount++
	}

	r.status = status
	r.score = report.Score
	r.issues = report.Issues
	r.recommendations = report.Recommendations
	r.details = report.Details
	r.lastCheck = at
	r.responseTime = took

	r.history.Push(Sample{Timestamp: at, Score: report.Score, Status: status, ResponseTime: took})
	recent := r.history.Last(trendWindow)
	scores := make([]int, len(recent))
	for i, s := range recent {
		scores[i] = s.Score
	}
	r.trend = trendOf(scores)
}

func (r *record) snapshot(id string) Record {
	return Record{
		ComponentID:         id,
		Status:              r.status,
		Score:               r.score,
		Trend:               r.trend,
		Issues:              append([]component.Issue(nil), r.issues...),
		Recommendations:     append([]string(nil), r.recommendations...),
		Details:             r.details,
		FailureCount:        r.failureCount,
		SuccessCount:        r.successCount,
		LastCheck:           r.lastCheck,
		ResponseTime:        r.responseTime,
		LastRecoveryAttempt: r.lastRecovery,
		History:             r.history.Snapshot(),
	}
}
