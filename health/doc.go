// Package health polls components, classifies their health and reacts to
// failures.
//
// Each poll cycle calls every tracked component's HealthCheck concurrently,
// bounded by Config.CheckTimeout; a check of one component never overlaps
// with another check of the same component. An error, a panic or a timeout
// is recorded as Offline with score 0 and a critical HEALTH_CHECK_FAILED
// issue. Otherwise the report is classified in this order:
//
//	any critical issue  -> Critical
//	any high issue      -> Degraded
//	score >= 90         -> Healthy
//	score >= 70         -> Warning
//	score >= 50         -> Degraded
//	otherwise           -> Critical
//
// Every result is appended to a bounded history. The trend compares the
// oldest and newest of the last three scores: a rise of more than 10 is
// Improving, a fall of more than 10 is Degrading.
//
// A non-Healthy result publishes a health.alert message (Critical priority
// for critical conditions, High otherwise). When AutoRecovery is on and the
// component has failed FailureThreshold polls in a row, the Recoverer is asked
// to restart it, at most once per RecoveryCooldown.
//
// The system status is the worst status of any tracked component, in the
// order Offline, Critical, Degraded, Warning, Healthy.
//
// A Collector, when set, samples host resources every ResourceInterval and
// publishes rate-limited health.resource alerts for limits it exceeds.
// SystemCollector reads /proc and statfs on Linux.
package health
