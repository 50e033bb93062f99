// Package errors provides standardized error handling for the orchestration substrate.
//
// # Overview
//
// Errors fall into three classes: Transient (timeouts, full queues; retry or treat as
// a failed result), Invalid (registration, graph and validation errors; surface to the
// caller, never retry) and Fatal (operate-after-shutdown, exhausted retry budgets).
//
// # Wrapping
//
// All wrapping follows the format "component.method: action failed: cause":
//
//	if err := r.register(b); err != nil {
//	    return errors.WrapInvalid(err, "Registry", "Register", "binding validation")
//	}
//
// Sentinel errors identify the condition and survive wrapping:
//
//	if errors.Is(err, errors.ErrQueueFull) {
//	    // back off and republish
//	}
//
// Graph errors carry data. CircularDependencyError holds the cycle path and
// MissingDependencyError names the component and the id it could not find; both
// match their sentinel through errors.Is:
//
//	var cycle *errors.CircularDependencyError
//	if errors.As(err, &cycle) {
//	    log.Printf("cycle: %v", cycle.Path)
//	}
package errors
