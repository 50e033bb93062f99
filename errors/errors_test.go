package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"dependency timeout", ErrDependencyTimeout, true},
		{"startup timeout", ErrStartupTimeout, true},
		{"handler timeout", ErrHandlerTimeout, true},
		{"queue full", ErrQueueFull, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"duplicate token", ErrDuplicateToken, false},
		{"shutting down", ErrShuttingDown, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"shutting down", ErrShuttingDown, true},
		{"retries exhausted", ErrMaxRetriesExceeded, true},
		{"queue full", ErrQueueFull, false},
		{"panic in message", fmt.Errorf("factory panic: boom"), true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"duplicate token", ErrDuplicateToken, true},
		{"invalid message", ErrInvalidMessage, true},
		{"cycle", &CircularDependencyError{Path: []string{"a", "b", "a"}}, true},
		{"missing", &MissingDependencyError{Component: "a", Dependency: "b"}, true},
		{"wrapped unknown token", fmt.Errorf("resolve: %w", ErrUnknownToken), true},
		{"handler timeout", ErrHandlerTimeout, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"invalid sentinel", ErrCircularDependency, ErrorInvalid},
		{"fatal sentinel", ErrShuttingDown, ErrorFatal},
		{"timeout", ErrRequestTimeout, ErrorTransient},
		{"unknown", errors.New("something odd"), ErrorTransient},
		{"classified wins", WrapFatal(ErrQueueFull, "Bus", "Publish", "enqueue"), ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "c", "m", "a") != nil {
		t.Fatal("wrapping nil should return nil")
	}

	err := Wrap(ErrUnknownToken, "Registry", "Resolve", "lookup")
	expected := "Registry.Resolve: lookup failed: unknown token"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrUnknownToken) {
		t.Error("wrapped error should match its sentinel")
	}
}

func TestWrapClassified(t *testing.T) {
	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.wrap(ErrQueueFull, "Bus", "Publish", "enqueue")

			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ClassifiedError, got %T", err)
			}
			if ce.Class != test.class {
				t.Errorf("expected class %v, got %v", test.class, ce.Class)
			}
			if ce.Component != "Bus" || ce.Operation != "Publish" {
				t.Errorf("unexpected context %s.%s", ce.Component, ce.Operation)
			}
			if !errors.Is(err, ErrQueueFull) {
				t.Error("classified error should unwrap to its sentinel")
			}
			if test.wrap(nil, "Bus", "Publish", "enqueue") != nil {
				t.Error("wrapping nil should return nil")
			}
		})
	}
}

func TestCircularDependencyError(t *testing.T) {
	err := NewCircularDependency([]string{"root", "a", "b"}, "a")

	if got := strings.Join(err.Path, ","); got != "a,b,a" {
		t.Errorf("expected cycle a,b,a, got %s", got)
	}
	if !errors.Is(err, ErrCircularDependency) {
		t.Error("cycle error should match ErrCircularDependency")
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("unexpected message %q", err.Error())
	}

	wrapped := WrapInvalid(err, "Orchestrator", "StartSystem", "startup order")
	var cycle *CircularDependencyError
	if !errors.As(wrapped, &cycle) {
		t.Fatal("typed error should survive wrapping")
	}
}

func TestMissingDependencyError(t *testing.T) {
	err := &MissingDependencyError{Component: "api", Dependency: "db"}
	if !errors.Is(err, ErrMissingDependency) {
		t.Error("missing error should match ErrMissingDependency")
	}
	if err.Error() != "missing dependency: api requires db" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
