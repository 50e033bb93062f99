// Package errors provides standardized error handling for the orchestration substrate.
// It includes error classification, the sentinel errors shared by the registry,
// orchestrator, bus and health monitor, and helpers for consistent wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrShuttingDown   = errors.New("shutting down")

	// Registration errors
	ErrDuplicateToken     = errors.New("duplicate token")
	ErrInvalidBinding     = errors.New("invalid binding")
	ErrUnknownToken       = errors.New("unknown token")
	ErrDuplicateComponent = errors.New("duplicate component")
	ErrInvalidComponent   = errors.New("invalid component")
	ErrUnknownComponent   = errors.New("unknown component")

	// Graph errors
	ErrCircularDependency = errors.New("circular dependency")
	ErrMissingDependency  = errors.New("missing dependency")

	// Instantiation and startup errors
	ErrInstantiation      = errors.New("instantiation failed")
	ErrDependencyTimeout  = errors.New("dependency timeout")
	ErrStartupTimeout     = errors.New("startup timeout")
	ErrShutdownTimeout    = errors.New("shutdown timeout")
	ErrHealthCheckTimeout = errors.New("health check timeout")
	ErrRestartInProgress  = errors.New("restart in progress")
	ErrInvalidState       = errors.New("invalid state transition")

	// Messaging errors
	ErrInvalidMessage      = errors.New("invalid message")
	ErrQueueFull           = errors.New("queue full")
	ErrHandlerTimeout      = errors.New("handler timeout")
	ErrRequestTimeout      = errors.New("request timeout")
	ErrNoReplyAddress      = errors.New("message has no reply address")
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrDeliveryFailed      = errors.New("delivery failed")

	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("configuration not found")

	// Resource errors
	ErrUnsupported        = errors.New("unsupported on this platform")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrDependencyTimeout) ||
		errors.Is(err, ErrStartupTimeout) ||
		errors.Is(err, ErrHealthCheckTimeout) ||
		errors.Is(err, ErrHandlerTimeout) ||
		errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"temporary",
		"unavailable",
		"busy",
		"retry",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrShuttingDown) ||
		errors.Is(err, ErrMaxRetriesExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"fatal",
		"panic",
		"out of memory",
	}

	for _, pattern := range fatalPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrDuplicateToken) ||
		errors.Is(err, ErrInvalidBinding) ||
		errors.Is(err, ErrUnknownToken) ||
		errors.Is(err, ErrDuplicateComponent) ||
		errors.Is(err, ErrInvalidComponent) ||
		errors.Is(err, ErrUnknownComponent) ||
		errors.Is(err, ErrCircularDependency) ||
		errors.Is(err, ErrMissingDependency) ||
		errors.Is(err, ErrInvalidMessage) ||
		errors.Is(err, ErrNoReplyAddress) ||
		errors.Is(err, ErrInvalidConfig)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	// Classified errors carry their own class; check them before pattern matching.
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
