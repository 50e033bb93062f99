package component

import (
	"fmt"
	"strings"
)

// Status represents the current lifecycle status of a component
type Status int

const (
	// StatusUninitialized indicates the component is registered but not started
	StatusUninitialized Status = iota
	// StatusInitializing indicates Initialize is in progress
	StatusInitializing
	// StatusRunning indicates the component initialized successfully
	StatusRunning
	// StatusStopping indicates Shutdown is in progress
	StatusStopping
	// StatusStopped indicates the component shut down
	StatusStopped
	// StatusError indicates the last lifecycle operation failed
	StatusError
	// StatusMaintenance indicates the component is running but excluded from health checks
	StatusMaintenance
)

var statusNames = [...]string{
	StatusUninitialized: "uninitialized",
	StatusInitializing:  "initializing",
	StatusRunning:       "running",
	StatusStopping:      "stopping",
	StatusStopped:       "stopped",
	StatusError:         "error",
	StatusMaintenance:   "maintenance",
}

// String returns a string representation of the component status
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown component status %q", text)
}

// IsActive reports whether the component is up (Running or Maintenance).
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusMaintenance
}
