package errors

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a dependency cycle. Path starts and ends
// with the same id, e.g. [a b c a].
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

// Is matches ErrCircularDependency.
func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}

// NewCircularDependency builds the error for a cycle that closes on id,
// where path is the active walk that led back to it.
func NewCircularDependency(path []string, id string) *CircularDependencyError {
	cycle := make([]string, 0, len(path)+1)
	start := 0
	for i, p := range path {
		if p == id {
			start = i
			break
		}
	}
	cycle = append(cycle, path[start:]...)
	cycle = append(cycle, id)
	return &CircularDependencyError{Path: cycle}
}

// MissingDependencyError reports a declared dependency that is not registered.
type MissingDependencyError struct {
	Component  string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency: %s requires %s", e.Component, e.Dependency)
}

// Is matches ErrMissingDependency.
func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}
