package dependency

import (
	"context"
	"fmt"
	"slices"

	"github.com/c360/smoothsail/errors"
)

// Factory builds an instance from its resolved dependencies, passed in the
// order the binding declares them.
type Factory func(ctx context.Context, deps ...any) (any, error)

// Binding declares how to build the value behind a token.
type Binding struct {
	Token        string
	Factory      Factory
	Singleton    bool
	Dependencies []string
	Priority     int
	Tags         []string
}

// validate checks the binding's own fields. Graph checks happen in Register.
func (b Binding) validate() error {
	if b.Token == "" {
		return fmt.Errorf("%w: token is required", errors.ErrInvalidBinding)
	}
	if b.Factory == nil {
		return fmt.Errorf("%w: %s has no factory", errors.ErrInvalidBinding, b.Token)
	}
	if b.Priority < 0 {
		return fmt.Errorf("%w: %s has negative priority %d", errors.ErrInvalidBinding, b.Token, b.Priority)
	}

	seen := make(map[string]struct{}, len(b.Dependencies))
	for _, dep := range b.Dependencies {
		if dep == "" {
			return fmt.Errorf("%w: %s declares an empty dependency", errors.ErrInvalidBinding, b.Token)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("%w: %s declares %s twice", errors.ErrInvalidBinding, b.Token, dep)
		}
		seen[dep] = struct{}{}
	}

	for _, tag := range b.Tags {
		if tag == "" {
			return fmt.Errorf("%w: %s has an empty tag", errors.ErrInvalidBinding, b.Token)
		}
	}
	return nil
}

// clone copies the slices so callers cannot mutate a registered binding.
func (b Binding) clone() *Binding {
	c := b
	c.Dependencies = slices.Clone(b.Dependencies)
	c.Tags = slices.Clone(b.Tags)
	return &c
}

// hasTag reports whether the binding carries the tag.
func (b *Binding) hasTag(tag string) bool {
	return slices.Contains(b.Tags, tag)
}

// resolutionContext is the active path of one Resolve call tree.
type resolutionContext struct {
	path []string
}

func (rc *resolutionContext) contains(token string) bool {
	return slices.Contains(rc.path, token)
}

func (rc *resolutionContext) child(token string) *resolutionContext {
	path := make([]string, len(rc.path), len(rc.path)+1)
	copy(path, rc.path)
	return &resolutionContext{path: append(path, token)}
}

func (rc *resolutionContext) depth() int {
	return len(rc.path)
}
