//go:build !linux

package health

import (
	"context"
	"fmt"

	"github.com/c360/smoothsail/errors"
)

// SystemCollector is only available on Linux.
type SystemCollector struct{}

// NewSystemCollector reports ErrUnsupported outside Linux.
func NewSystemCollector(string) (*SystemCollector, error) {
	return nil, fmt.Errorf("%w: system resource collection requires linux", errors.ErrUnsupported)
}

// Collect implements Collector.
func (*SystemCollector) Collect(context.Context) (ResourceUsage, error) {
	return ResourceUsage{}, errors.ErrUnsupported
}
