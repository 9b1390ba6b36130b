package metrics

import "context"

// HealthChecker is the interface to check if a dependency of the operator, such as a state or checkpoint backend, is ready to use
type HealthChecker interface {
	// IsHealthy checks if the dependency is healthy
	IsHealthy(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to a HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) IsHealthy(ctx context.Context) error {
	return f(ctx)
}
