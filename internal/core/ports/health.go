package ports

import "context"

// HealthChecker reports liveness of an infrastructure dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
