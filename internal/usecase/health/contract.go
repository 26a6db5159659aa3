package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexChecker lists configured collections whose index is missing.
type IndexChecker interface {
	Missing(ctx context.Context) ([]string, error)
}
