package health

import "context"

// VectorPinger checks vector store availability.
type VectorPinger interface {
	Ping(ctx context.Context) error
}

// MetadataPinger checks the metadata database.
type MetadataPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
