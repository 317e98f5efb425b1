package search

import (
	"context"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// VectorStore provides KNN search and fetch-by-ID over the gallery collection.
type VectorStore interface {
	Search(ctx context.Context, vec []float32, k int) ([]domain.Hit, error)
	Fetch(ctx context.Context, id string) ([]float32, error)
}

// MetadataReader reads image metadata for the join primitive.
type MetadataReader interface {
	Get(ctx context.Context, id string) (*domain.ImageRecord, error)
}
