package ingest

import (
	"context"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// MetadataStore is the relational side of an image record.
type MetadataStore interface {
	Insert(ctx context.Context, rec *domain.ImageRecord) error
	Get(ctx context.Context, id string) (*domain.ImageRecord, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// VectorStore is the vector side of an image record (the gallery collection).
type VectorStore interface {
	Upsert(ctx context.Context, id string, vec []float32, payload map[string]string) error
	Delete(ctx context.Context, id string) error
}

// ObjectStore persists original image bytes and returns a reference URL.
type ObjectStore interface {
	Put(ctx context.Context, imageID string, data []byte, contentType string) (string, error)
}
