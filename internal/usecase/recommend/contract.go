package recommend

import (
	"context"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// GalleryVectors fetches stored vectors from the gallery collection.
type GalleryVectors interface {
	Fetch(ctx context.Context, id string) ([]float32, error)
}

// SalonVectors searches the salon portfolio collection. Its ID space is
// disjoint from the gallery's.
type SalonVectors interface {
	Search(ctx context.Context, vec []float32, k int) ([]domain.Hit, error)
}

// SalonReader resolves portfolio images to salons through the relational
// mapping and attribute tables.
type SalonReader interface {
	SalonIDForImage(ctx context.Context, imageID string) (string, error)
	SalonByID(ctx context.Context, salonID string) (*domain.Salon, error)
}
