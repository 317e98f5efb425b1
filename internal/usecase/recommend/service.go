// Package recommend implements the two-hop salon recommendation: a gallery
// image's stored vector queries the salon portfolio collection, and each hit
// is enriched through the relational salon tables.
package recommend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// DefaultTopK is the salon candidate count when the caller does not specify one.
const DefaultTopK = 4

// Service matches gallery images to salons.
type Service struct {
	gallery GalleryVectors
	salons  SalonVectors
	reader  SalonReader
	logger  *zap.Logger
}

// New creates a recommendation service.
func New(gallery GalleryVectors, salons SalonVectors, reader SalonReader, logger *zap.Logger) *Service {
	return &Service{gallery: gallery, salons: salons, reader: reader, logger: logger}
}

// ByImageID recommends salons whose portfolio images resemble the given
// gallery image. Results preserve the similarity order of the portfolio
// search; hits without a salon mapping or salon record are skipped, so the
// result holds at most topK entries and callers must not assume exact
// cardinality.
func (s *Service) ByImageID(ctx context.Context, imageID string, topK int) ([]domain.SalonMatch, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := s.gallery.Fetch(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("fetch gallery vector for %s: %w", imageID, err)
	}

	hits, err := s.salons.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search salon portfolio: %w", err)
	}

	matches := make([]domain.SalonMatch, 0, len(hits))
	for _, hit := range hits {
		salonID, err := s.reader.SalonIDForImage(ctx, hit.ID)
		if errors.Is(err, domain.ErrNotFound) {
			// Portfolio image not yet linked to a salon.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("map portfolio image %s: %w", hit.ID, err)
		}

		salon, err := s.reader.SalonByID(ctx, salonID)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Salon mapping points at missing salon record",
				zap.String("salon_id", salonID), zap.String("image_id", hit.ID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup salon %s: %w", salonID, err)
		}

		matches = append(matches, domain.SalonMatch{
			SalonID:       salon.ID,
			BusinessName:  salon.BusinessName,
			Address:       salon.Address,
			PriceLevel:    salon.PriceLevel,
			ReviewTotal:   salon.ReviewTotal,
			AverageRating: salon.AverageRating,
			Features:      salon.Features,
			ImageID:       hit.ID,
			Similarity:    hit.Score,
		})
	}

	return matches, nil
}
