// Package search answers similarity queries over the gallery collection:
// by uploaded image, by text, or by an existing image's ID. All three funnel
// into one KNN search plus a metadata join.
package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// Service handles similarity search.
type Service struct {
	vectors   VectorStore
	meta      MetadataReader
	imgEmbed  domain.ImageEmbedder
	textEmbed domain.TextEmbedder
}

// New creates a search service.
func New(vectors VectorStore, meta MetadataReader, imgEmbed domain.ImageEmbedder, textEmbed domain.TextEmbedder) *Service {
	return &Service{vectors: vectors, meta: meta, imgEmbed: imgEmbed, textEmbed: textEmbed}
}

// ByImage finds images similar to the uploaded one.
// limit bounds the vector-search candidates, not the post-join results:
// callers get fewer hits when orphaned vectors are filtered.
func (s *Service) ByImage(ctx context.Context, data []byte, limit int) ([]domain.Hit, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image: %w", domain.ErrInvalidImage)
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode image: %w: %w", err, domain.ErrInvalidImage)
	}

	embRes, err := s.imgEmbed.EmbedImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embed query image: %w", err)
	}

	return s.searchAndJoin(ctx, embRes.Embedding, limit)
}

// ByText finds images matching a text query. Hits carry bare IDs and scores;
// the metadata join is skipped on this path to keep it cheap.
func (s *Service) ByText(ctx context.Context, text string, limit int) ([]domain.Hit, error) {
	if text == "" {
		return nil, fmt.Errorf("empty query text: %w", domain.ErrInvalidInput)
	}

	embRes, err := s.textEmbed.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}

	hits, err := s.vectors.Search(ctx, embRes.Embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// ByID finds images similar to an already-stored one, using its stored
// vector as the query. domain.ErrNotFound when no vector exists for id.
// The item's own ID is not filtered from its result set.
func (s *Service) ByID(ctx context.Context, id string, limit int) ([]domain.Hit, error) {
	vec, err := s.vectors.Fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch vector for %s: %w", id, err)
	}

	return s.searchAndJoin(ctx, vec, limit)
}

// searchAndJoin is the shared join primitive: KNN search, then a metadata
// fetch per hit. Hits whose metadata row is gone are dropped silently (the
// record is being deleted or out of date, not an error). Vector-search
// ordering is preserved; no re-sort after the join.
func (s *Service) searchAndJoin(ctx context.Context, vec []float32, limit int) ([]domain.Hit, error) {
	hits, err := s.vectors.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	joined := make([]domain.Hit, 0, len(hits))
	for _, hit := range hits {
		rec, err := s.meta.Get(ctx, hit.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("join metadata for %s: %w", hit.ID, err)
		}

		hit.Metadata = recordToDoc(rec)
		joined = append(joined, hit)
	}
	return joined, nil
}

// recordToDoc flattens an ImageRecord into the metadata document returned
// with a search hit.
func recordToDoc(rec *domain.ImageRecord) map[string]any {
	doc := make(map[string]any, len(rec.Metadata)+2)
	for k, v := range rec.Metadata {
		doc[k] = v
	}
	doc["filename"] = rec.Filename
	doc["upload_time"] = rec.UploadedAt
	return doc
}
