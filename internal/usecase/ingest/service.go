// Package ingest assigns identity to uploaded images and keeps the metadata
// and vector stores consistent across their independently-failing writes.
//
// There is no shared transaction between PostgreSQL and the vector index, so
// the orchestrator fixes the write order instead: metadata first, vector
// second. A metadata row without a vector is merely not yet searchable; a
// vector without metadata would surface as an unexplainable search hit. When
// the vector write fails after metadata succeeded, the caller receives a
// PartialIngestError carrying the already-minted ID and retries just the
// vector side via RetryVector (upsert semantics make that idempotent).
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
	dombatch "github.com/sunny22123/search-engine-API-vercel/internal/domain/batch"
	"github.com/sunny22123/search-engine-API-vercel/internal/metrics"
)

// StageVector identifies the vector write as the failed ingestion stage.
const StageVector = "vector"

const defaultWriteTimeout = 15 * time.Second

// Item is one image in a batch ingestion request.
type Item struct {
	Data     []byte
	Filename string
	Metadata map[string]any
}

// Service orchestrates identity assignment and the dual-store write protocol.
type Service struct {
	meta         MetadataStore
	vectors      VectorStore
	objects      ObjectStore
	embed        domain.ImageEmbedder
	batchEmbed   domain.BatchImageEmbedder // nil when the provider lacks batch support
	writeTimeout time.Duration
	logger       *zap.Logger
}

// New creates an ingestion service.
func New(
	meta MetadataStore, vectors VectorStore, objects ObjectStore,
	embed domain.ImageEmbedder, logger *zap.Logger,
) *Service {
	s := &Service{
		meta:         meta,
		vectors:      vectors,
		objects:      objects,
		embed:        embed,
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
	if be, ok := embed.(domain.BatchImageEmbedder); ok {
		s.batchEmbed = be
	}
	return s
}

// WithWriteTimeout configures the deadline for the detached metadata+vector
// write pair.
func (s *Service) WithWriteTimeout(d time.Duration) *Service {
	if d > 0 {
		s.writeTimeout = d
	}
	return s
}

// Ingest processes one image and returns its assigned ID.
//
// Failures before the metadata write leave no partial state. A vector-write
// failure after the metadata write returns *domain.PartialIngestError so the
// caller can retry the vector side under the same ID.
func (s *Service) Ingest(ctx context.Context, data []byte, filename string, meta map[string]any) (string, error) {
	id := uuid.NewString()

	if err := validateImage(data); err != nil {
		metrics.IngestTotal.WithLabelValues("invalid").Inc()
		return "", err
	}

	embRes, err := s.embed.EmbedImage(ctx, data)
	if err != nil {
		metrics.IngestTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("embed image: %w", err)
	}

	url, err := s.objects.Put(ctx, id, data, http.DetectContentType(data))
	if err != nil {
		metrics.IngestTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("store image bytes: %w", err)
	}

	doc := mergeStorageURL(meta, url)

	// Once the metadata write starts, a client disconnect must not interrupt
	// the sequence between the two store writes.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	rec := &domain.ImageRecord{ID: id, Filename: filename, Metadata: doc}
	if err := s.meta.Insert(writeCtx, rec); err != nil {
		metrics.IngestTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("insert metadata: %w", err)
	}

	if err := s.vectors.Upsert(writeCtx, id, embRes.Embedding, map[string]string{"filename": filename}); err != nil {
		metrics.IngestTotal.WithLabelValues("partial").Inc()
		s.logger.Warn("Vector write failed after metadata write",
			zap.String("image_id", id), zap.Error(err))
		return "", &domain.PartialIngestError{ID: id, Stage: StageVector, Err: err}
	}

	metrics.IngestTotal.WithLabelValues("ok").Inc()
	return id, nil
}

// RetryVector retries the vector side of a partially ingested image. The
// caller supplies the original bytes and the ID from PartialIngestError.
// The metadata row must already exist; the vector upsert is idempotent, so
// a retry after a spurious failure leaves exactly one vector.
func (s *Service) RetryVector(ctx context.Context, id string, data []byte) error {
	exists, err := s.meta.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check metadata: %w", err)
	}
	if !exists {
		return fmt.Errorf("no metadata row for %s: %w", id, domain.ErrNotFound)
	}

	if err := validateImage(data); err != nil {
		return err
	}

	embRes, err := s.embed.EmbedImage(ctx, data)
	if err != nil {
		return fmt.Errorf("embed image: %w", err)
	}

	if err := s.vectors.Upsert(ctx, id, embRes.Embedding, nil); err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

// IngestBatch ingests several images independently: one item's failure never
// aborts its siblings. Embedding is computed in a single provider call for
// all decodable items, degrading to sequential per-image calls when the
// batch endpoint fails.
func (s *Service) IngestBatch(ctx context.Context, items []Item) []dombatch.Result {
	results := make([]dombatch.Result, len(items))

	valid := make([]int, 0, len(items))
	images := make([][]byte, 0, len(items))
	for i := range items {
		if err := validateImage(items[i].Data); err != nil {
			results[i] = dombatch.NewError("", err)
			metrics.IngestTotal.WithLabelValues("invalid").Inc()
			continue
		}
		valid = append(valid, i)
		images = append(images, items[i].Data)
	}

	if len(valid) == 0 {
		return results
	}

	embeddings, err := s.embedAll(ctx, images)
	if err != nil {
		for _, i := range valid {
			results[i] = dombatch.NewError("", fmt.Errorf("embed batch: %w", err))
			metrics.IngestTotal.WithLabelValues("error").Inc()
		}
		return results
	}

	for n, i := range valid {
		results[i] = s.storeOne(ctx, &items[i], embeddings[n])
	}
	return results
}

// embedAll prefers the single batch call and falls back to sequential
// embeds when the batch endpoint errors.
func (s *Service) embedAll(ctx context.Context, images [][]byte) ([][]float32, error) {
	if s.batchEmbed != nil {
		res, err := s.batchEmbed.EmbedImageBatch(ctx, images)
		if err == nil {
			return res.Embeddings, nil
		}
		s.logger.Warn("Batch embedding failed, falling back to sequential", zap.Error(err))
	}

	res, err := domain.BatchImageFallback(ctx, s.embed, images)
	if err != nil {
		return nil, err
	}
	return res.Embeddings, nil
}

// storeOne runs the per-item tail of the pipeline: object storage, then the
// ordered metadata and vector writes.
func (s *Service) storeOne(ctx context.Context, item *Item, vec []float32) dombatch.Result {
	id := uuid.NewString()

	url, err := s.objects.Put(ctx, id, item.Data, http.DetectContentType(item.Data))
	if err != nil {
		metrics.IngestTotal.WithLabelValues("error").Inc()
		return dombatch.NewError("", fmt.Errorf("store image bytes: %w", err))
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	rec := &domain.ImageRecord{ID: id, Filename: item.Filename, Metadata: mergeStorageURL(item.Metadata, url)}
	if err := s.meta.Insert(writeCtx, rec); err != nil {
		metrics.IngestTotal.WithLabelValues("error").Inc()
		return dombatch.NewError("", fmt.Errorf("insert metadata: %w", err))
	}

	if err := s.vectors.Upsert(writeCtx, id, vec, map[string]string{"filename": item.Filename}); err != nil {
		metrics.IngestTotal.WithLabelValues("partial").Inc()
		return dombatch.NewError(id, &domain.PartialIngestError{ID: id, Stage: StageVector, Err: err})
	}

	metrics.IngestTotal.WithLabelValues("ok").Inc()
	return dombatch.NewOK(id)
}

// Delete removes an image from both stores. Both deletes are always
// attempted; a failure on either side is reported per store so the caller
// can retry just the failed one. An orphan in either store is symmetric and
// harmless until the retry lands.
func (s *Service) Delete(ctx context.Context, id string) error {
	metaErr := s.meta.Delete(ctx, id)
	vecErr := s.vectors.Delete(ctx, id)

	if metaErr == nil && vecErr == nil {
		return nil
	}
	return &domain.PartialDeleteError{ID: id, MetadataErr: metaErr, VectorErr: vecErr}
}

// GetMetadata returns the metadata record for id.
func (s *Service) GetMetadata(ctx context.Context, id string) (*domain.ImageRecord, error) {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return rec, nil
}

// validateImage decodes the upload to reject corrupt bytes and unsupported
// formats before any write happens.
func validateImage(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty image: %w", domain.ErrInvalidImage)
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode image: %w: %w", err, domain.ErrInvalidImage)
	}
	return nil
}

// mergeStorageURL copies the caller's metadata document and adds the object
// storage reference. The input map is never mutated.
func mergeStorageURL(meta map[string]any, url string) map[string]any {
	doc := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		doc[k] = v
	}
	doc[domain.MetadataKeyStorageURL] = url
	return doc
}
