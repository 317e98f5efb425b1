package search

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// --- Mocks ---

type mockVectorStore struct {
	hits      []domain.Hit
	searchErr error
	vec       []float32
	fetchErr  error
	lastK     int
}

func (m *mockVectorStore) Search(_ context.Context, _ []float32, k int) ([]domain.Hit, error) {
	m.lastK = k
	return m.hits, m.searchErr
}

func (m *mockVectorStore) Fetch(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.fetchErr
}

type mockMetaReader struct {
	records map[string]*domain.ImageRecord
	err     error
}

func (m *mockMetaReader) Get(_ context.Context, id string) (*domain.ImageRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

type mockImageEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockImageEmbedder) EmbedImage(_ context.Context, _ []byte) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

type mockTextEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockTextEmbedder) EmbedText(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func record(id string) *domain.ImageRecord {
	return &domain.ImageRecord{ID: id, Filename: id + ".jpg", Metadata: map[string]any{"style": "bob"}}
}

// --- ByImage ---

func TestByImage_OrderPreserved(t *testing.T) {
	vectors := &mockVectorStore{hits: []domain.Hit{
		{ID: "a", Score: 0.97},
		{ID: "b", Score: 0.81},
		{ID: "c", Score: 0.70},
	}}
	meta := &mockMetaReader{records: map[string]*domain.ImageRecord{
		"a": record("a"), "b": record("b"), "c": record("c"),
	}}
	svc := New(vectors, meta, &mockImageEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}, nil)

	hits, err := svc.ByImage(context.Background(), pngBytes(t), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c"}
	for i, h := range hits {
		if h.ID != want[i] {
			t.Errorf("hit %d: got %s, want %s", i, h.ID, want[i])
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores must be non-increasing: %v then %v", hits[i-1].Score, hits[i].Score)
		}
	}
	if hits[0].Metadata["filename"] != "a.jpg" {
		t.Errorf("metadata join missing filename: %v", hits[0].Metadata)
	}
}

func TestByImage_OrphanFiltered(t *testing.T) {
	vectors := &mockVectorStore{hits: []domain.Hit{
		{ID: "a", Score: 0.9},
		{ID: "orphan", Score: 0.8},
		{ID: "c", Score: 0.7},
	}}
	meta := &mockMetaReader{records: map[string]*domain.ImageRecord{
		"a": record("a"), "c": record("c"),
	}}
	svc := New(vectors, meta, &mockImageEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}, nil)

	hits, err := svc.ByImage(context.Background(), pngBytes(t), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected orphan dropped, got %d hits", len(hits))
	}
	if hits[0].ID != "a" || hits[1].ID != "c" {
		t.Errorf("order broken after filtering: %v", hits)
	}
}

func TestByImage_InvalidBytes(t *testing.T) {
	svc := New(&mockVectorStore{}, &mockMetaReader{}, &mockImageEmbedder{}, nil)

	_, err := svc.ByImage(context.Background(), []byte("garbage"), 10)
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestByImage_MetadataStoreDown(t *testing.T) {
	vectors := &mockVectorStore{hits: []domain.Hit{{ID: "a", Score: 0.9}}}
	meta := &mockMetaReader{err: domain.NewUpstreamError(domain.StoreMetadata, errors.New("pg down"))}
	svc := New(vectors, meta, &mockImageEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}, nil)

	_, err := svc.ByImage(context.Background(), pngBytes(t), 10)
	if err == nil {
		t.Fatal("a store failure must propagate, unlike a missing row")
	}
}

// --- ByText ---

func TestByText_BareHits(t *testing.T) {
	vectors := &mockVectorStore{hits: []domain.Hit{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.8},
	}}
	textEmb := &mockTextEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	svc := New(vectors, &mockMetaReader{}, nil, textEmb)

	hits, err := svc.ByText(context.Background(), "short bob with bangs", 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Metadata != nil {
			t.Errorf("text path must not join metadata: %v", h.Metadata)
		}
	}
	if vectors.lastK != 18 {
		t.Errorf("limit not forwarded: got %d", vectors.lastK)
	}
}

func TestByText_EmptyQuery(t *testing.T) {
	textEmb := &mockTextEmbedder{}
	svc := New(&mockVectorStore{}, &mockMetaReader{}, nil, textEmb)

	_, err := svc.ByText(context.Background(), "", 18)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if textEmb.calls != 0 {
		t.Error("empty query must not reach the embedder")
	}
}

// --- ByID ---

func TestByID_UsesStoredVector(t *testing.T) {
	vectors := &mockVectorStore{
		vec:  []float32{0.5, 0.5},
		hits: []domain.Hit{{ID: "self", Score: 1.0}, {ID: "b", Score: 0.8}},
	}
	meta := &mockMetaReader{records: map[string]*domain.ImageRecord{
		"self": record("self"), "b": record("b"),
	}}
	svc := New(vectors, meta, nil, nil)

	hits, err := svc.ByID(context.Background(), "self", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The query image itself is a legitimate hit and is not filtered.
	if len(hits) != 2 || hits[0].ID != "self" {
		t.Errorf("unexpected hits: %v", hits)
	}
}

func TestByID_NotFound(t *testing.T) {
	vectors := &mockVectorStore{fetchErr: domain.ErrNotFound}
	svc := New(vectors, &mockMetaReader{}, nil, nil)

	_, err := svc.ByID(context.Background(), "missing", 10)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
