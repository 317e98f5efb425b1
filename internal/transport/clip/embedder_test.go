package clip

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

func newTestEmbedder(t *testing.T, handler http.Handler, dims int) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewEmbedder(&Config{
		BaseURL:    srv.URL,
		Model:      "clip-ViT-B-32",
		Dimensions: dims,
		Provider:   "clip",
		Logger:     zap.NewNop(),
	})
}

func TestEmbedImage_Success(t *testing.T) {
	imgBytes := []byte{0xFF, 0xD8, 0xFF}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings/image" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Image != base64.StdEncoding.EncodeToString(imgBytes) {
			t.Error("image bytes not base64-encoded in request")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	})

	e := newTestEmbedder(t, handler, 3)
	res, err := e.EmbedImage(context.Background(), imgBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 || res.Embedding[0] != 0.1 {
		t.Errorf("unexpected embedding: %v", res.Embedding)
	}
}

func TestEmbedImage_DimMismatch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
	})

	e := newTestEmbedder(t, handler, 3)
	_, err := e.EmbedImage(context.Background(), []byte{1})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestEmbedImage_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "model not loaded"})
	})

	e := newTestEmbedder(t, handler, 3)
	_, err := e.EmbedImage(context.Background(), []byte{1})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	// FastAPI error detail should surface in the message.
	if got := err.Error(); !strings.Contains(got, "model not loaded") {
		t.Errorf("detail lost: %s", got)
	}
}

func TestEmbedImageBatch_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings/image_batch" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Images []string `json:"images"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Images) != 2 {
			t.Errorf("expected 2 images, got %d", len(req.Images))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}},
		})
	})

	e := newTestEmbedder(t, handler, 3)
	res, err := e.EmbedImageBatch(context.Background(), [][]byte{{1}, {2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
}

func TestEmbedImageBatch_CountMismatch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	})

	e := newTestEmbedder(t, handler, 3)
	_, err := e.EmbedImageBatch(context.Background(), [][]byte{{1}, {2}})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedText_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.7, 0.8, 0.9}},
			},
			"model": "clip-ViT-B-32",
		})
	})

	e := newTestEmbedder(t, handler, 3)
	res, err := e.EmbedText(context.Background(), "short bob with bangs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 || res.Embedding[0] != 0.7 {
		t.Errorf("unexpected embedding: %v", res.Embedding)
	}
}

func TestEmbedText_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "overloaded"})
	})

	e := newTestEmbedder(t, handler, 3)
	_, err := e.EmbedText(context.Background(), "bob")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
	})

	e := newTestEmbedder(t, handler, 3)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
