// Package clip talks to the CLIP inference sidecar. Image and batch
// embeddings go through its JSON API; text embeddings go through its
// OpenAI-compatible /v1/embeddings endpoint so image and text vectors share
// one embedding space.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
	"github.com/sunny22123/search-engine-API-vercel/internal/metrics"
)

// Embedding kinds for metrics labels.
const (
	kindImage      = "image"
	kindImageBatch = "image_batch"
	kindText       = "text"
)

// Embedder is the embedding provider backed by a CLIP inference service.
type Embedder struct {
	httpClient *http.Client
	textClient *openai.Client
	baseURL    string
	model      string
	dimensions int
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Provider   string
	Logger     *zap.Logger
}

// NewEmbedder creates a CLIP sidecar embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/v1"

	provider := cfg.Provider
	if provider == "" {
		provider = "clip"
	}

	return &Embedder{
		httpClient: &http.Client{Timeout: timeout},
		textClient: openai.NewClientWithConfig(clientCfg),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		provider:   provider,
		logger:     cfg.Logger,
	}
}

type imageRequest struct {
	Image string `json:"image"` // base64-encoded bytes
}

type imageResponse struct {
	Embedding []float32 `json:"embedding"`
}

type batchRequest struct {
	Images []string `json:"images"`
}

type batchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedImage implements domain.ImageEmbedder.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	var resp imageResponse
	err := e.timed(kindImage, func() error {
		return e.postJSON(ctx, "/embeddings/image", imageRequest{
			Image: base64.StdEncoding.EncodeToString(image),
		}, &resp)
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	if err := domain.CheckDimension(resp.Embedding, e.dimensions); err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, kindImage, "dim_mismatch").Inc()
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: resp.Embedding}, nil
}

// EmbedImageBatch implements domain.BatchImageEmbedder: one provider call
// for N images, amortizing fixed model overhead.
func (e *Embedder) EmbedImageBatch(ctx context.Context, images [][]byte) (domain.BatchEmbeddingResult, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}

	var resp batchResponse
	err := e.timed(kindImageBatch, func() error {
		return e.postJSON(ctx, "/embeddings/image_batch", batchRequest{Images: encoded}, &resp)
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	if len(resp.Embeddings) != len(images) {
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, kindImageBatch, "count_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"got %d embeddings for %d images: %w",
			len(resp.Embeddings), len(images), domain.ErrEmbeddingProviderError,
		)
	}
	for i, vec := range resp.Embeddings {
		if err := domain.CheckDimension(vec, e.dimensions); err != nil {
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, kindImageBatch, "dim_mismatch").Inc()
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding [%d]: %w", i, err)
		}
	}
	return domain.BatchEmbeddingResult{Embeddings: resp.Embeddings}, nil
}

// EmbedText implements domain.TextEmbedder via the OpenAI-compatible endpoint.
func (e *Embedder) EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := e.textClient.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, kindText, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, kindText, "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, kindText, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, kindText, "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, kindText, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, kindText).Observe(duration.Seconds())

	vec := resp.Data[0].Embedding
	if err := domain.CheckDimension(vec, e.dimensions); err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, kindText, "dim_mismatch").Inc()
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// HealthCheck verifies provider availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.textClient.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// timed runs fn, recording request count and duration under the given kind.
func (e *Embedder) timed(kind string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, kind, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, kind, "api_error").Inc()
		return err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, kind, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, kind).Observe(duration.Seconds())
	return nil
}

// postJSON posts a JSON body and decodes a JSON response.
// All failures are wrapped with domain.ErrEmbeddingProviderError.
func (e *Embedder) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request failed: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("embedding API error %d: %s: %w",
			resp.StatusCode, extractDetail(detail), domain.ErrEmbeddingProviderError)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the OpenAI-compatible
// API response. All errors are wrapped with domain.ErrEmbeddingProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, extractDetail(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body
// (FastAPI error format), falling back to the raw body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(body)
}
