// Package chi implements the HTTP API on top of the use case services.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
	dombatch "github.com/sunny22123/search-engine-API-vercel/internal/domain/batch"
	healthuc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/health"
	ingestuc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/ingest"
	recommenduc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/recommend"
	searchuc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/search"
)

// Options bound request sizes and default result counts.
type Options struct {
	DefaultLimit   int
	DefaultTopK    int
	MaxBatchSize   int
	MaxUploadBytes int64
}

// ApplyDefaults fills zero fields.
func (o *Options) ApplyDefaults() {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = domain.DefaultSearchLimit
	}
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = recommenduc.DefaultTopK
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 100
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 << 20
	}
}

// Server holds the API handlers.
type Server struct {
	ingest    *ingestuc.Service
	search    *searchuc.Service
	recommend *recommenduc.Service
	health    *healthuc.Service
	logger    *zap.Logger
	opts      Options
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	search *searchuc.Service,
	recommend *recommenduc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
	opts Options,
) *Server {
	opts.ApplyDefaults()
	return &Server{
		ingest:    ingest,
		search:    search,
		recommend: recommend,
		health:    health,
		logger:    logger,
		opts:      opts,
	}
}

// Register mounts all API routes on the router. Middleware is composed by
// the caller.
func (s *Server) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/images", s.IngestImage)
		r.Post("/images/batch", s.IngestBatch)
		r.Get("/images/{id}", s.GetImage)
		r.Delete("/images/{id}", s.DeleteImage)
		r.Post("/images/{id}/vector", s.RetryVector)

		r.Post("/search/image", s.SearchByImage)
		r.Post("/search/text", s.SearchByText)
		r.Get("/search/similar/{id}", s.SearchSimilar)

		r.Get("/salon-recommendation", s.SalonRecommendation)
	})
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// IngestImage handles POST /api/images.
func (s *Server) IngestImage(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	meta, err := parseMetadataField(r.FormValue("metadata"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationFailed, Message: "metadata must be a JSON object: " + err.Error(),
		})
		return
	}

	id, err := s.ingest.Ingest(r.Context(), data, filename, meta)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := IngestResponse{ID: id}
	if rec, err := s.ingest.GetMetadata(r.Context(), id); err == nil {
		resp.URL = rec.StorageURL()
	}

	w.Header().Set("Location", "/api/images/"+id)
	writeJSON(w, http.StatusCreated, resp)
}

// IngestBatch handles POST /api/images/batch.
func (s *Server) IngestBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeBadRequest, Message: "invalid multipart body: " + err.Error(),
		})
		return
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 || len(headers) > s.opts.MaxBatchSize {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    CodeValidationFailed,
			Message: fmt.Sprintf("files count must be between 1 and %d", s.opts.MaxBatchSize),
		})
		return
	}

	meta, err := parseMetadataField(r.FormValue("metadata"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationFailed, Message: "metadata must be a JSON object: " + err.Error(),
		})
		return
	}

	items := make([]ingestuc.Item, 0, len(headers))
	for _, fh := range headers {
		data, err := readFileHeader(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeBadRequest, Message: fmt.Sprintf("read %s: %v", fh.Filename, err),
			})
			return
		}
		items = append(items, ingestuc.Item{Data: data, Filename: fh.Filename, Metadata: meta})
	}

	results := s.ingest.IngestBatch(r.Context(), items)

	succeeded, failed := 0, 0
	out := make([]BatchItemResponse, len(results))
	for i, res := range results {
		out[i] = batchItemResponse(res)
		if res.Status() == dombatch.StatusOK {
			succeeded++
		} else {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, BatchResponse{Items: out, Succeeded: succeeded, Failed: failed})
}

// GetImage handles GET /api/images/{id}.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.ingest.GetMetadata(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ImageResponse{
		ID:         rec.ID,
		Filename:   rec.Filename,
		UploadedAt: rec.UploadedAt,
		Metadata:   rec.Metadata,
	})
}

// DeleteImage handles DELETE /api/images/{id}.
func (s *Server) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.ingest.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetryVector handles POST /api/images/{id}/vector. The client re-supplies
// the original image bytes to complete an ingestion that failed after the
// metadata write.
func (s *Server) RetryVector(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, _, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	if err := s.ingest.RetryVector(r.Context(), id, data); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SearchByImage handles POST /api/search/image.
func (s *Server) SearchByImage(w http.ResponseWriter, r *http.Request) {
	data, _, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	limit, err := s.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeValidationFailed, Message: err.Error()})
		return
	}

	hits, err := s.search.ByImage(r.Context(), data, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse(hits))
}

// SearchByText handles POST /api/search/text.
func (s *Server) SearchByText(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeBadRequest, Message: "invalid form body: " + err.Error(),
		})
		return
	}

	text := r.FormValue("text")
	limit, err := s.parseLimit(r.FormValue("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeValidationFailed, Message: err.Error()})
		return
	}

	hits, err := s.search.ByText(r.Context(), text, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse(hits))
}

// SearchSimilar handles GET /api/search/similar/{id}.
func (s *Server) SearchSimilar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit, err := s.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeValidationFailed, Message: err.Error()})
		return
	}

	hits, err := s.search.ByID(r.Context(), id, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse(hits))
}

// SalonRecommendation handles GET /api/salon-recommendation.
func (s *Server) SalonRecommendation(w http.ResponseWriter, r *http.Request) {
	imageID := r.URL.Query().Get("image_id")
	if imageID == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationFailed, Message: "image_id is required",
		})
		return
	}

	topK := s.opts.DefaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeValidationFailed, Message: "top_k must be a positive integer",
			})
			return
		}
		topK = v
	}

	matches, err := s.recommend.ByImageID(r.Context(), imageID, topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SalonMatchResponse, len(matches))
	for i, m := range matches {
		items[i] = SalonMatchResponse{
			SalonID:       m.SalonID,
			BusinessName:  m.BusinessName,
			Address:       m.Address,
			PriceLevel:    m.PriceLevel,
			ReviewTotal:   m.ReviewTotal,
			AverageRating: m.AverageRating,
			Features:      m.Features,
			ImageID:       m.ImageID,
			Similarity:    m.Similarity,
		}
	}

	writeJSON(w, http.StatusOK, RecommendationResponse{Items: items, Total: len(items)})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// readUpload extracts the uploaded image bytes from a multipart "file" field.
// Writes the error response itself and returns ok=false on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (data []byte, filename string, ok bool) {
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeBadRequest, Message: "invalid multipart body: " + err.Error(),
		})
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationFailed, Message: "file field is required",
		})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err = io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeBadRequest, Message: "read upload: " + err.Error(),
		})
		return nil, "", false
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Code: CodeValidationFailed, Message: "uploaded file is too large",
		})
		return nil, "", false
	}

	filename = header.Filename
	if f := r.FormValue("filename"); f != "" {
		filename = f
	}
	return data, filename, true
}

func (s *Server) parseLimit(raw string) (int, error) {
	if raw == "" {
		return s.opts.DefaultLimit, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return v, nil
}

func parseMetadataField(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func searchResponse(hits []domain.Hit) SearchResponse {
	items := make([]HitResponse, len(hits))
	for i, h := range hits {
		items[i] = HitResponse{ID: h.ID, Score: h.Score, Metadata: h.Metadata}
	}
	return SearchResponse{Items: items, Total: len(items)}
}

func batchItemResponse(r dombatch.Result) BatchItemResponse {
	item := BatchItemResponse{ID: r.ID(), Status: string(r.Status())}
	if r.Err() != nil {
		errResp := errorResponseFor(r.Err())
		item.Error = &errResp
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrInvalidImage,
		domain.ErrInvalidInput,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// errorResponseFor maps a domain error to its API error body.
func errorResponseFor(err error) ErrorResponse {
	var partial *domain.PartialIngestError
	if errors.As(err, &partial) {
		return ErrorResponse{
			Code:    CodePartialIngest,
			Message: fmt.Sprintf("ingestion incomplete: %s write failed, retry with the same id", partial.Stage),
			ID:      partial.ID,
			Stage:   partial.Stage,
		}
	}

	var partialDel *domain.PartialDeleteError
	if errors.As(err, &partialDel) {
		return ErrorResponse{
			Code:    CodePartialDelete,
			Message: "delete incomplete, retry",
			ID:      partialDel.ID,
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidImage):
		return ErrorResponse{Code: CodeInvalidImage, Message: safeDomainMessage(err)}
	case errors.Is(err, domain.ErrInvalidInput):
		return ErrorResponse{Code: CodeValidationFailed, Message: safeDomainMessage(err)}
	case errors.Is(err, domain.ErrNotFound):
		return ErrorResponse{Code: CodeNotFound, Message: safeDomainMessage(err)}
	case errors.Is(err, domain.ErrEmbeddingProviderError), errors.Is(err, domain.ErrVectorDimMismatch):
		return ErrorResponse{Code: CodeEmbeddingError, Message: safeDomainMessage(err)}
	}

	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return ErrorResponse{
			Code:    CodeUpstreamError,
			Message: "upstream dependency failed",
			Store:   upstream.Store,
		}
	}

	return ErrorResponse{Code: CodeInternalError, Message: "internal error"}
}

func httpStatusFor(resp ErrorResponse) int {
	switch resp.Code {
	case CodeInvalidImage, CodeValidationFailed, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeEmbeddingError, CodeUpstreamError, CodePartialIngest, CodePartialDelete:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	resp := errorResponseFor(err)
	status := httpStatusFor(resp)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Warn("domain error", zap.Error(err))
	}
	writeError(w, status, resp)
}
