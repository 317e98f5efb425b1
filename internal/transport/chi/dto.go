package chi

import "time"

// ErrorCode identifies the error class in API error responses.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeInvalidImage     ErrorCode = "invalid_image"
	CodeNotFound         ErrorCode = "not_found"
	CodeEmbeddingError   ErrorCode = "embedding_provider_error"
	CodeUpstreamError    ErrorCode = "upstream_error"
	CodePartialIngest    ErrorCode = "partial_ingest"
	CodePartialDelete    ErrorCode = "partial_delete"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the API error body. ID and Stage are set for partial
// ingest failures so the client can retry the missing write under the same
// identifier; Store names the failed dependency for upstream errors.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	ID      string    `json:"id,omitempty"`
	Stage   string    `json:"stage,omitempty"`
	Store   string    `json:"store,omitempty"`
}

// IngestResponse is returned after a successful single-image ingestion.
type IngestResponse struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// BatchItemResponse is the outcome of one item in a batch ingestion.
type BatchItemResponse struct {
	ID     string         `json:"id,omitempty"`
	Status string         `json:"status"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// BatchResponse aggregates per-item batch ingestion outcomes.
type BatchResponse struct {
	Items     []BatchItemResponse `json:"items"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// ImageResponse is a stored image's metadata record.
type ImageResponse struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// HitResponse is one similarity search result. Metadata is omitted on the
// text search path, which returns bare id/score pairs.
type HitResponse struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResponse is an ordered list of similarity hits.
type SearchResponse struct {
	Items []HitResponse `json:"items"`
	Total int           `json:"total"`
}

// SalonMatchResponse is one recommended salon with the portfolio image that
// matched and its similarity score.
type SalonMatchResponse struct {
	SalonID       string   `json:"salon_id"`
	BusinessName  string   `json:"business_name"`
	Address       string   `json:"address"`
	PriceLevel    string   `json:"price_level,omitempty"`
	ReviewTotal   *int     `json:"review_total,omitempty"`
	AverageRating *float64 `json:"average_rating,omitempty"`
	Features      *string  `json:"features,omitempty"`
	ImageID       string   `json:"image_id"`
	Similarity    float64  `json:"similarity"`
}

// RecommendationResponse is an ordered list of salon matches.
type RecommendationResponse struct {
	Items []SalonMatchResponse `json:"items"`
	Total int                  `json:"total"`
}

// HealthResponse reports the aggregated and per-component health status.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
