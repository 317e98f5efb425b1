package domain

import (
	"context"
	"fmt"
)

// ImageEmbedder vectorizes one image.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) (EmbeddingResult, error)
}

// TextEmbedder vectorizes a text query into the same space as image vectors.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchImageEmbedder vectorizes multiple images in a single provider call.
type BatchImageEmbedder interface {
	EmbedImageBatch(ctx context.Context, images [][]byte) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries a single unit-norm embedding vector.
type EmbeddingResult struct {
	Embedding []float32
}

// BatchEmbeddingResult carries one embedding per input, in input order.
type BatchEmbeddingResult struct {
	Embeddings [][]float32
}

// BatchImageFallback embeds images one by one. Safety net for providers
// without a native batch endpoint.
func BatchImageFallback(ctx context.Context, e ImageEmbedder, images [][]byte) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(images))
	for i, img := range images {
		res, err := e.EmbedImage(ctx, img)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
	}
	return BatchEmbeddingResult{Embeddings: embeddings}, nil
}

// CheckDimension fails explicitly when the provider returns a vector of an
// unexpected length. Vectors are never truncated or padded.
func CheckDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("got %d dimensions, want %d: %w", len(vec), want, ErrVectorDimMismatch)
	}
	return nil
}
