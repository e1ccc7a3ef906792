// Package hashing provides an offline embedding service based on feature hashing.
//
// Each analyzer term is hashed into one of Dimensions buckets with a sign taken
// from a second bit of the hash. Term frequencies are accumulated and the
// result is L2-normalised, so texts sharing vocabulary have high cosine
// similarity. No network or model download is required and output is
// deterministic across runs and platforms.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/postprocessors/analyzer"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "hashing-v1"
	DefaultDimensions = 384
)

// EmbeddingService embeds text by hashing its terms into a fixed-size vector.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a hashing embedder. Non-positive dimensions use the default.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed returns the hashed term vector of text.
// Text without indexable terms embeds to the zero vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc := make([]float64, s.dimensions)
	for term, tf := range analyzer.TermFrequencies(text) {
		bucket, sign := s.slot(term)
		// Sub-linear TF keeps long chunks from being dominated by repeats.
		acc[bucket] += sign * (1 + math.Log(float64(tf)))
	}

	v := make([]float32, s.dimensions)
	for i, x := range acc {
		v[i] = float32(x)
	}
	return domain.Normalize(v), nil
}

// EmbedBatch embeds each text in order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = v
	}
	return embeddings, nil
}

func (s *EmbeddingService) slot(term string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(s.dimensions)), sign
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the model identifier recorded with embeddings.
func (s *EmbeddingService) ModelName() string {
	return DefaultModel
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
