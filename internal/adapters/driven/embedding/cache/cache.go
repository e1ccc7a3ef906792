// Package cache provides an embedding service decorator that memoises vectors.
//
// Vectors are keyed by "embed:{model}:{sha256(text)}" so caches shared across
// processes never mix models. Two backends are provided: an in-process
// expirable LRU and Redis. Backend failures are treated as misses.
package cache

import (
	"context"
	"slices"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Backend stores vectors by key.
type Backend interface {
	// Get returns the vector for key and whether it was present.
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Set stores the vector for key.
	Set(ctx context.Context, key string, vector []float32) error

	// Close releases backend resources.
	Close() error
}

// EmbeddingService wraps another embedding service with a cache.
type EmbeddingService struct {
	inner   driven.EmbeddingService
	backend Backend
}

// New wraps inner with backend.
func New(inner driven.EmbeddingService, backend Backend) *EmbeddingService {
	return &EmbeddingService{inner: inner, backend: backend}
}

// Key returns the cache key of text under model.
func Key(model, text string) string {
	return "embed:" + model + ":" + domain.TextHash(text)
}

// Embed returns the cached vector for text, embedding it on a miss.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(s.inner.ModelName(), text)
	if v, ok := s.lookup(ctx, key); ok {
		return v, nil
	}

	v, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, v)
	return v, nil
}

// EmbedBatch serves hits from the cache and embeds the misses in one inner call.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := s.inner.ModelName()
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = Key(model, text)
		if v, ok := s.lookup(ctx, keys[i]); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}
	logger.Debug("embedding cache: %d hits, %d misses", len(texts)-len(missTexts), len(missTexts))

	vs, err := s.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vs[j]
		s.store(ctx, keys[i], vs[j])
	}
	return out, nil
}

func (s *EmbeddingService) lookup(ctx context.Context, key string) ([]float32, bool) {
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		logger.Warn("embedding cache get failed: %v", err)
		return nil, false
	}
	if !ok || len(v) != s.inner.Dimensions() {
		return nil, false
	}
	return slices.Clone(v), true
}

func (s *EmbeddingService) store(ctx context.Context, key string, v []float32) {
	if err := s.backend.Set(ctx, key, slices.Clone(v)); err != nil {
		logger.Warn("embedding cache set failed: %v", err)
	}
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the wrapped service's model name.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Ping checks the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the backend and the wrapped service.
func (s *EmbeddingService) Close() error {
	berr := s.backend.Close()
	if err := s.inner.Close(); err != nil {
		return err
	}
	return berr
}
