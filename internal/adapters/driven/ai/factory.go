// Package ai provides factory functions for creating embedding service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/cache"
	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/greds/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/greds/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/throttle"
	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateEmbeddingService creates a decorated embedding service and validates connectivity.
// Returns nil without error if the provider is not configured.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'greds settings embedding' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Run 'greds settings embedding' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}

	return Decorate(svc, settings), nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// CreateEmbeddingService creates the provider adapter selected by settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderHashing:
		return hashing.NewEmbeddingService(settings.ResolvedDimensions()), nil

	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// Decorate wraps svc with the configured cache and rate limiter.
// The limiter sits inside the cache so hits never wait for a token.
func Decorate(svc driven.EmbeddingService, settings *domain.EmbeddingSettings) driven.EmbeddingService {
	if svc == nil || settings == nil {
		return svc
	}

	if settings.RequestsPerSecond > 0 && !settings.Provider.IsLocal() {
		svc = throttle.New(svc, settings.RequestsPerSecond)
	}

	switch {
	case settings.RedisAddr != "":
		logger.Debug("embedding cache: redis at %s", settings.RedisAddr)
		svc = cache.New(svc, cache.NewRedis(settings.RedisAddr, settings.CacheTTL))
	case settings.CacheSize > 0 && settings.Provider != domain.AIProviderHashing:
		logger.Debug("embedding cache: lru of %d entries", settings.CacheSize)
		svc = cache.New(svc, cache.NewLRU(settings.CacheSize, settings.CacheTTL))
	}
	return svc
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.ResolvedDimensions()
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.ResolvedDimensions(),
		BatchSize:  settings.BatchSize,
	})
}
