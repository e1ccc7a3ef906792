package postprocessors

import (
	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/postprocessors/chunker"
)

// RegisterDefaults registers all built-in chunkers with the registry.
func RegisterDefaults(r *Registry) {
	r.Register(domain.ChunkingStrategyFixedTokens, buildFixedTokens)
}

// NewDefaultRegistry returns a registry with the built-in chunkers.
func NewDefaultRegistry(defaults domain.ChunkingParams) *Registry {
	r := NewRegistry(defaults)
	RegisterDefaults(r)
	return r
}

// buildFixedTokens creates the token window chunker.
func buildFixedTokens(defaults domain.ChunkingParams) (driven.Chunker, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return chunker.New(
		chunker.WithChunkSize(defaults.Size),
		chunker.WithOverlapRatio(defaults.OverlapRatio),
		chunker.WithSeed(defaults.Seed),
	), nil
}
