package driven

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// Chunker splits a work's text into token windows.
// It is pure: identical inputs produce identical chunks and content hashes.
type Chunker interface {
	// Name returns the chunker name for logging and configuration.
	Name() string

	// Chunk splits text into chunks owned by work.
	// Returns domain.ErrInvalidChunkingParams for an invalid size or overlap.
	Chunk(ctx context.Context, work domain.WorkRef, text string, params domain.ChunkingParams) ([]domain.Chunk, error)
}

// ChunkerRegistry resolves a chunker by strategy name.
// An empty strategy selects the default fixed token window chunker.
type ChunkerRegistry interface {
	Chunker(strategy string) (Chunker, error)
}
