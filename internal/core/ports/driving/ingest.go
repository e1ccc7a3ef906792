package driving

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// IngestService chunks, embeds and indexes works.
type IngestService interface {
	// Ingest processes a work's text end to end and returns the completed work.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.Work, error)

	// Reindex rebuilds both indexes from stored chunks and embeddings.
	Reindex(ctx context.Context) (int, error)

	// DeleteWork removes a work, its chunks and their index entries.
	DeleteWork(ctx context.Context, slug, version string) error

	// ListWorks returns all stored works.
	ListWorks(ctx context.Context) ([]domain.Work, error)

	// GetChunk resolves a retrieval ID to its chunk.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)
}
