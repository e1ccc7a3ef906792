package driven

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// WorkStore persists works.
type WorkStore interface {
	// SaveWork inserts or updates a work.
	// (Slug, Version) is unique: a different work with the same pair returns domain.ErrAlreadyExists.
	// Updates are checked with domain.Work.CheckUpdate.
	SaveWork(ctx context.Context, work *domain.Work) error

	// GetWork retrieves a work by ID.
	GetWork(ctx context.Context, id string) (*domain.Work, error)

	// GetWorkBySlug retrieves a work by slug and version.
	GetWorkBySlug(ctx context.Context, slug, version string) (*domain.Work, error)

	// ListWorks returns all works ordered by slug then version.
	ListWorks(ctx context.Context) ([]domain.Work, error)

	// DeleteWork removes a work with its chunks, embeddings and summaries.
	// Returns domain.ErrChunkReferenced if any of its chunks is cited.
	DeleteWork(ctx context.Context, id string) error
}

// ChunkStore persists chunks and the records they own.
type ChunkStore interface {
	// SaveChunks atomically replaces the work's chunk set.
	// The set must pass domain.ValidateChunkSet and content hashes must be globally unique.
	SaveChunks(ctx context.Context, workID string, chunks []domain.Chunk) error

	// GetChunks retrieves all chunks for a work ordered by index.
	GetChunks(ctx context.Context, workID string) ([]domain.Chunk, error)

	// GetChunk retrieves a chunk by its RetrievalID string.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// ListChunks returns every stored chunk ordered by ID.
	ListChunks(ctx context.Context) ([]domain.Chunk, error)

	// SaveEmbedding stores the embedding of a chunk.
	// The same model updates in place; a different model replaces it with a new record.
	SaveEmbedding(ctx context.Context, embedding *domain.Embedding) error

	// GetEmbedding retrieves the embedding of a chunk.
	GetEmbedding(ctx context.Context, chunkID string) (*domain.Embedding, error)

	// ListEmbeddings returns every stored embedding ordered by chunk ID.
	ListEmbeddings(ctx context.Context) ([]domain.Embedding, error)

	// SaveSummary stores or replaces the summary of a chunk at one level.
	SaveSummary(ctx context.Context, summary *domain.Summary) error

	// GetSummary retrieves the summary of a chunk at one level.
	GetSummary(ctx context.Context, chunkID string, level domain.SummaryLevel) (*domain.Summary, error)
}

// CitationStore persists citations. It is append-only.
type CitationStore interface {
	// AppendCitations stores citations atomically: all are stored or none are.
	// Every citation must reference an existing chunk (domain.ErrNotFound otherwise).
	AppendCitations(ctx context.Context, citations []domain.Citation) error

	// ListCitationsByRun returns the citations of a run in creation order.
	ListCitationsByRun(ctx context.Context, runID string) ([]domain.Citation, error)

	// ListCitationsByChunk returns the citations of a chunk in creation order.
	ListCitationsByChunk(ctx context.Context, chunkID string) ([]domain.Citation, error)
}

// SessionStore persists live sessions and checkpoints.
type SessionStore interface {
	// GetSession retrieves the live session for a session ID.
	// Returns domain.ErrNoActiveSession if there is none.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// SaveSession inserts or updates a live session.
	SaveSession(ctx context.Context, session *domain.Session) error

	// SaveCheckpoint stores checkpoint and updates live in one transaction.
	SaveCheckpoint(ctx context.Context, live *domain.Session, checkpoint *domain.Session) error

	// GetCheckpoint retrieves a checkpoint by ID.
	// Returns domain.ErrCheckpointNotFound for unknown IDs and live session rows.
	GetCheckpoint(ctx context.Context, id string) (*domain.Session, error)

	// ListChildren returns checkpoints whose parent is id.
	ListChildren(ctx context.Context, id string) ([]domain.Session, error)

	// SetCheckpointParent changes the parent link of a checkpoint.
	// Cycle checks are the caller's responsibility.
	SetCheckpointParent(ctx context.Context, id, parentID string) error

	// DeleteCheckpoint removes a checkpoint.
	// With reparent false a checkpoint with children returns domain.ErrCheckpointHasChildren.
	// With reparent true children and live heads move to the deleted checkpoint's parent.
	DeleteCheckpoint(ctx context.Context, id string, reparent bool) error
}

// Store aggregates every persistence port behind one adapter.
type Store interface {
	WorkStore
	ChunkStore
	CitationStore
	SessionStore
	AuditSink
	AuditReader
}
