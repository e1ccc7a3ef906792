package driven

import "context"

// VectorIndex provides semantic similarity search operations.
// Implementations must be safe for concurrent use: a search observes a
// consistent snapshot and never a partially applied upsert.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for the given chunk ID.
	// Returns domain.ErrDimensionMismatch if the vector has the wrong length.
	Upsert(ctx context.Context, chunkID string, vector []float32) error

	// UpsertBatch applies several upserts as one snapshot change.
	// Either all entries are applied or none are.
	UpsertBatch(ctx context.Context, entries []VectorEntry) error

	// Delete removes a vector from the index. Unknown IDs are ignored.
	Delete(ctx context.Context, chunkIDs ...string) error

	// Search finds at most k vectors most similar to the query.
	// Results are ordered by descending cosine similarity, ties by ascending chunk ID.
	// An empty index returns an empty result, never an error.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dimension returns the vector length the index accepts.
	Dimension() int

	// Close releases resources. Subsequent calls return domain.ErrIndexUnavailable.
	Close() error
}

// VectorEntry is one vector to upsert.
type VectorEntry struct {
	ChunkID string
	Vector  []float32
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (-1 to 1).
	Similarity float64
}
