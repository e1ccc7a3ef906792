package driven

import "context"

// LexicalIndex provides term-based search operations.
// Backed by an in-process BM25 inverted index.
type LexicalIndex interface {
	// Upsert adds or replaces the text indexed for a chunk.
	Upsert(ctx context.Context, chunkID string, text string) error

	// UpsertBatch applies several upserts as one snapshot change.
	UpsertBatch(ctx context.Context, entries []LexicalEntry) error

	// Delete removes chunks from the index. Unknown IDs are ignored.
	Delete(ctx context.Context, chunkIDs ...string) error

	// Search performs a keyword search and returns at most limit matches with scores.
	// Only chunks sharing at least one term with the query are returned.
	// Ties are broken by ascending chunk ID.
	Search(ctx context.Context, query string, limit int) ([]LexicalHit, error)

	// Len returns the number of indexed chunks.
	Len() int

	// Close releases resources. Subsequent calls return domain.ErrIndexUnavailable.
	Close() error
}

// LexicalEntry is one chunk text to upsert.
type LexicalEntry struct {
	ChunkID string
	Text    string
}

// LexicalHit represents a search result from the lexical index.
type LexicalHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the BM25 relevance score.
	Score float64
}
