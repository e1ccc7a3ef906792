package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Semantic search and claim verification are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Chunking and Indexing Errors.

	// ErrInvalidChunkingParams indicates a chunk size or overlap ratio outside its valid range.
	ErrInvalidChunkingParams = errors.New("invalid chunking params")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexUnavailable indicates an index could not serve the request.
	// It is the only retryable error.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrMalformedRetrievalID indicates a retrieval ID that is not slug:version:index.
	ErrMalformedRetrievalID = errors.New("malformed retrieval id")

	// Retrieval and Verification Errors.

	// ErrEmptyQuery indicates a query with neither a vector nor text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrInvalidThresholdConfig indicates verifier thresholds with partial above pass.
	ErrInvalidThresholdConfig = errors.New("invalid threshold config")

	// Work Lifecycle Errors.

	// ErrWorkImmutable indicates an attempt to change a completed work's content.
	ErrWorkImmutable = errors.New("work is immutable once completed")

	// ErrInvalidStatusTransition indicates a work status change that is not allowed.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrChunkReferenced indicates chunks cannot be deleted because citations reference them.
	ErrChunkReferenced = errors.New("chunk is referenced by one or more citations")

	// Session Errors.

	// ErrNoActiveSession indicates the session has no live state to checkpoint.
	ErrNoActiveSession = errors.New("no active session")

	// ErrCheckpointNotFound indicates an unknown checkpoint ID.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCheckpointCycle indicates a parent link that would make the checkpoint chain cyclic.
	ErrCheckpointCycle = errors.New("checkpoint chain cycle")

	// ErrCheckpointHasChildren indicates a checkpoint cannot be deleted while children reference it.
	ErrCheckpointHasChildren = errors.New("checkpoint has children")
)

// IsRetryable reports whether err is transient and worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable)
}
