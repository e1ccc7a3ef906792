package domain

// IngestRequest asks for one work to be chunked, embedded and indexed.
type IngestRequest struct {
	// Work carries the identity and metadata. Status and counters are managed by ingestion.
	Work Work

	// Text is the full extracted text of the work.
	Text string

	// Params overrides the configured chunking params when non-nil.
	Params *ChunkingParams
}
