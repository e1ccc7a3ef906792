// Package domain defines the core business entities for greds.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Work: An ingested source text identified by slug and version
//   - Chunk: A token window of a work, addressed by a RetrievalID
//   - Embedding: The dense vector of a chunk
//   - Citation: An immutable verification record linking a claim to a chunk
//   - Session: Live conversational state and its frozen checkpoints
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
