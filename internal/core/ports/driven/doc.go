// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Chunker: Splits work text into token windows
//   - VectorIndex: Dense vector similarity search over chunk embeddings
//   - LexicalIndex: Term-based BM25 search over chunk text
//   - WorkStore, ChunkStore: Work, chunk, embedding and summary persistence
//   - CitationStore: Append-only citation persistence
//   - SessionStore: Live session and checkpoint persistence
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, semantic search
//     only works for callers that supply their own query vectors, and claim
//     verification is disabled.
//   - AuditSink: Records audit events. Without it, events are dropped.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
