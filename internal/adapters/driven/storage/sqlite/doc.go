// Package sqlite provides a unified SQLite-based implementation of the persistence ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database connection serves:
//
//   - WorkStore: work metadata and lifecycle
//   - ChunkStore: chunks, embeddings and summaries
//   - CitationStore: append-only verifier records
//   - SessionStore: live sessions and checkpoint chains
//   - AuditSink: the audit_log table
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.greds/data/greds.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Multi-row writes run in a single transaction.
package sqlite
