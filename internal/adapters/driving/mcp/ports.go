package mcp

import (
	"github.com/custodia-labs/greds/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides hybrid retrieval.
	Search driving.SearchService

	// Verifier checks claims against cited chunks.
	Verifier driving.VerifierService

	// Session manages session state and checkpoints.
	Session driving.SessionService

	// Ingest resolves chunks and lists works.
	Ingest driving.IngestService

	// Audit lists the audit trail.
	Audit driving.AuditService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	// Tools and resources for the optional ports are registered only when set.
	return nil
}
