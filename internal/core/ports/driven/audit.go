package driven

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// AuditSink records audit events.
// Sinks are append-only; a recorded event is never modified.
type AuditSink interface {
	// Record appends an event.
	Record(ctx context.Context, event domain.AuditEvent) error

	// Close flushes and releases resources.
	Close() error
}

// AuditReader lists recorded audit events.
type AuditReader interface {
	// ListAuditEvents returns events matching filter, newest first, at most filter.Limit.
	// The filter is expected to be normalized by domain.AuditFilter.Normalize.
	ListAuditEvents(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}
