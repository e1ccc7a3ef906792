package driving

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// AuditService lists the audit trail.
type AuditService interface {
	// List returns audit events matching filter, newest first.
	// An invalid filter returns domain.ErrInvalidInput.
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}
