package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/core/ports/driving"
	"github.com/custodia-labs/greds/internal/logger"
)

// Ensure AuditService implements the interface.
var _ driving.AuditService = (*AuditService)(nil)

type correlationKey struct{}

// WithCorrelationID returns a context carrying id. Audit events recorded
// under the context share it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID carried by ctx, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ensureCorrelationID returns ctx with a correlation ID, generating one if absent.
func ensureCorrelationID(ctx context.Context) context.Context {
	if CorrelationID(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, uuid.New().String())
}

// auditor records audit events. A failing sink never fails the operation.
type auditor struct {
	sink driven.AuditSink
}

// record writes one event describing an operation that started at start.
// err decides the status.
func (a auditor) record(
	ctx context.Context,
	eventType domain.AuditEventType,
	action, resourceType, resourceID string,
	start time.Time,
	err error,
	metadata map[string]any,
) {
	if a.sink == nil {
		return
	}

	event := domain.AuditEvent{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		CorrelationID: CorrelationID(ctx),
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Metadata:      metadata,
		Status:        domain.AuditSuccess,
		DurationMS:    time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Status = domain.AuditFailure
		event.ErrorMessage = err.Error()
	}

	// Recording outlives a cancelled request.
	if recErr := a.sink.Record(context.WithoutCancel(ctx), event); recErr != nil {
		logger.Warn("Audit %s/%s not recorded: %v", eventType, action, recErr)
	}
}

// AuditService lists recorded audit events.
type AuditService struct {
	reader driven.AuditReader
}

// NewAuditService creates a new audit service.
func NewAuditService(reader driven.AuditReader) *AuditService {
	return &AuditService{reader: reader}
}

// List returns events matching filter, newest first.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}
	logger.Debug("Listing audit events: type=%q start=%v end=%v limit=%d",
		filter.EventType, filter.Start, filter.End, filter.Limit)
	return s.reader.ListAuditEvents(ctx, filter)
}
