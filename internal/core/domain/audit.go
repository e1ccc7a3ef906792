package domain

import (
	"fmt"
	"time"
)

// AuditEventType classifies audit events.
type AuditEventType string

// Available audit event types.
const (
	AuditIngestion    AuditEventType = "ingestion"
	AuditRetrieval    AuditEventType = "retrieval"
	AuditVerification AuditEventType = "verification"
	AuditSession      AuditEventType = "session"
	AuditCheckpoint   AuditEventType = "checkpoint"
)

// AuditStatus is the outcome recorded by an audit event.
type AuditStatus string

// Available audit statuses.
const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// AuditEvent is an append-only record of an operation.
type AuditEvent struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	EventType     AuditEventType `json:"event_type"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Action        string         `json:"action"`
	ResourceType  string         `json:"resource_type,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Status        AuditStatus    `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
}

// IsValid returns true if the event type is recognised.
func (t AuditEventType) IsValid() bool {
	switch t {
	case AuditIngestion, AuditRetrieval, AuditVerification, AuditSession, AuditCheckpoint:
		return true
	default:
		return false
	}
}

// Audit listing limits.
const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditFilter selects audit events for listing.
// Zero Start or End leaves that side of the range open.
type AuditFilter struct {
	// Start is the earliest timestamp returned, inclusive.
	Start time.Time

	// End is the latest timestamp returned, exclusive.
	End time.Time

	// EventType restricts the listing to one type; empty matches every type.
	EventType AuditEventType

	// Limit caps the number of events; 0 means DefaultAuditLimit.
	Limit int
}

// Normalize validates the filter and resolves its limit.
func (f AuditFilter) Normalize() (AuditFilter, error) {
	if f.EventType != "" && !f.EventType.IsValid() {
		return f, fmt.Errorf("%w: unknown audit event type %q", ErrInvalidInput, f.EventType)
	}
	if !f.Start.IsZero() && !f.End.IsZero() && !f.End.After(f.Start) {
		return f, fmt.Errorf("%w: audit range end %s is not after start %s",
			ErrInvalidInput, f.End.Format(time.RFC3339), f.Start.Format(time.RFC3339))
	}
	switch {
	case f.Limit < 0:
		return f, fmt.Errorf("%w: audit limit must not be negative, got %d", ErrInvalidInput, f.Limit)
	case f.Limit == 0:
		f.Limit = DefaultAuditLimit
	case f.Limit > MaxAuditLimit:
		f.Limit = MaxAuditLimit
	}
	return f, nil
}

// Matches reports whether event falls inside the filter's type and range.
func (f AuditFilter) Matches(event *AuditEvent) bool {
	if f.EventType != "" && event.EventType != f.EventType {
		return false
	}
	if !f.Start.IsZero() && event.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !event.Timestamp.Before(f.End) {
		return false
	}
	return true
}
