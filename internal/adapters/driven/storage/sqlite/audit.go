package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// ==================== Audit Sink ====================

// Record appends an audit event to audit_log.
func (s *Store) Record(ctx context.Context, event domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = newID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling audit metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, event_type, correlation_id, user_id, action,
			resource_type, resource_id, metadata, status, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Timestamp.UTC(), string(event.EventType), event.CorrelationID, event.UserID,
		event.Action, event.ResourceType, event.ResourceID, string(metadataJSON), string(event.Status),
		event.ErrorMessage, event.DurationMS)
	if err != nil {
		return fmt.Errorf("recording audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns events matching filter, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, timestamp, event_type, correlation_id, user_id, action, resource_type,
			resource_id, metadata, status, error_message, duration_ms
		FROM audit_log
		WHERE 1 = 1`
	var args []any
	if filter.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(filter.EventType))
	}
	if !filter.Start.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.End.UTC())
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.AuditEvent
		var eventTypeStr, status, metadataJSON string
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventTypeStr, &e.CorrelationID, &e.UserID,
			&e.Action, &e.ResourceType, &e.ResourceID, &metadataJSON, &status, &e.ErrorMessage,
			&e.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		e.EventType = domain.AuditEventType(eventTypeStr)
		e.Status = domain.AuditStatus(status)
		e.Timestamp = e.Timestamp.UTC()
		if metadataJSON != "" && metadataJSON != jsonNull {
			if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return events, nil
}
