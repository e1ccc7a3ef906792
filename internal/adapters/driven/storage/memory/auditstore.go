package memory

import (
	"context"
	"maps"
	"slices"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// Record appends an audit event.
func (s *Store) Record(_ context.Context, event domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = newID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	event.Metadata = maps.Clone(event.Metadata)
	s.audit = append(s.audit, event)
	return nil
}

// ListAuditEvents returns events matching filter, newest first.
func (s *Store) ListAuditEvents(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.AuditEvent{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		if filter.Matches(&s.audit[i]) {
			e := s.audit[i]
			e.Metadata = maps.Clone(e.Metadata)
			out = append(out, e)
		}
	}
	// Equal timestamps keep reverse recording order.
	slices.SortStableFunc(out, func(a, b domain.AuditEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
