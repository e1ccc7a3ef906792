package audit

import (
	"context"
	"errors"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// Ensure MultiSink and NopSink implement the interface.
var (
	_ driven.AuditSink = (*MultiSink)(nil)
	_ driven.AuditSink = NopSink{}
)

// MultiSink records every event to each of its sinks.
type MultiSink struct {
	sinks []driven.AuditSink
}

// NewMultiSink fans events out to sinks. Nil sinks are skipped.
func NewMultiSink(sinks ...driven.AuditSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record writes event to every sink, joining their errors.
func (m *MultiSink) Record(ctx context.Context, event domain.AuditEvent) error {
	event = withDefaults(event)
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards events.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(context.Context, domain.AuditEvent) error { return nil }

// Close does nothing.
func (NopSink) Close() error { return nil }
