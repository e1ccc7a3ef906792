package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// Ensure FileSink implements the interface.
var _ driven.AuditSink = (*FileSink)(nil)

// dateLayout names the per-day partition.
const dateLayout = "2006-01-02"

// FileSink appends events as JSON lines under a local directory.
type FileSink struct {
	mu  sync.Mutex
	dir string
}

// NewFileSink creates a sink rooted at dir, creating it if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: audit directory is required", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Record appends event to its day and type file.
func (s *FileSink) Record(_ context.Context, event domain.AuditEvent) error {
	event = withDefaults(event)
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling audit event: %w", err)
	}
	line = append(line, '\n')

	path := s.Path(event.Timestamp, event.EventType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating audit partition: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening audit file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("writing audit event: %w", err)
	}
	return f.Close()
}

// Path returns the file an event of eventType at ts is written to.
func (s *FileSink) Path(ts time.Time, eventType domain.AuditEventType) string {
	return filepath.Join(s.dir, ts.UTC().Format(dateLayout), string(eventType)+".jsonl")
}

// Close releases resources.
func (s *FileSink) Close() error {
	return nil
}

// withDefaults fills the ID and timestamp of an event.
func withDefaults(event domain.AuditEvent) domain.AuditEvent {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Timestamp = event.Timestamp.UTC()
	return event
}
