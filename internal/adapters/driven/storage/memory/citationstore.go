package memory

import (
	"context"
	"fmt"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// AppendCitations stores citations atomically.
func (s *Store) AppendCitations(_ context.Context, citations []domain.Citation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(citations))
	for i := range citations {
		c := &citations[i]
		if _, ok := s.chunks[c.ChunkID]; !ok {
			return fmt.Errorf("%w: cited chunk %s", domain.ErrNotFound, c.ChunkID)
		}
		if !c.Decision.IsValid() {
			return fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidInput, c.Decision)
		}
		if c.ID == "" {
			continue
		}
		if _, dup := s.citationID[c.ID]; dup {
			return fmt.Errorf("%w: citation %s", domain.ErrAlreadyExists, c.ID)
		}
		if _, dup := batch[c.ID]; dup {
			return fmt.Errorf("%w: citation %s", domain.ErrAlreadyExists, c.ID)
		}
		batch[c.ID] = struct{}{}
	}

	now := s.now()
	for i := range citations {
		c := &citations[i]
		if c.ID == "" {
			c.ID = newID()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		s.citationID[c.ID] = struct{}{}
		s.citations = append(s.citations, cloneCitation(*c))
	}
	return nil
}

// ListCitationsByRun returns the citations of a run in creation order.
func (s *Store) ListCitationsByRun(_ context.Context, runID string) ([]domain.Citation, error) {
	return s.filterCitations(func(c domain.Citation) bool { return c.RunID == runID }), nil
}

// ListCitationsByChunk returns the citations of a chunk in creation order.
func (s *Store) ListCitationsByChunk(_ context.Context, chunkID string) ([]domain.Citation, error) {
	return s.filterCitations(func(c domain.Citation) bool { return c.ChunkID == chunkID }), nil
}

func (s *Store) filterCitations(keep func(domain.Citation) bool) []domain.Citation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Citation
	for _, c := range s.citations {
		if keep(c) {
			result = append(result, cloneCitation(c))
		}
	}
	return result
}

// isCitedLocked reports whether any citation references chunkID. Caller holds mu.
func (s *Store) isCitedLocked(chunkID string) bool {
	for _, c := range s.citations {
		if c.ChunkID == chunkID {
			return true
		}
	}
	return false
}
