package memory

import (
	"context"
	"sort"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// SaveWork stores or updates a work.
func (s *Store) SaveWork(_ context.Context, work *domain.Work) error {
	if err := work.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.works {
		if id != work.ID && other.Slug == work.Slug && other.Version == work.Version {
			return domain.ErrAlreadyExists
		}
	}

	now := s.now()
	if work.ID == "" {
		work.ID = newID()
	}
	if prev, ok := s.works[work.ID]; ok {
		if err := work.CheckUpdate(&prev); err != nil {
			return err
		}
		work.CreatedAt = prev.CreatedAt
	} else if work.CreatedAt.IsZero() {
		work.CreatedAt = now
	}
	if work.Status == "" {
		work.Status = domain.WorkStatusPending
	}
	work.UpdatedAt = now

	s.works[work.ID] = cloneWork(*work)
	return nil
}

// GetWork retrieves a work by ID.
func (s *Store) GetWork(_ context.Context, id string) (*domain.Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	work, ok := s.works[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	work = cloneWork(work)
	return &work, nil
}

// GetWorkBySlug retrieves a work by slug and version.
func (s *Store) GetWorkBySlug(_ context.Context, slug, version string) (*domain.Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, work := range s.works {
		if work.Slug == slug && work.Version == version {
			work = cloneWork(work)
			return &work, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListWorks returns all works ordered by slug then version.
func (s *Store) ListWorks(_ context.Context) ([]domain.Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Work, 0, len(s.works))
	for _, work := range s.works {
		result = append(result, cloneWork(work))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Slug != result[j].Slug {
			return result[i].Slug < result[j].Slug
		}
		return result[i].Version < result[j].Version
	})
	return result, nil
}

// DeleteWork removes a work and everything it owns.
func (s *Store) DeleteWork(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.works[id]; !ok {
		return domain.ErrNotFound
	}
	for _, chunkID := range s.workChunks[id] {
		if s.isCitedLocked(chunkID) {
			return domain.ErrChunkReferenced
		}
	}
	for _, chunkID := range s.workChunks[id] {
		s.dropChunkLocked(chunkID)
	}
	delete(s.workChunks, id)
	delete(s.works, id)
	return nil
}
