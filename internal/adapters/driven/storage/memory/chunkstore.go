package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// SaveChunks atomically replaces the chunk set of a work.
func (s *Store) SaveChunks(_ context.Context, workID string, chunks []domain.Chunk) error {
	if err := domain.ValidateChunkSet(workID, chunks); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.works[workID]; !ok {
		return domain.ErrNotFound
	}

	old := make(map[string]domain.Chunk, len(s.workChunks[workID]))
	for _, id := range s.workChunks[workID] {
		old[id] = s.chunks[id]
	}

	incoming := make(map[string]string, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if prev, ok := s.chunks[c.ID]; ok && prev.WorkID != workID {
			return fmt.Errorf("%w: chunk %s", domain.ErrAlreadyExists, c.ID)
		}
		incoming[c.ID] = c.ContentHash
	}
	hashes := make(map[string]string, len(s.chunks))
	for id, c := range s.chunks {
		if c.WorkID != workID {
			hashes[c.ContentHash] = id
		}
	}
	for _, c := range chunks {
		if owner, ok := hashes[c.ContentHash]; ok {
			return fmt.Errorf("%w: content hash %s used by chunk %s", domain.ErrAlreadyExists, c.ContentHash, owner)
		}
	}

	// Cited chunks must survive the replacement unchanged.
	for id, c := range old {
		if hash, ok := incoming[id]; ok && hash == c.ContentHash {
			continue
		}
		if s.isCitedLocked(id) {
			return fmt.Errorf("%w: %s", domain.ErrChunkReferenced, id)
		}
	}

	now := s.now()
	for id, c := range old {
		if hash, ok := incoming[id]; ok && hash == c.ContentHash {
			continue
		}
		s.dropChunkLocked(id)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		if prev, ok := old[c.ID]; ok && prev.ContentHash == c.ContentHash {
			c.CreatedAt = prev.CreatedAt
		} else if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		chunks[i].CreatedAt = c.CreatedAt
		s.chunks[c.ID] = c
		ids[i] = c.ID
	}
	s.workChunks[workID] = ids
	return nil
}

// GetChunks retrieves all chunks for a work ordered by index.
func (s *Store) GetChunks(_ context.Context, workID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.workChunks[workID]
	result := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.chunks[id])
	}
	return result, nil
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &chunk, nil
}

// ListChunks returns every chunk ordered by ID.
func (s *Store) ListChunks(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveEmbedding stores the embedding of a chunk.
func (s *Store) SaveEmbedding(_ context.Context, embedding *domain.Embedding) error {
	if err := embedding.Validate(len(embedding.Vector)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[embedding.ChunkID]; !ok {
		return domain.ErrNotFound
	}

	prev, ok := s.embeddings[embedding.ChunkID]
	switch {
	case ok && prev.ModelName == embedding.ModelName:
		embedding.ID = prev.ID
		embedding.CreatedAt = prev.CreatedAt
	case embedding.ID == "" || (ok && embedding.ID == prev.ID):
		embedding.ID = newID()
	}
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = s.now()
	}
	embedding.Dimension = len(embedding.Vector)
	if embedding.VectorHash == "" {
		embedding.VectorHash = domain.VectorHash(embedding.Vector)
	}

	e := *embedding
	e.Vector = slices.Clone(e.Vector)
	s.embeddings[e.ChunkID] = e
	return nil
}

// GetEmbedding retrieves the embedding of a chunk.
func (s *Store) GetEmbedding(_ context.Context, chunkID string) (*domain.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[chunkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.Vector = slices.Clone(e.Vector)
	return &e, nil
}

// ListEmbeddings returns every embedding ordered by chunk ID.
func (s *Store) ListEmbeddings(_ context.Context) ([]domain.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Embedding, 0, len(s.embeddings))
	for _, e := range s.embeddings {
		e.Vector = slices.Clone(e.Vector)
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChunkID < result[j].ChunkID })
	return result, nil
}

// SaveSummary stores or replaces the summary of a chunk at one level.
func (s *Store) SaveSummary(_ context.Context, summary *domain.Summary) error {
	if !summary.Level.IsValid() {
		return fmt.Errorf("%w: unknown summary level %q", domain.ErrInvalidInput, summary.Level)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[summary.ChunkID]; !ok {
		return domain.ErrNotFound
	}

	levels, ok := s.summaries[summary.ChunkID]
	if !ok {
		levels = make(map[domain.SummaryLevel]domain.Summary)
		s.summaries[summary.ChunkID] = levels
	}
	if prev, ok := levels[summary.Level]; ok {
		summary.ID = prev.ID
	} else if summary.ID == "" {
		summary.ID = newID()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = s.now()
	}
	summary.CharCount = len([]rune(summary.Text))
	levels[summary.Level] = *summary
	return nil
}

// GetSummary retrieves the summary of a chunk at one level.
func (s *Store) GetSummary(_ context.Context, chunkID string, level domain.SummaryLevel) (*domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[chunkID][level]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &summary, nil
}

// dropChunkLocked removes a chunk and the records it owns. Caller holds mu.
func (s *Store) dropChunkLocked(id string) {
	delete(s.chunks, id)
	delete(s.embeddings, id)
	delete(s.summaries, id)
}
