package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/greds/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// --- Mock implementations ---

// fastRetry retries quickly in tests.
var fastRetry = domain.RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
	Multiplier:     2,
}

// failer fails the first n calls with err, then succeeds.
type failer struct {
	mu    sync.Mutex
	n     int
	err   error
	calls int
}

func (f *failer) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.n {
		return f.err
	}
	return nil
}

func (f *failer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// mockVectorIndex implements driven.VectorIndex for testing.
type mockVectorIndex struct {
	hits    []driven.VectorHit
	dim     int
	search  failer
	upserts failer
	deleted []string
}

func (m *mockVectorIndex) Upsert(_ context.Context, _ string, _ []float32) error {
	return m.upserts.next()
}

func (m *mockVectorIndex) UpsertBatch(_ context.Context, _ []driven.VectorEntry) error {
	return m.upserts.next()
}

func (m *mockVectorIndex) Delete(_ context.Context, ids ...string) error {
	m.deleted = append(m.deleted, ids...)
	return nil
}

func (m *mockVectorIndex) Search(_ context.Context, q []float32, k int) ([]driven.VectorHit, error) {
	if err := m.search.next(); err != nil {
		return nil, err
	}
	if m.dim > 0 && len(q) != m.dim {
		return nil, domain.ErrDimensionMismatch
	}
	if k > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:k], nil
}

func (m *mockVectorIndex) Len() int       { return len(m.hits) }
func (m *mockVectorIndex) Dimension() int { return m.dim }
func (m *mockVectorIndex) Close() error   { return nil }

// mockLexicalIndex implements driven.LexicalIndex for testing.
type mockLexicalIndex struct {
	hits    []driven.LexicalHit
	search  failer
	upserts failer
}

func (m *mockLexicalIndex) Upsert(_ context.Context, _, _ string) error {
	return m.upserts.next()
}

func (m *mockLexicalIndex) UpsertBatch(_ context.Context, _ []driven.LexicalEntry) error {
	return m.upserts.next()
}

func (m *mockLexicalIndex) Delete(_ context.Context, _ ...string) error { return nil }

func (m *mockLexicalIndex) Search(_ context.Context, _ string, limit int) ([]driven.LexicalHit, error) {
	if err := m.search.next(); err != nil {
		return nil, err
	}
	if limit > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:limit], nil
}

func (m *mockLexicalIndex) Len() int     { return len(m.hits) }
func (m *mockLexicalIndex) Close() error { return nil }

// mockEmbeddingService implements driven.EmbeddingService for testing.
// Texts found in vectors get that vector; others get fallback or an error.
type mockEmbeddingService struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	embedErr error
	dims     int
	model    string
	calls    int
}

func (m *mockEmbeddingService) lookup(text string) ([]float32, error) {
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return nil, errors.New("no vector for " + text)
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.lookup(text)
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.lookup(text)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	if m.dims > 0 {
		return m.dims
	}
	return 2
}

func (m *mockEmbeddingService) ModelName() string {
	if m.model != "" {
		return m.model
	}
	return "mock-embed"
}

func (m *mockEmbeddingService) Ping(_ context.Context) error { return nil }
func (m *mockEmbeddingService) Close() error                 { return nil }

// unitAt returns a 2-d unit vector whose cosine with [1, 0] is s.
func unitAt(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}
}

// recordingSink implements driven.AuditSink for testing.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (r *recordingSink) Record(_ context.Context, e domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) byType(t domain.AuditEventType) []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range r.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// --- Fixtures ---

// seedWork stores a pending work whose chunks have the given texts and,
// when vectors is non-nil, embeddings under model.
func seedWork(
	t *testing.T, store *memory.Store, slug string, texts []string, vectors [][]float32, model string,
) []domain.Chunk {
	t.Helper()
	ctx := context.Background()

	work := &domain.Work{Slug: slug, Version: "1"}
	require.NoError(t, store.SaveWork(ctx, work))

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		id, err := domain.NewRetrievalID(slug, "1", i)
		require.NoError(t, err)
		chunks[i] = domain.Chunk{
			ID:          id.String(),
			WorkID:      work.ID,
			Index:       i,
			Text:        text,
			TokenCount:  len(text),
			ContentHash: domain.ContentHash(id, domain.DefaultChunkingParams(), text),
			Params:      domain.DefaultChunkingParams(),
		}
	}
	require.NoError(t, store.SaveChunks(ctx, work.ID, chunks))

	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		require.NoError(t, store.SaveEmbedding(ctx, &domain.Embedding{
			ChunkID:   chunks[i].ID,
			ModelName: model,
			Vector:    vec,
		}))
	}
	return chunks
}

// mockConfigStore implements driven.ConfigStore for testing.
type mockConfigStore struct {
	settings domain.Settings
	loadErr  error
	saves    int
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{settings: domain.DefaultSettings()}
}

func (m *mockConfigStore) Load() (domain.Settings, error) {
	if m.loadErr != nil {
		return domain.Settings{}, m.loadErr
	}
	return m.settings, nil
}

func (m *mockConfigStore) Save(s domain.Settings) error {
	m.saves++
	m.settings = s
	return nil
}

func (m *mockConfigStore) Path() string { return "/tmp/greds/config.toml" }
