// Package memory provides in-memory implementations of the persistence ports.
// It backs tests and the "memory" storage backend; nothing survives Close.
package memory

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.Store = (*Store)(nil)

// Store is an in-memory implementation of driven.Store.
// All records are copied on the way in and out.
type Store struct {
	mu sync.RWMutex

	works      map[string]domain.Work
	chunks     map[string]domain.Chunk
	workChunks map[string][]string
	embeddings map[string]domain.Embedding
	summaries  map[string]map[domain.SummaryLevel]domain.Summary
	citations  []domain.Citation
	citationID map[string]struct{}
	live       map[string]domain.Session
	checkpts   map[string]domain.Session
	audit      []domain.AuditEvent

	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		works:      make(map[string]domain.Work),
		chunks:     make(map[string]domain.Chunk),
		workChunks: make(map[string][]string),
		embeddings: make(map[string]domain.Embedding),
		summaries:  make(map[string]map[domain.SummaryLevel]domain.Summary),
		citationID: make(map[string]struct{}),
		live:       make(map[string]domain.Session),
		checkpts:   make(map[string]domain.Session),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

func newID() string {
	return uuid.New().String()
}

func cloneWork(w domain.Work) domain.Work {
	w.Authors = slices.Clone(w.Authors)
	w.Tags = slices.Clone(w.Tags)
	w.Metadata = maps.Clone(w.Metadata)
	return w
}

func cloneCitation(c domain.Citation) domain.Citation {
	c.ContextWindow = slices.Clone(c.ContextWindow)
	return c
}

func cloneSession(sess domain.Session) domain.Session {
	claims := make([]domain.Claim, len(sess.AcceptedClaims))
	for i, c := range sess.AcceptedClaims {
		c.CitationIDs = slices.Clone(c.CitationIDs)
		claims[i] = c
	}
	citations := make([]domain.Citation, len(sess.TopCitations))
	for i, c := range sess.TopCitations {
		citations[i] = cloneCitation(c)
	}
	sess.AcceptedClaims = claims
	sess.TopCitations = citations
	return sess
}
