// Package vector provides an exact cosine-similarity vector index.
//
// Vectors are normalised on insert and scanned exhaustively on search.
// Writers build a new immutable snapshot and publish it atomically, so a
// search always runs against the snapshot that was current when it started.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// cancelCheckInterval is how many vectors are scored between context checks.
const cancelCheckInterval = 1024

type snapshot struct {
	ids  []string
	vecs [][]float32
	pos  map[string]int
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		ids:  make([]string, len(s.ids), len(s.ids)+1),
		vecs: make([][]float32, len(s.vecs), len(s.vecs)+1),
		pos:  make(map[string]int, len(s.pos)+1),
	}
	copy(next.ids, s.ids)
	copy(next.vecs, s.vecs)
	for k, v := range s.pos {
		next.pos[k] = v
	}
	return next
}

// Index is an in-memory flat vector index.
type Index struct {
	dim    int
	mu     sync.Mutex
	snap   atomic.Pointer[snapshot]
	closed atomic.Bool
}

// New creates an empty index for vectors of length dim.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", domain.ErrInvalidInput, dim)
	}
	idx := &Index{dim: dim}
	idx.snap.Store(&snapshot{pos: make(map[string]int)})
	return idx, nil
}

// Dimension returns the vector length the index accepts.
func (i *Index) Dimension() int {
	return i.dim
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int {
	return len(i.snap.Load().ids)
}

// Upsert inserts or replaces the vector for chunkID.
func (i *Index) Upsert(ctx context.Context, chunkID string, vec []float32) error {
	return i.UpsertBatch(ctx, []driven.VectorEntry{{ChunkID: chunkID, Vector: vec}})
}

// UpsertBatch applies all entries in one snapshot change.
func (i *Index) UpsertBatch(ctx context.Context, entries []driven.VectorEntry) error {
	if i.closed.Load() {
		return domain.ErrIndexUnavailable
	}
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}
		if err := i.checkDim(e.Vector); err != nil {
			return fmt.Errorf("upsert %s: %w", e.ChunkID, err)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	next := i.snap.Load().clone()
	for _, e := range entries {
		vec := domain.Normalize(e.Vector)
		if p, ok := next.pos[e.ChunkID]; ok {
			next.vecs[p] = vec
			continue
		}
		next.pos[e.ChunkID] = len(next.ids)
		next.ids = append(next.ids, e.ChunkID)
		next.vecs = append(next.vecs, vec)
	}
	i.snap.Store(next)
	return nil
}

// Delete removes vectors. Unknown IDs are ignored.
func (i *Index) Delete(ctx context.Context, chunkIDs ...string) error {
	if i.closed.Load() {
		return domain.ErrIndexUnavailable
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	next := i.snap.Load().clone()
	removed := false
	for _, id := range chunkIDs {
		p, ok := next.pos[id]
		if !ok {
			continue
		}
		last := len(next.ids) - 1
		if p != last {
			next.ids[p] = next.ids[last]
			next.vecs[p] = next.vecs[last]
			next.pos[next.ids[p]] = p
		}
		next.ids = next.ids[:last]
		next.vecs = next.vecs[:last]
		delete(next.pos, id)
		removed = true
	}
	if removed {
		i.snap.Store(next)
	}
	return nil
}

// Search returns at most k chunks by descending cosine similarity.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if i.closed.Load() {
		return nil, domain.ErrIndexUnavailable
	}
	if err := i.checkDim(query); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	snap := i.snap.Load()
	if k <= 0 || len(snap.ids) == 0 {
		return []driven.VectorHit{}, nil
	}
	q := domain.Normalize(query)
	if domain.IsZeroVector(q) {
		return []driven.VectorHit{}, nil
	}

	hits := make([]driven.VectorHit, len(snap.ids))
	for n, vec := range snap.vecs {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[n] = driven.VectorHit{ChunkID: snap.ids[n], Similarity: dot(q, vec)}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].ChunkID < hits[b].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close marks the index unavailable and drops its vectors.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed.Store(true)
	i.snap.Store(&snapshot{pos: make(map[string]int)})
	return nil
}

func (i *Index) checkDim(vec []float32) error {
	if len(vec) != i.dim {
		return fmt.Errorf("%w: got %d dimensions, index has %d", domain.ErrDimensionMismatch, len(vec), i.dim)
	}
	return nil
}

// dot returns the dot product of two unit vectors, clamped to [-1, 1].
func dot(a, b []float32) float64 {
	var sum float64
	for n := range a {
		sum += float64(a[n]) * float64(b[n])
	}
	return math.Max(-1, math.Min(1, sum))
}
