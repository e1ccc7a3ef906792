package vector

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

func newIndex(t *testing.T, dim int) *Index {
	t.Helper()
	idx, err := New(dim)
	require.NoError(t, err)
	return idx
}

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_EmptySearch(t *testing.T) {
	idx := newIndex(t, 3)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)
}

func TestIndex_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 2)

	require.NoError(t, idx.Upsert(ctx, "b", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{2, 0}))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{1, 1}))
	require.NoError(t, idx.Upsert(ctx, "d", []float32{0, 1}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// a and b are both parallel to the query: tie broken by ascending ID.
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "b", hits[1].ChunkID)
	assert.Equal(t, "c", hits[2].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.InDelta(t, 0.7071, hits[2].Similarity, 1e-3)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 3)

	err := idx.Upsert(ctx, "a", []float32{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 2, 3, 4}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	assert.Equal(t, 0, idx.Len())
}

func TestIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 2)

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}))
	assert.Equal(t, 1, idx.Len())

	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestIndex_BatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 2)

	err := idx.UpsertBatch(ctx, []driven.VectorEntry{
		{ChunkID: "a", Vector: []float32{1, 0}},
		{ChunkID: "b", Vector: []float32{1}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 2)

	require.NoError(t, idx.UpsertBatch(ctx, []driven.VectorEntry{
		{ChunkID: "a", Vector: []float32{1, 0}},
		{ChunkID: "b", Vector: []float32{0, 1}},
		{ChunkID: "c", Vector: []float32{1, 1}},
	}))

	require.NoError(t, idx.Delete(ctx, "a", "missing"))
	assert.Equal(t, 2, idx.Len())

	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	ids := []string{hits[0].ChunkID, hits[1].ChunkID}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
	assert.Equal(t, "c", hits[0].ChunkID)
}

func TestIndex_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 2)
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}))

	before := idx.snap.Load()
	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{1, 0}))

	assert.Len(t, before.ids, 1, "published snapshots are never mutated")
	assert.InDelta(t, 1.0, before.vecs[0][0], 1e-6)
}

func TestIndex_ZeroQuery(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 2)
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}))

	hits, err := idx.Search(ctx, []float32{0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_CancelledSearch(t *testing.T) {
	idx := newIndex(t, 2)
	require.NoError(t, idx.Upsert(context.Background(), "a", []float32{1, 0}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex_Closed(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 2)
	require.NoError(t, idx.Close())

	_, err := idx.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.ErrorIs(t, idx.Upsert(ctx, "a", []float32{1, 0}), domain.ErrIndexUnavailable)
}

func TestIndex_ConcurrentReadWrite(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 4)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				id := fmt.Sprintf("w%d-%d", w, n)
				assert.NoError(t, idx.Upsert(ctx, id, []float32{float32(w + 1), float32(n + 1), 1, 0}))
			}
		}()
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				hits, err := idx.Search(ctx, []float32{1, 1, 1, 0}, 10)
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(hits), 10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, idx.Len())
}
