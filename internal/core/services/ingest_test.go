package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/greds/internal/adapters/driven/index/lexical"
	"github.com/custodia-labs/greds/internal/adapters/driven/index/vector"
	"github.com/custodia-labs/greds/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/postprocessors"
)

const originText = "Finches differ in beak shape across the islands. " +
	"Each island favours a diet. Seeds need strong beaks. " +
	"Insects need fine beaks. Pigeons were bred by fanciers in England. " +
	"Barnacles took eight years of study."

func ingestSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.Chunking = domain.ChunkingParams{Size: 8, OverlapRatio: 0.25, Seed: 1, Strategy: domain.ChunkingStrategyFixedTokens}
	s.Embedding.BatchSize = 2
	s.Retry = fastRetry
	return s
}

type ingestFixture struct {
	store   *memory.Store
	vectors driven.VectorIndex
	lexical driven.LexicalIndex
	svc     *IngestService
}

// newIngestFixture wires an ingest service over a memory store. A nil
// embedder is passed through as an untyped nil.
func newIngestFixture(t *testing.T, embedder driven.EmbeddingService, vec driven.VectorIndex, lex driven.LexicalIndex) *ingestFixture {
	t.Helper()
	settings := ingestSettings()
	store := memory.NewStore()
	svc := NewIngestService(store, store, postprocessors.NewDefaultRegistry(settings.Chunking), embedder, vec, lex, settings)
	return &ingestFixture{store: store, vectors: vec, lexical: lex, svc: svc}
}

func newHashingFixture(t *testing.T) *ingestFixture {
	t.Helper()
	vec, err := vector.New(64)
	require.NoError(t, err)
	return newIngestFixture(t, hashing.NewEmbeddingService(64), vec, lexical.New())
}

func originRequest() domain.IngestRequest {
	return domain.IngestRequest{
		Work: domain.Work{Slug: "origin", Version: "1", Title: "On the Origin of Species"},
		Text: originText,
	}
}

func TestIngestService_Ingest(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)

	work, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusCompleted, work.Status)
	assert.NotEmpty(t, work.ID)
	require.NotNil(t, work.IngestionStartedAt)
	require.NotNil(t, work.IngestionCompletedAt)

	// 34 tokens, step 6: windows start at 0, 6, ..., 30.
	assert.Equal(t, 6, work.TotalChunks)

	chunks, err := f.store.GetChunks(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 6)
	assert.Equal(t, "origin:1:0", chunks[0].ID)
	assert.Equal(t, 8, chunks[0].Params.Size)

	embeddings, err := f.store.ListEmbeddings(ctx)
	require.NoError(t, err)
	assert.Len(t, embeddings, 6)
	assert.Equal(t, hashing.DefaultModel, embeddings[0].ModelName)

	summary, err := f.store.GetSummary(ctx, "origin:1:0", domain.SummaryShort)
	require.NoError(t, err)
	assert.Equal(t, "Finches differ in beak shape across the islands.", summary.Text)
	assert.Equal(t, extractiveModel, summary.LLMModel)

	assert.Equal(t, 6, f.vectors.Len())
	assert.Equal(t, 6, f.lexical.Len())

	stored, err := f.store.GetWorkBySlug(ctx, "origin", "1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusCompleted, stored.Status)
	assert.Equal(t, 6, stored.TotalChunks)

	search := NewSearchService(f.vectors, f.lexical, hashing.NewEmbeddingService(64), f.store, testRetrieval, fastRetry)
	results, err := search.SearchText(ctx, "pigeons fanciers", domain.SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, strings.ToLower(results[0].Chunk.Text), "pigeons")
}

func TestIngestService_Ingest_EmptyText(t *testing.T) {
	f := newHashingFixture(t)
	req := originRequest()
	req.Text = "   "

	work, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusCompleted, work.Status)
	assert.Zero(t, work.TotalChunks)
}

func TestIngestService_Ingest_InvalidRequest(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)

	req := originRequest()
	req.Params = &domain.ChunkingParams{Size: 0, OverlapRatio: 0.2}
	_, err := f.svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidChunkingParams)

	req.Params = &domain.ChunkingParams{Size: 10, OverlapRatio: 0.1, Strategy: "semantic"}
	_, err = f.svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidChunkingParams)

	req = originRequest()
	req.Work.Slug = "bad:slug"
	_, err = f.svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	works, err := f.svc.ListWorks(ctx)
	require.NoError(t, err)
	assert.Empty(t, works, "rejected requests store nothing")
}

func TestIngestService_Ingest_ParamsOverride(t *testing.T) {
	f := newHashingFixture(t)
	req := originRequest()
	req.Params = &domain.ChunkingParams{Size: 100, OverlapRatio: 0}

	work, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, work.TotalChunks)
}

func TestIngestService_Ingest_CompletedIsImmutable(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)

	_, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)

	req := originRequest()
	req.Text = "entirely different text"
	_, err = f.svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, domain.ErrWorkImmutable)

	chunks, err := f.store.ListChunks(ctx)
	require.NoError(t, err)
	assert.Len(t, chunks, 6)

	// A new version is a new work.
	req.Work.Version = "2"
	work, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, work.TotalChunks)
}

func TestIngestService_Ingest_FailureMarksFailedThenRetries(t *testing.T) {
	ctx := context.Background()
	vec, err := vector.New(2)
	require.NoError(t, err)
	embedder := &mockEmbeddingService{embedErr: domain.ErrEmbeddingUnavailable}
	f := newIngestFixture(t, embedder, vec, lexical.New())

	_, err = f.svc.Ingest(ctx, originRequest())
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	stored, err := f.store.GetWorkBySlug(ctx, "origin", "1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusFailed, stored.Status)
	assert.Equal(t, 0, f.lexical.Len())
	assertNothingStored(t, f, stored.ID)

	embedder.embedErr = nil
	embedder.fallback = []float32{1, 0}
	work, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)
	assert.Equal(t, stored.ID, work.ID, "a retry keeps the work identity")
	assert.Equal(t, domain.WorkStatusCompleted, work.Status)
	assert.Equal(t, 6, vec.Len())
}

func TestIngestService_Ingest_ResetsInterruptedWork(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)

	interrupted := &domain.Work{Slug: "origin", Version: "1", Status: domain.WorkStatusPending}
	require.NoError(t, f.store.SaveWork(ctx, interrupted))
	interrupted.Status = domain.WorkStatusProcessing
	require.NoError(t, f.store.SaveWork(ctx, interrupted))

	work, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)
	assert.Equal(t, interrupted.ID, work.ID)
	assert.Equal(t, domain.WorkStatusCompleted, work.Status)
}

func TestIngestService_Ingest_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	vec, err := vector.New(3)
	require.NoError(t, err)
	f := newIngestFixture(t, &mockEmbeddingService{fallback: []float32{1, 0}}, vec, lexical.New())

	_, err = f.svc.Ingest(ctx, originRequest())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	stored, err := f.store.GetWorkBySlug(ctx, "origin", "1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusFailed, stored.Status)
	assertNothingStored(t, f, stored.ID)
}

// assertNothingStored checks a failed work left no chunks, summaries,
// embeddings or lexical entries behind.
func assertNothingStored(t *testing.T, f *ingestFixture, workID string) {
	t.Helper()
	ctx := context.Background()

	chunks, err := f.store.GetChunks(ctx, workID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = f.store.GetChunk(ctx, "origin:1:0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.GetSummary(ctx, "origin:1:0", domain.SummaryShort)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	embeddings, err := f.store.ListEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, embeddings)

	hits, err := f.lexical.Search(ctx, "pigeons", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestService_Ingest_IndexFailureClearsChunks(t *testing.T) {
	ctx := context.Background()
	vec := &mockVectorIndex{dim: 2, upserts: failer{n: 100, err: domain.ErrIndexUnavailable}}
	f := newIngestFixture(t, &mockEmbeddingService{fallback: []float32{1, 0}}, vec, lexical.New())

	_, err := f.svc.Ingest(ctx, originRequest())
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	stored, err := f.store.GetWorkBySlug(ctx, "origin", "1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusFailed, stored.Status)
	assertNothingStored(t, f, stored.ID)
	assert.Len(t, vec.deleted, 6, "the failed chunk set is dropped from the vector index")

	// Rebuilding from the store after a restart finds nothing to index.
	fresh := lexical.New()
	settings := ingestSettings()
	restarted := NewIngestService(f.store, f.store, postprocessors.NewDefaultRegistry(settings.Chunking),
		nil, nil, fresh, settings)
	n, err := restarted.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, fresh.Len())
}

func TestIngestService_Ingest_BadVectorLength(t *testing.T) {
	vec, err := vector.New(2)
	require.NoError(t, err)
	f := newIngestFixture(t, &mockEmbeddingService{fallback: []float32{1, 0, 0}}, vec, lexical.New())

	_, err = f.svc.Ingest(context.Background(), originRequest())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	stored, err := f.store.GetWorkBySlug(context.Background(), "origin", "1")
	require.NoError(t, err)
	assertNothingStored(t, f, stored.ID)
}

func TestIngestService_Ingest_WithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	vec, err := vector.New(2)
	require.NoError(t, err)
	f := newIngestFixture(t, nil, vec, lexical.New())

	work, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusCompleted, work.Status)
	assert.Equal(t, 0, vec.Len())
	assert.Equal(t, 6, f.lexical.Len())

	embeddings, err := f.store.ListEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, embeddings)
}

func TestIngestService_Ingest_BatchesEmbeddings(t *testing.T) {
	vec, err := vector.New(2)
	require.NoError(t, err)
	embedder := &mockEmbeddingService{fallback: []float32{0, 1}}
	f := newIngestFixture(t, embedder, vec, lexical.New())

	_, err = f.svc.Ingest(context.Background(), originRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.calls, "six chunks in batches of two")
}

func TestIngestService_Ingest_IndexRetry(t *testing.T) {
	ctx := context.Background()
	lex := &mockLexicalIndex{upserts: failer{n: 2, err: domain.ErrIndexUnavailable}}
	f := newIngestFixture(t, nil, nil, lex)

	work, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusCompleted, work.Status)
	assert.Equal(t, 3, lex.upserts.count())

	lex = &mockLexicalIndex{upserts: failer{n: 100, err: domain.ErrIndexUnavailable}}
	f = newIngestFixture(t, nil, nil, lex)
	_, err = f.svc.Ingest(ctx, originRequest())
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	stored, err := f.store.GetWorkBySlug(ctx, "origin", "1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkStatusFailed, stored.Status)
}

func TestIngestService_Ingest_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := originRequest()
			req.Work.Slug = fmt.Sprintf("work-%d", i)
			_, err := f.svc.Ingest(ctx, req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	works, err := f.svc.ListWorks(ctx)
	require.NoError(t, err)
	assert.Len(t, works, 5)
	assert.Equal(t, 30, f.lexical.Len())
	assert.Equal(t, 0, f.svc.locks.size())
}

func TestIngestService_Ingest_SameWorkSerialized(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Ingest(ctx, originRequest())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrWorkImmutable)
	}
	assert.Equal(t, 1, succeeded)
}

func TestIngestService_Reindex(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)
	_, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)

	vec, err := vector.New(64)
	require.NoError(t, err)
	lex := lexical.New()
	settings := ingestSettings()
	fresh := NewIngestService(f.store, f.store, postprocessors.NewDefaultRegistry(settings.Chunking),
		hashing.NewEmbeddingService(64), vec, lex, settings)

	n, err := fresh.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, vec.Len())
	assert.Equal(t, 6, lex.Len())

	// Embeddings of another model are not loaded into the vector index.
	vec, err = vector.New(64)
	require.NoError(t, err)
	other := NewIngestService(f.store, f.store, postprocessors.NewDefaultRegistry(settings.Chunking),
		&mockEmbeddingService{dims: 64, model: "other"}, vec, lexical.New(), settings)
	_, err = other.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, vec.Len())
}

func TestIngestService_Reindex_SkipsUnfinishedWorks(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)
	_, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)

	// Chunks of a work that never completed, as an interrupted run leaves them.
	seedWork(t, f.store, "voyage", []string{"Pigeons nest on the cliffs of the island."}, nil, "")

	vec, err := vector.New(64)
	require.NoError(t, err)
	lex := lexical.New()
	settings := ingestSettings()
	fresh := NewIngestService(f.store, f.store, postprocessors.NewDefaultRegistry(settings.Chunking),
		hashing.NewEmbeddingService(64), vec, lex, settings)

	n, err := fresh.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, lex.Len())
	assert.Equal(t, 6, vec.Len())

	hits, err := lex.Search(ctx, "cliffs", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestService_DeleteWork(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)
	_, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteWork(ctx, "origin", "1"))
	assert.Equal(t, 0, f.vectors.Len())
	assert.Equal(t, 0, f.lexical.Len())

	_, err = f.store.GetChunk(ctx, "origin:1:0")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteWork(ctx, "origin", "1"), domain.ErrNotFound)
}

func TestIngestService_DeleteWork_Cited(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)
	_, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)

	require.NoError(t, f.store.AppendCitations(ctx, []domain.Citation{{
		RunID:    "r",
		ChunkID:  "origin:1:2",
		Decision: domain.DecisionPass,
	}}))

	err = f.svc.DeleteWork(ctx, "origin", "1")
	assert.ErrorIs(t, err, domain.ErrChunkReferenced)
	assert.Equal(t, 6, f.lexical.Len(), "indexes are untouched")

	_, err = f.svc.GetChunk(ctx, "origin:1:2")
	assert.NoError(t, err)
}

func TestIngestService_GetChunk(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)
	_, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)

	chunk, err := f.svc.GetChunk(ctx, "origin:1:1")
	require.NoError(t, err)
	assert.Equal(t, 1, chunk.Index)

	_, err = f.svc.GetChunk(ctx, "origin:1")
	assert.ErrorIs(t, err, domain.ErrMalformedRetrievalID)

	_, err = f.svc.GetChunk(ctx, "origin:1:x")
	assert.ErrorIs(t, err, domain.ErrMalformedRetrievalID)

	_, err = f.svc.GetChunk(ctx, "origin:1:99")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestService_Audit(t *testing.T) {
	ctx := context.Background()
	f := newHashingFixture(t)
	sink := &recordingSink{}
	f.svc.SetAuditSink(sink)

	_, err := f.svc.Ingest(ctx, originRequest())
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, originRequest())
	require.Error(t, err)

	events := sink.byType(domain.AuditIngestion)
	require.Len(t, events, 2)
	assert.Equal(t, "ingest", events[0].Action)
	assert.Equal(t, "origin:1", events[0].ResourceID)
	assert.Equal(t, 6, events[0].Metadata["chunks"])
	assert.Equal(t, domain.AuditSuccess, events[0].Status)
	assert.Equal(t, domain.AuditFailure, events[1].Status)
}

func TestStaleIDs(t *testing.T) {
	prev := []domain.Chunk{{ID: "a:1:0"}, {ID: "a:1:1"}, {ID: "a:1:2"}}
	cur := []domain.Chunk{{ID: "a:1:0"}}
	assert.Equal(t, []string{"a:1:1", "a:1:2"}, staleIDs(prev, cur))
	assert.Empty(t, staleIDs(nil, cur))
}

func TestLeadingSentence(t *testing.T) {
	assert.Equal(t, "First one.", leadingSentence("First one. Second one."))
	assert.Equal(t, "", leadingSentence("  "))
	assert.Len(t, []rune(leadingSentence(strings.Repeat("x", 300))), 200)
}
