package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/core/ports/driving"
	"github.com/custodia-labs/greds/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

const (
	// extractiveModel names the summariser that stores leading sentences.
	extractiveModel = "extractive"

	// defaultEmbedBatchSize is used when no batch size is configured.
	defaultEmbedBatchSize = 32
)

// IngestService chunks works, stores the chunks and indexes them.
// Ingestion of one (slug, version) is serialized; different works run concurrently.
type IngestService struct {
	workStore        driven.WorkStore
	chunkStore       driven.ChunkStore
	chunkers         driven.ChunkerRegistry
	embeddingService driven.EmbeddingService
	vectorIndex      driven.VectorIndex
	lexicalIndex     driven.LexicalIndex
	defaults         domain.ChunkingParams
	batchSize        int
	retryPolicy      domain.RetryPolicy
	locks            *keyedMutex
	audit            auditor
	now              func() time.Time
}

// NewIngestService creates a new ingest service.
// The embeddingService is optional: without it works are indexed lexically only.
func NewIngestService(
	workStore driven.WorkStore,
	chunkStore driven.ChunkStore,
	chunkers driven.ChunkerRegistry,
	embeddingService driven.EmbeddingService,
	vectorIndex driven.VectorIndex,
	lexicalIndex driven.LexicalIndex,
	settings domain.Settings,
) *IngestService {
	batch := settings.Embedding.BatchSize
	if batch <= 0 {
		batch = defaultEmbedBatchSize
	}
	return &IngestService{
		workStore:        workStore,
		chunkStore:       chunkStore,
		chunkers:         chunkers,
		embeddingService: embeddingService,
		vectorIndex:      vectorIndex,
		lexicalIndex:     lexicalIndex,
		defaults:         settings.Chunking,
		batchSize:        batch,
		retryPolicy:      settings.Retry,
		locks:            newKeyedMutex(),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetAuditSink sets the sink receiving ingestion events.
func (s *IngestService) SetAuditSink(sink driven.AuditSink) {
	s.audit = auditor{sink: sink}
}

// Ingest chunks, summarises, embeds and indexes one work.
// A failure after processing has started marks the work failed.
func (s *IngestService) Ingest(ctx context.Context, req domain.IngestRequest) (work *domain.Work, err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	key := domain.WorkKey(req.Work.Slug, req.Work.Version)
	defer func() {
		meta := map[string]any{"slug": req.Work.Slug, "version": req.Work.Version}
		if work != nil {
			meta["chunks"] = work.TotalChunks
		}
		s.audit.record(ctx, domain.AuditIngestion, "ingest", "work", key, start, err, meta)
	}()

	logger.Section("Ingest " + key)

	params := s.defaults
	if req.Params != nil {
		params = *req.Params
	}
	if params.Strategy == "" {
		params.Strategy = domain.ChunkingStrategyFixedTokens
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	work = &req.Work
	if err := work.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	if err := s.prepare(ctx, work); err != nil {
		return nil, err
	}

	now := s.now()
	work.Status = domain.WorkStatusProcessing
	work.IngestionStartedAt = &now
	work.IngestionCompletedAt = nil
	if err := s.workStore.SaveWork(ctx, work); err != nil {
		return nil, fmt.Errorf("marking %s processing: %w", key, err)
	}

	count, err := s.process(ctx, work, req.Text, params)
	if err != nil {
		logger.Warn("Ingest %s failed: %v", key, err)
		work.Status = domain.WorkStatusFailed
		if saveErr := s.workStore.SaveWork(context.WithoutCancel(ctx), work); saveErr != nil {
			logger.Error("Marking %s failed: %v", key, saveErr)
		}
		return nil, err
	}

	done := s.now()
	work.Status = domain.WorkStatusCompleted
	work.TotalChunks = count
	work.IngestionCompletedAt = &done
	if err := s.workStore.SaveWork(ctx, work); err != nil {
		return nil, fmt.Errorf("marking %s completed: %w", key, err)
	}

	logger.Info("Ingested %s: %d chunks", key, count)
	return work, nil
}

// prepare resolves work against any stored record of the same slug and version.
func (s *IngestService) prepare(ctx context.Context, work *domain.Work) error {
	existing, err := s.workStore.GetWorkBySlug(ctx, work.Slug, work.Version)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		work.ID = uuid.New().String()
		work.Status = domain.WorkStatusPending
		work.CreatedAt = time.Time{}
		return s.workStore.SaveWork(ctx, work)
	case err != nil:
		return err
	}

	if existing.Status == domain.WorkStatusCompleted {
		return fmt.Errorf("%w: %s:%s is already ingested", domain.ErrWorkImmutable, work.Slug, work.Version)
	}
	work.ID = existing.ID
	work.CreatedAt = existing.CreatedAt
	work.Status = existing.Status
	if existing.Status == domain.WorkStatusProcessing {
		// Left over from an interrupted run.
		work.Status = domain.WorkStatusFailed
		return s.workStore.SaveWork(ctx, work)
	}
	return nil
}

// process runs the pipeline for a work already marked processing.
// Nothing is persisted until every chunk is embedded; a later failure
// clears the work's chunk set and index entries again.
func (s *IngestService) process(ctx context.Context, work *domain.Work, text string, params domain.ChunkingParams) (int, error) {
	chunker, err := s.chunkers.Chunker(params.Strategy)
	if err != nil {
		return 0, err
	}

	logger.Debug("Chunking with %s: %s", chunker.Name(), params.Fingerprint())
	chunks, err := chunker.Chunk(ctx, domain.WorkRef{ID: work.ID, Slug: work.Slug, Version: work.Version}, text, params)
	if err != nil {
		return 0, fmt.Errorf("chunking: %w", err)
	}
	logger.Debug("Chunks: %d", len(chunks))

	embeddings, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	previous, err := s.chunkStore.GetChunks(ctx, work.ID)
	if err != nil {
		return 0, fmt.Errorf("loading previous chunks: %w", err)
	}

	if err := s.chunkStore.SaveChunks(ctx, work.ID, chunks); err != nil {
		return 0, fmt.Errorf("saving chunks: %w", err)
	}
	if err := s.commit(ctx, work, previous, chunks, embeddings); err != nil {
		s.discard(context.WithoutCancel(ctx), work, append(previous, chunks...))
		return 0, err
	}
	return len(chunks), nil
}

// commit stores summaries and embeddings of a saved chunk set and indexes it.
func (s *IngestService) commit(
	ctx context.Context,
	work *domain.Work,
	previous, chunks []domain.Chunk,
	embeddings []domain.Embedding,
) error {
	if err := s.saveSummaries(ctx, chunks); err != nil {
		return err
	}
	for i := range embeddings {
		if err := s.chunkStore.SaveEmbedding(ctx, &embeddings[i]); err != nil {
			return fmt.Errorf("saving embedding of %s: %w", embeddings[i].ChunkID, err)
		}
	}

	if stale := staleIDs(previous, chunks); len(stale) > 0 {
		logger.Debug("Removing %d stale chunks of %s from indexes", len(stale), domain.WorkKey(work.Slug, work.Version))
		if err := s.removeFromIndexes(ctx, stale); err != nil {
			return err
		}
	}
	return s.index(ctx, chunks, embeddings)
}

// discard clears the chunk set of a failed work and drops its index entries.
func (s *IngestService) discard(ctx context.Context, work *domain.Work, chunks []domain.Chunk) {
	if err := s.chunkStore.SaveChunks(ctx, work.ID, nil); err != nil {
		logger.Error("Clearing chunks of %s: %v", domain.WorkKey(work.Slug, work.Version), err)
	}
	ids := make([]string, 0, len(chunks))
	for i := range chunks {
		ids = append(ids, chunks[i].ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := s.removeFromIndexes(ctx, ids); err != nil {
		logger.Error("Removing %s from indexes: %v", domain.WorkKey(work.Slug, work.Version), err)
	}
}

// saveSummaries stores the leading sentence of each chunk as its short summary.
func (s *IngestService) saveSummaries(ctx context.Context, chunks []domain.Chunk) error {
	for i := range chunks {
		text := leadingSentence(chunks[i].Text)
		if text == "" {
			continue
		}
		summary := &domain.Summary{
			ChunkID:  chunks[i].ID,
			Level:    domain.SummaryShort,
			Text:     text,
			LLMModel: extractiveModel,
		}
		if err := s.chunkStore.SaveSummary(ctx, summary); err != nil {
			return fmt.Errorf("saving summary of %s: %w", chunks[i].ID, err)
		}
	}
	return nil
}

// embedChunks embeds every chunk in batches without storing anything.
// It returns no embeddings when no embedding service is configured.
func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Embedding, error) {
	if s.embeddingService == nil {
		logger.Warn("Embedding service not available, indexing lexically only")
		return nil, nil
	}

	dims := s.embeddingService.Dimensions()
	if s.vectorIndex != nil && s.vectorIndex.Dimension() != dims {
		return nil, fmt.Errorf("%w: embedder produces %d, vector index holds %d",
			domain.ErrDimensionMismatch, dims, s.vectorIndex.Dimension())
	}

	embeddings := make([]domain.Embedding, 0, len(chunks))
	for offset := 0; offset < len(chunks); offset += s.batchSize {
		end := min(offset+s.batchSize, len(chunks))
		texts := make([]string, 0, end-offset)
		for i := offset; i < end; i++ {
			texts = append(texts, chunks[i].Text)
		}

		logger.Debug("Embedding batch %d-%d", offset, end)
		batch, err := s.embeddingService.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding chunks: got %d vectors for %d texts", len(batch), len(texts))
		}

		for j, vec := range batch {
			chunk := &chunks[offset+j]
			embedding := domain.Embedding{
				ChunkID:       chunk.ID,
				ModelName:     s.embeddingService.ModelName(),
				Dimension:     len(vec),
				Vector:        vec,
				IndexPosition: chunk.Index,
			}
			if err := embedding.Validate(dims); err != nil {
				return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
			}
			embeddings = append(embeddings, embedding)
		}
	}
	return embeddings, nil
}

// index upserts chunks into both indexes.
func (s *IngestService) index(ctx context.Context, chunks []domain.Chunk, embeddings []domain.Embedding) error {
	if len(chunks) == 0 {
		return nil
	}

	if s.lexicalIndex != nil {
		entries := make([]driven.LexicalEntry, len(chunks))
		for i := range chunks {
			entries[i] = driven.LexicalEntry{ChunkID: chunks[i].ID, Text: chunks[i].Text}
		}
		err := retry(ctx, s.retryPolicy, "lexical upsert", func(ctx context.Context) error {
			return s.lexicalIndex.UpsertBatch(ctx, entries)
		})
		if err != nil {
			return fmt.Errorf("lexical index: %w", err)
		}
	}

	if s.vectorIndex != nil && len(embeddings) == len(chunks) {
		entries := make([]driven.VectorEntry, len(embeddings))
		for i := range embeddings {
			entries[i] = driven.VectorEntry{ChunkID: embeddings[i].ChunkID, Vector: embeddings[i].Vector}
		}
		err := retry(ctx, s.retryPolicy, "vector upsert", func(ctx context.Context) error {
			return s.vectorIndex.UpsertBatch(ctx, entries)
		})
		if err != nil {
			return fmt.Errorf("vector index: %w", err)
		}
	}
	return nil
}

func (s *IngestService) removeFromIndexes(ctx context.Context, ids []string) error {
	if s.lexicalIndex != nil {
		err := retry(ctx, s.retryPolicy, "lexical delete", func(ctx context.Context) error {
			return s.lexicalIndex.Delete(ctx, ids...)
		})
		if err != nil {
			return fmt.Errorf("lexical index: %w", err)
		}
	}
	if s.vectorIndex != nil {
		err := retry(ctx, s.retryPolicy, "vector delete", func(ctx context.Context) error {
			return s.vectorIndex.Delete(ctx, ids...)
		})
		if err != nil {
			return fmt.Errorf("vector index: %w", err)
		}
	}
	return nil
}

// Reindex rebuilds both indexes from the stored chunks and embeddings of completed works.
// Embeddings of another model or dimension are skipped.
func (s *IngestService) Reindex(ctx context.Context) (int, error) {
	logger.Section("Reindex")

	chunks, err := s.completedChunks(ctx)
	if err != nil {
		return 0, err
	}
	indexed := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		indexed[chunks[i].ID] = struct{}{}
	}
	if s.lexicalIndex != nil && len(chunks) > 0 {
		entries := make([]driven.LexicalEntry, len(chunks))
		for i := range chunks {
			entries[i] = driven.LexicalEntry{ChunkID: chunks[i].ID, Text: chunks[i].Text}
		}
		err := retry(ctx, s.retryPolicy, "lexical reindex", func(ctx context.Context) error {
			return s.lexicalIndex.UpsertBatch(ctx, entries)
		})
		if err != nil {
			return 0, fmt.Errorf("lexical index: %w", err)
		}
	}

	if s.vectorIndex != nil {
		embeddings, err := s.chunkStore.ListEmbeddings(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing embeddings: %w", err)
		}
		entries := make([]driven.VectorEntry, 0, len(embeddings))
		skipped := 0
		for _, e := range embeddings {
			if _, ok := indexed[e.ChunkID]; !ok {
				continue
			}
			if len(e.Vector) != s.vectorIndex.Dimension() ||
				(s.embeddingService != nil && e.ModelName != s.embeddingService.ModelName()) {
				skipped++
				continue
			}
			entries = append(entries, driven.VectorEntry{ChunkID: e.ChunkID, Vector: e.Vector})
		}
		if skipped > 0 {
			logger.Warn("Reindex skipped %d embeddings from another model", skipped)
		}
		if len(entries) > 0 {
			err := retry(ctx, s.retryPolicy, "vector reindex", func(ctx context.Context) error {
				return s.vectorIndex.UpsertBatch(ctx, entries)
			})
			if err != nil {
				return 0, fmt.Errorf("vector index: %w", err)
			}
		}
	}

	logger.Info("Reindexed %d chunks", len(chunks))
	return len(chunks), nil
}

// completedChunks lists stored chunks whose work finished ingesting.
func (s *IngestService) completedChunks(ctx context.Context) ([]domain.Chunk, error) {
	works, err := s.workStore.ListWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing works: %w", err)
	}
	completed := make(map[string]struct{}, len(works))
	for i := range works {
		if works[i].Status == domain.WorkStatusCompleted {
			completed[works[i].ID] = struct{}{}
		}
	}

	all, err := s.chunkStore.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	chunks := all[:0]
	skipped := 0
	for i := range all {
		if _, ok := completed[all[i].WorkID]; !ok {
			skipped++
			continue
		}
		chunks = append(chunks, all[i])
	}
	if skipped > 0 {
		logger.Warn("Reindex skipped %d chunks of unfinished works", skipped)
	}
	return chunks, nil
}

// DeleteWork removes a work, its chunks and their index entries.
// Works with cited chunks cannot be deleted.
func (s *IngestService) DeleteWork(ctx context.Context, slug, version string) (err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	key := domain.WorkKey(slug, version)
	defer func() {
		s.audit.record(ctx, domain.AuditIngestion, "delete", "work", key, start, err, nil)
	}()

	unlock := s.locks.Lock(key)
	defer unlock()

	work, err := s.workStore.GetWorkBySlug(ctx, slug, version)
	if err != nil {
		return err
	}
	chunks, err := s.chunkStore.GetChunks(ctx, work.ID)
	if err != nil {
		return err
	}
	if err := s.workStore.DeleteWork(ctx, work.ID); err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	if len(ids) == 0 {
		return nil
	}
	return s.removeFromIndexes(ctx, ids)
}

// ListWorks returns all stored works.
func (s *IngestService) ListWorks(ctx context.Context) ([]domain.Work, error) {
	return s.workStore.ListWorks(ctx)
}

// GetChunk resolves a retrieval ID to its chunk.
func (s *IngestService) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	rid, err := domain.ParseRetrievalID(id)
	if err != nil {
		return nil, err
	}
	return s.chunkStore.GetChunk(ctx, rid.String())
}

// staleIDs returns IDs of previous chunks absent from current.
func staleIDs(previous, current []domain.Chunk) []string {
	keep := make(map[string]struct{}, len(current))
	for i := range current {
		keep[current[i].ID] = struct{}{}
	}
	var stale []string
	for i := range previous {
		if _, ok := keep[previous[i].ID]; !ok {
			stale = append(stale, previous[i].ID)
		}
	}
	return stale
}

// leadingSentence returns the first sentence of text, at most 200 runes.
func leadingSentence(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	return truncateRunes(sentences[0], shortSummaryFallback)
}
