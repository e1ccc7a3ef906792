package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/core/ports/driving"
	"github.com/custodia-labs/greds/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService fuses semantic and lexical rankings.
type SearchService struct {
	vectorIndex      driven.VectorIndex
	lexicalIndex     driven.LexicalIndex
	embeddingService driven.EmbeddingService
	chunkStore       driven.ChunkStore
	settings         domain.RetrievalSettings
	retryPolicy      domain.RetryPolicy
	audit            auditor
}

// NewSearchService creates a new search service.
// The embeddingService and chunkStore parameters are optional (can be nil).
// Without an embedder SearchText is lexical only; without a chunk store it
// cannot hydrate results.
func NewSearchService(
	vectorIndex driven.VectorIndex,
	lexicalIndex driven.LexicalIndex,
	embeddingService driven.EmbeddingService,
	chunkStore driven.ChunkStore,
	settings domain.RetrievalSettings,
	retryPolicy domain.RetryPolicy,
) *SearchService {
	return &SearchService{
		vectorIndex:      vectorIndex,
		lexicalIndex:     lexicalIndex,
		embeddingService: embeddingService,
		chunkStore:       chunkStore,
		settings:         settings,
		retryPolicy:      retryPolicy,
	}
}

// SetAuditSink sets the sink receiving retrieval events.
func (s *SearchService) SetAuditSink(sink driven.AuditSink) {
	s.audit = auditor{sink: sink}
}

// Search returns at most q.K retrieval IDs ordered by fused score.
func (s *SearchService) Search(ctx context.Context, q domain.Query) ([]domain.RetrievalID, error) {
	scored, err := s.SearchScored(ctx, q)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.RetrievalID, len(scored))
	for i, r := range scored {
		ids[i] = r.ID
	}
	return ids, nil
}

// SearchScored is Search with the fused and normalised scores of each result.
func (s *SearchService) SearchScored(ctx context.Context, q domain.Query) (results []domain.ScoredResult, err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	defer func() {
		s.audit.record(ctx, domain.AuditRetrieval, "search", "query", "", start, err, map[string]any{
			"k":       q.K,
			"text":    q.Text,
			"results": len(results),
		})
	}()

	logger.Section("Hybrid Search")

	ws, wl, err := s.weights(q.SemanticWeight, q.LexicalWeight)
	if err != nil {
		return nil, err
	}

	useVector, useText := q.HasVector(), q.HasText()
	if !useVector && !useText {
		return nil, domain.ErrEmptyQuery
	}
	// Text alone still reaches the vector index when it can be embedded.
	callerVector := useVector
	if !useVector && s.vectorIndex != nil {
		vec, err := s.embedQuery(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		q.Vector = vec
		useVector = q.HasVector()
	}

	k := q.K
	if k <= 0 {
		k = s.settings.TopK
	}
	n := k * max(s.settings.CandidateMultiplier, 1)
	logger.Debug("Query: text=%q vector=%t k=%d candidates=%d weights=%.3f/%.3f", q.Text, useVector, k, n, ws, wl)

	var (
		vectorHits  []driven.VectorHit
		lexicalHits []driven.LexicalHit
		vectorErr   error
		lexicalErr  error
	)

	var wg sync.WaitGroup
	if useVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorHits, vectorErr = s.vectorSearch(ctx, q.Vector, n)
		}()
	}
	if useText {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexicalHits, lexicalErr = s.lexicalSearch(ctx, q.Text, n)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// A malformed query vector is the caller's error, not a degraded index.
	if callerVector && errors.Is(vectorErr, domain.ErrDimensionMismatch) {
		return nil, vectorErr
	}

	switch {
	case vectorErr != nil && lexicalErr != nil:
		logger.Warn("Hybrid search: both semantic and lexical searches failed")
		return nil, fmt.Errorf("hybrid search: %w", errors.Join(vectorErr, lexicalErr))
	case vectorErr != nil && !useText:
		return nil, fmt.Errorf("semantic search: %w", vectorErr)
	case lexicalErr != nil && !useVector:
		return nil, fmt.Errorf("lexical search: %w", lexicalErr)
	case vectorErr != nil:
		logger.Warn("Hybrid search: semantic search failed, using lexical results only: %v", vectorErr)
	case lexicalErr != nil:
		logger.Warn("Hybrid search: lexical search failed, using semantic results only: %v", lexicalErr)
	}

	logger.Debug("Candidates: %d semantic, %d lexical", len(vectorHits), len(lexicalHits))

	semantic := make([]scoredID, len(vectorHits))
	for i, h := range vectorHits {
		semantic[i] = scoredID{id: h.ChunkID, score: h.Similarity}
	}
	lexical := make([]scoredID, len(lexicalHits))
	for i, h := range lexicalHits {
		lexical[i] = scoredID{id: h.ChunkID, score: h.Score}
	}

	results = fuse(semantic, lexical, ws, wl, k)
	logger.Info("Hybrid search: %d results", len(results))
	return results, nil
}

// embedQuery embeds the text of a query without a vector.
// A missing or failing embedder yields no vector; only cancellation is an error.
func (s *SearchService) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.embeddingService == nil {
		logger.Debug("Embedding service not available, searching lexically")
		return nil, nil
	}
	vec, err := s.embeddingService.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Query embedding failed, searching lexically: %v", err)
		return nil, nil
	}
	return vec, nil
}

// SearchText runs a hybrid search for text and hydrates chunk text.
// If the embedder is missing or fails the search is lexical only.
func (s *SearchService) SearchText(
	ctx context.Context, text string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyQuery
	}

	scored, err := s.SearchScored(ctx, domain.Query{
		Text:           text,
		K:              opts.Limit,
		SemanticWeight: opts.SemanticWeight,
		LexicalWeight:  opts.LexicalWeight,
	})
	if err != nil {
		return nil, err
	}
	return s.hydrateResults(ctx, scored, text)
}

// weights resolves the query weights against the configured ones.
func (s *SearchService) weights(semantic, lexical *float64) (float64, float64, error) {
	ws, wl := s.settings.SemanticWeight, s.settings.LexicalWeight
	if semantic != nil {
		ws = *semantic
	}
	if lexical != nil {
		wl = *lexical
	}
	if ws < 0 || wl < 0 {
		return 0, 0, fmt.Errorf("%w: weights must be non-negative, got %v and %v", domain.ErrInvalidInput, ws, wl)
	}
	return ws, wl, nil
}

func (s *SearchService) vectorSearch(ctx context.Context, vector []float32, n int) ([]driven.VectorHit, error) {
	if s.vectorIndex == nil {
		return nil, fmt.Errorf("%w: vector index is nil", domain.ErrIndexUnavailable)
	}
	var hits []driven.VectorHit
	err := retry(ctx, s.retryPolicy, "vector search", func(ctx context.Context) error {
		var err error
		hits, err = s.vectorIndex.Search(ctx, vector, n)
		return err
	})
	return hits, err
}

func (s *SearchService) lexicalSearch(ctx context.Context, text string, n int) ([]driven.LexicalHit, error) {
	if s.lexicalIndex == nil {
		return nil, fmt.Errorf("%w: lexical index is nil", domain.ErrIndexUnavailable)
	}
	var hits []driven.LexicalHit
	err := retry(ctx, s.retryPolicy, "lexical search", func(ctx context.Context) error {
		var err error
		hits, err = s.lexicalIndex.Search(ctx, text, n)
		return err
	})
	return hits, err
}

// scoredID is one raw candidate from either index.
type scoredID struct {
	id    string
	score float64
}

// fuse merges two candidate lists into at most k results.
// Each list is min-max normalised on its own; a chunk missing from a list
// scores 0 on that side. Results are ordered by fused score descending, then
// retrieval ID ascending.
func fuse(semantic, lexical []scoredID, ws, wl float64, k int) []domain.ScoredResult {
	type entry struct {
		semantic, lexical float64
	}
	merged := make(map[string]*entry, len(semantic)+len(lexical))
	get := func(id string) *entry {
		e, ok := merged[id]
		if !ok {
			e = &entry{}
			merged[id] = e
		}
		return e
	}
	for id, v := range normalise(semantic) {
		get(id).semantic = v
	}
	for id, v := range normalise(lexical) {
		get(id).lexical = v
	}

	results := make([]domain.ScoredResult, 0, len(merged))
	for id, e := range merged {
		rid, err := domain.ParseRetrievalID(id)
		if err != nil {
			logger.Warn("Dropping indexed chunk with malformed id %q: %v", id, err)
			continue
		}
		results = append(results, domain.ScoredResult{
			ID:       rid,
			Score:    ws*e.semantic + wl*e.lexical,
			Semantic: e.semantic,
			Lexical:  e.lexical,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID.String() < results[j].ID.String()
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// normalise min-max scales scores to [0, 1]. With a single candidate or a
// zero range every candidate scores 1. Duplicate IDs keep their best score.
func normalise(list []scoredID) map[string]float64 {
	out := make(map[string]float64, len(list))
	if len(list) == 0 {
		return out
	}

	lo, hi := list[0].score, list[0].score
	for _, c := range list[1:] {
		lo = min(lo, c.score)
		hi = max(hi, c.score)
	}
	spread := hi - lo

	for _, c := range list {
		v := 1.0
		if spread > 0 {
			v = (c.score - lo) / spread
		}
		if prev, ok := out[c.id]; !ok || v > prev {
			out[c.id] = v
		}
	}
	return out
}

// hydrateResults resolves scored IDs to chunks. Chunks deleted since
// indexing are skipped.
func (s *SearchService) hydrateResults(
	ctx context.Context, scored []domain.ScoredResult, query string,
) ([]domain.SearchResult, error) {
	if s.chunkStore == nil {
		return nil, errors.New("chunk store unavailable")
	}

	results := make([]domain.SearchResult, 0, len(scored))
	for _, sc := range scored {
		chunk, err := s.chunkStore.GetChunk(ctx, sc.ID.String())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", sc.ID, err)
		}

		results = append(results, domain.SearchResult{
			Chunk:      *chunk,
			Score:      sc.Score,
			Semantic:   sc.Semantic,
			Lexical:    sc.Lexical,
			Highlights: generateHighlights(chunk.Text, query),
		})
	}
	return results, nil
}

// generateHighlights returns up to three sentences mentioning a query term.
func generateHighlights(content, query string) []string {
	queryTerms := strings.Fields(strings.ToLower(query))
	if len(queryTerms) == 0 {
		return nil
	}

	var highlights []string
	for _, sentence := range splitSentences(content) {
		sentenceLower := strings.ToLower(sentence)
		for _, term := range queryTerms {
			if strings.Contains(sentenceLower, term) {
				highlights = append(highlights, excerpt(sentence, 200))
				break
			}
		}
		if len(highlights) >= 3 {
			break
		}
	}
	return highlights
}

// splitSentences splits content into sentences.
func splitSentences(content string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range content {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// excerpt truncates text to at most limit runes, marking a cut with "...".
func excerpt(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
