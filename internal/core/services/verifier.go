package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/core/ports/driving"
	"github.com/custodia-labs/greds/internal/logger"
)

// Ensure VerifierService implements the interface.
var _ driving.VerifierService = (*VerifierService)(nil)

// VerifierService scores claims against the chunks they cite.
//
// A claim's score is the cosine similarity between the claim embedding and
// the normalised centroid of the cited chunk embeddings, clamped to [0, 1].
// Each citation carries the similarity of the claim to that chunk alone.
type VerifierService struct {
	chunkStore       driven.ChunkStore
	citationStore    driven.CitationStore
	embeddingService driven.EmbeddingService
	thresholds       domain.Thresholds
	audit            auditor
	now              func() time.Time
}

// NewVerifierService creates a verifier. Invalid thresholds fail with
// domain.ErrInvalidThresholdConfig.
func NewVerifierService(
	chunkStore driven.ChunkStore,
	citationStore driven.CitationStore,
	embeddingService driven.EmbeddingService,
	thresholds domain.Thresholds,
) (*VerifierService, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &VerifierService{
		chunkStore:       chunkStore,
		citationStore:    citationStore,
		embeddingService: embeddingService,
		thresholds:       thresholds,
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetAuditSink sets the sink receiving verification events.
func (s *VerifierService) SetAuditSink(sink driven.AuditSink) {
	s.audit = auditor{sink: sink}
}

// Thresholds returns the configured decision boundaries.
func (s *VerifierService) Thresholds() domain.Thresholds {
	return s.thresholds
}

// Verify scores one claim and appends its citations in one batch.
func (s *VerifierService) Verify(ctx context.Context, claim domain.ClaimInput) (v *domain.Verification, err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	if claim.RunID == "" {
		claim.RunID = uuid.New().String()
	}
	defer func() {
		meta := map[string]any{"cited": len(claim.CitedIDs)}
		if v != nil {
			meta["decision"] = v.Decision.String()
			meta["score"] = v.Score
		}
		s.audit.record(ctx, domain.AuditVerification, "verify", "run", claim.RunID, start, err, meta)
	}()

	v, err = s.score(ctx, claim)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, v.Citations); err != nil {
		return nil, err
	}
	return v, nil
}

// VerifyRun verifies every claim of one model output. All claims are scored
// before any citation is written, and the run's citations are appended in
// one batch. The overall decision is the weakest claim decision.
func (s *VerifierService) VerifyRun(
	ctx context.Context, runID string, claims []domain.ClaimInput,
) (run *domain.RunVerification, err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	if runID == "" {
		runID = uuid.New().String()
	}
	defer func() {
		meta := map[string]any{"claims": len(claims)}
		if run != nil {
			meta["decision"] = run.Decision.String()
		}
		s.audit.record(ctx, domain.AuditVerification, "verify_run", "run", runID, start, err, meta)
	}()

	logger.Section("Verify Run")
	run = &domain.RunVerification{RunID: runID, Decision: domain.DecisionFail}
	if len(claims) == 0 {
		logger.Debug("Run %s has no claims", runID)
		return run, nil
	}

	var citations []domain.Citation
	for i, claim := range claims {
		claim.RunID = runID
		v, err := s.score(ctx, claim)
		if err != nil {
			return nil, fmt.Errorf("claim %d: %w", i, err)
		}
		if i == 0 {
			run.Decision = v.Decision
		} else {
			run.Decision = run.Decision.Weaker(v.Decision)
		}
		run.Claims = append(run.Claims, *v)
		citations = append(citations, v.Citations...)
	}

	if err := s.persist(ctx, citations); err != nil {
		return nil, err
	}
	logger.Info("Run %s: %s over %d claims", runID, run.Decision, len(claims))
	return run, nil
}

// score computes the verdict on a claim without writing anything.
func (s *VerifierService) score(ctx context.Context, claim domain.ClaimInput) (*domain.Verification, error) {
	ids, err := dedupeRetrievalIDs(claim.CitedIDs)
	if err != nil {
		return nil, err
	}
	claim.CitedIDs = ids

	v := &domain.Verification{Claim: claim, Decision: domain.DecisionFail}
	if len(ids) == 0 {
		logger.Debug("Claim %q cites nothing", claim.Text)
		return v, nil
	}
	if strings.TrimSpace(claim.Text) == "" {
		return nil, fmt.Errorf("%w: claim text is empty", domain.ErrInvalidInput)
	}
	if s.embeddingService == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	chunks := make([]*domain.Chunk, len(ids))
	for i, id := range ids {
		chunk, err := s.chunkStore.GetChunk(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("cited chunk %s: %w", id, err)
		}
		chunks[i] = chunk
	}

	claimVec, err := s.embeddingService.Embed(ctx, claim.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding claim: %w", err)
	}
	chunkVecs, err := s.chunkVectors(ctx, chunks)
	if err != nil {
		return nil, err
	}

	v.Score = clampUnit(domain.Cosine(claimVec, centroid(chunkVecs)))
	v.Decision = s.thresholds.Classify(v.Score)

	now := s.now()
	v.Citations = make([]domain.Citation, len(chunks))
	for i, chunk := range chunks {
		similarity := clampUnit(domain.Cosine(claimVec, chunkVecs[i]))
		window, err := s.contextWindow(ctx, chunk)
		if err != nil {
			return nil, err
		}
		v.Citations[i] = domain.Citation{
			ID:              uuid.New().String(),
			RunID:           claim.RunID,
			ChunkID:         chunk.ID,
			QueryText:       claim.QueryText,
			ClaimText:       claim.Text,
			SimilarityScore: similarity,
			Decision:        s.thresholds.Classify(similarity),
			ContextWindow:   window,
			CreatedAt:       now,
		}
	}

	logger.Debug("Claim %q: score=%.4f decision=%s over %d chunks", claim.Text, v.Score, v.Decision, len(chunks))
	return v, nil
}

// chunkVectors returns an embedding per chunk. Stored embeddings of the
// current model are reused; the rest are embedded in one batch.
func (s *VerifierService) chunkVectors(ctx context.Context, chunks []*domain.Chunk) ([][]float32, error) {
	vecs := make([][]float32, len(chunks))
	var missing []int
	for i, chunk := range chunks {
		e, err := s.chunkStore.GetEmbedding(ctx, chunk.ID)
		switch {
		case err == nil && e.ModelName == s.embeddingService.ModelName() && len(e.Vector) == s.embeddingService.Dimensions():
			vecs[i] = e.Vector
		case err == nil || errors.Is(err, domain.ErrNotFound):
			missing = append(missing, i)
		default:
			return nil, fmt.Errorf("loading embedding of %s: %w", chunk.ID, err)
		}
	}
	if len(missing) == 0 {
		return vecs, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = chunks[i].Text
	}
	embedded, err := s.embeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding cited chunks: %w", err)
	}
	if len(embedded) != len(missing) {
		return nil, fmt.Errorf("embedding cited chunks: got %d vectors for %d texts", len(embedded), len(missing))
	}
	for j, i := range missing {
		vecs[i] = embedded[j]
	}
	return vecs, nil
}

// contextWindow lists the retrieval IDs of the chunk's stored neighbours.
func (s *VerifierService) contextWindow(ctx context.Context, chunk *domain.Chunk) ([]string, error) {
	rid, err := chunk.RetrievalID()
	if err != nil {
		return nil, err
	}
	var window []string
	for _, offset := range []int{-1, 1} {
		n, ok := rid.Neighbour(offset)
		if !ok {
			continue
		}
		_, err := s.chunkStore.GetChunk(ctx, n.String())
		switch {
		case err == nil:
			window = append(window, n.String())
		case errors.Is(err, domain.ErrNotFound):
		default:
			return nil, err
		}
	}
	return window, nil
}

func (s *VerifierService) persist(ctx context.Context, citations []domain.Citation) error {
	if len(citations) == 0 {
		return nil
	}
	if err := s.citationStore.AppendCitations(ctx, citations); err != nil {
		return fmt.Errorf("appending citations: %w", err)
	}
	return nil
}

// dedupeRetrievalIDs validates ids and drops repeats, keeping first occurrences.
func dedupeRetrievalIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		rid, err := domain.ParseRetrievalID(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		id := rid.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// centroid returns the normalised mean direction of vecs.
func centroid(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	sum := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i, f := range domain.Normalize(v) {
			if i < len(sum) {
				sum[i] += f
			}
		}
	}
	return domain.Normalize(sum)
}

func clampUnit(x float64) float64 {
	return min(max(x, 0), 1)
}
