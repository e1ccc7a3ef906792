package mcp

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results  []domain.SearchResult
	err      error
	lastText string
	lastOpts domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, _ domain.Query) ([]domain.RetrievalID, error) {
	return nil, m.err
}

func (m *mockSearchService) SearchScored(_ context.Context, _ domain.Query) ([]domain.ScoredResult, error) {
	return nil, m.err
}

func (m *mockSearchService) SearchText(
	_ context.Context,
	text string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.lastText = text
	m.lastOpts = opts
	return m.results, m.err
}

// mockVerifierService is a mock implementation of driving.VerifierService.
// Claims whose text appears in failing are scored as fails.
type mockVerifierService struct {
	failing map[string]bool
	err     error
	runID   string
	claims  []domain.ClaimInput
}

func (m *mockVerifierService) verification(claim domain.ClaimInput) domain.Verification {
	decision, score := domain.DecisionPass, 0.9
	if m.failing[claim.Text] {
		decision, score = domain.DecisionFail, 0.1
	}
	v := domain.Verification{Claim: claim, Score: score, Decision: decision}
	for _, id := range claim.CitedIDs {
		v.Citations = append(v.Citations, domain.Citation{
			ID:              "cit-" + id,
			RunID:           claim.RunID,
			ChunkID:         id,
			ClaimText:       claim.Text,
			SimilarityScore: score,
			Decision:        decision,
		})
	}
	return v
}

func (m *mockVerifierService) Verify(_ context.Context, claim domain.ClaimInput) (*domain.Verification, error) {
	m.claims = append(m.claims, claim)
	if m.err != nil {
		return nil, m.err
	}
	v := m.verification(claim)
	return &v, nil
}

func (m *mockVerifierService) VerifyRun(
	_ context.Context,
	runID string,
	claims []domain.ClaimInput,
) (*domain.RunVerification, error) {
	m.runID = runID
	m.claims = append(m.claims, claims...)
	if m.err != nil {
		return nil, m.err
	}
	if runID == "" {
		runID = "run-generated"
	}
	run := &domain.RunVerification{RunID: runID, Decision: domain.DecisionPass}
	for _, c := range claims {
		c.RunID = runID
		v := m.verification(c)
		if v.Decision == domain.DecisionFail {
			run.Decision = domain.DecisionFail
		}
		run.Claims = append(run.Claims, v)
	}
	if len(claims) == 0 {
		run.Decision = domain.DecisionFail
	}
	return run, nil
}

func (m *mockVerifierService) Thresholds() domain.Thresholds {
	return domain.DefaultThresholds()
}

// mockSessionService is a mock implementation of driving.SessionService.
type mockSessionService struct {
	session      *domain.Session
	checkpointID string
	rehydration  *domain.Rehydration
	chain        []domain.Session
	err          error
	lastUpdate   domain.SessionUpdate
	lastName     string
}

func (m *mockSessionService) Update(
	_ context.Context,
	sessionID string,
	update domain.SessionUpdate,
) (*domain.Session, error) {
	m.lastUpdate = update
	if m.err != nil {
		return nil, m.err
	}
	sess := &domain.Session{SessionID: sessionID, UserID: update.UserID, CondensedSummary: update.Summary}
	sess.AppendClaims(update.Claims)
	sess.TopCitations = domain.MergeTopCitations(nil, update.Citations, domain.DefaultTopCitationCap)
	return sess, nil
}

func (m *mockSessionService) Get(_ context.Context, _ string) (*domain.Session, error) {
	return m.session, m.err
}

func (m *mockSessionService) Checkpoint(_ context.Context, _, name string) (string, error) {
	m.lastName = name
	return m.checkpointID, m.err
}

func (m *mockSessionService) Rehydrate(_ context.Context, _ string) (*domain.Rehydration, error) {
	return m.rehydration, m.err
}

func (m *mockSessionService) Ancestry(_ context.Context, _ string) ([]domain.Session, error) {
	return m.chain, m.err
}

func (m *mockSessionService) Reparent(_ context.Context, _, _ string) error {
	return m.err
}

func (m *mockSessionService) DeleteCheckpoint(_ context.Context, _ string, _ bool) error {
	return m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	works []domain.Work
	chunk *domain.Chunk
	err   error
	got   string
}

func (m *mockIngestService) Ingest(_ context.Context, _ domain.IngestRequest) (*domain.Work, error) {
	return nil, m.err
}

func (m *mockIngestService) Reindex(_ context.Context) (int, error) {
	return 0, m.err
}

func (m *mockIngestService) DeleteWork(_ context.Context, _, _ string) error {
	return m.err
}

func (m *mockIngestService) ListWorks(_ context.Context) ([]domain.Work, error) {
	return m.works, m.err
}

func (m *mockIngestService) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	m.got = id
	return m.chunk, m.err
}

// mockAuditService records the filter it was asked for.
type mockAuditService struct {
	events []domain.AuditEvent
	filter domain.AuditFilter
	err    error
}

func (m *mockAuditService) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	m.filter = filter
	if m.err != nil {
		return nil, m.err
	}
	if filter.EventType != "" && !filter.EventType.IsValid() {
		return nil, domain.ErrInvalidInput
	}
	return m.events, nil
}
