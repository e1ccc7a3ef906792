package cli

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	works   []domain.Work
	lastReq domain.IngestRequest
	deleted []string
	err     error
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.Work, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	w := req.Work
	w.Status = domain.WorkStatusCompleted
	w.TotalChunks = 2
	return &w, nil
}

func (m *mockIngestService) Reindex(_ context.Context) (int, error) {
	return 7, m.err
}

func (m *mockIngestService) DeleteWork(_ context.Context, slug, version string) error {
	m.deleted = append(m.deleted, domain.WorkKey(slug, version))
	return m.err
}

func (m *mockIngestService) ListWorks(_ context.Context) ([]domain.Work, error) {
	return m.works, m.err
}

func (m *mockIngestService) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	return &domain.Chunk{ID: id}, m.err
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results  []domain.SearchResult
	lastText string
	lastOpts domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, _ domain.Query) ([]domain.RetrievalID, error) {
	return nil, nil
}

func (m *mockSearchService) SearchScored(_ context.Context, _ domain.Query) ([]domain.ScoredResult, error) {
	return nil, nil
}

func (m *mockSearchService) SearchText(
	_ context.Context,
	text string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.lastText = text
	m.lastOpts = opts
	return m.results, nil
}

// mockSearchServiceError always fails.
type mockSearchServiceError struct {
	mockSearchService
}

func (m *mockSearchServiceError) SearchText(
	_ context.Context,
	_ string,
	_ domain.SearchOptions,
) ([]domain.SearchResult, error) {
	return nil, errors.New("index unavailable")
}

// mockVerifierService scores claims by looking them up in scores.
// Unknown claims pass with 0.9.
type mockVerifierService struct {
	scores map[string]float64
	runID  string
	claims []domain.ClaimInput
	err    error
}

func (m *mockVerifierService) verification(claim domain.ClaimInput) domain.Verification {
	score, ok := m.scores[claim.Text]
	if !ok {
		score = 0.9
	}
	decision := domain.DefaultThresholds().Classify(score)
	if len(claim.CitedIDs) == 0 {
		score, decision = 0, domain.DecisionFail
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
		run.Decision = run.Decision.Weaker(v.Decision)
		run.Claims = append(run.Claims, v)
	}
	return run, nil
}

func (m *mockVerifierService) Thresholds() domain.Thresholds {
	return domain.DefaultThresholds()
}

// mockSessionService keeps live sessions in memory.
type mockSessionService struct {
	sessions    map[string]*domain.Session
	chain       []domain.Session
	rehydration *domain.Rehydration
	lastUpdate  domain.SessionUpdate
	reparented  [2]string
	deleted     string
	reparent    bool
	err         error
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
	if m.sessions == nil {
		m.sessions = make(map[string]*domain.Session)
	}
	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = &domain.Session{ID: sessionID, SessionID: sessionID, UserID: update.UserID}
		m.sessions[sessionID] = sess
	}
	if update.Summary != "" {
		sess.CondensedSummary = update.Summary
	}
	sess.AppendClaims(update.Claims)
	sess.TopCitations = domain.MergeTopCitations(sess.TopCitations, update.Citations, domain.DefaultTopCitationCap)
	return sess, nil
}

func (m *mockSessionService) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

func (m *mockSessionService) Checkpoint(_ context.Context, sessionID, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return "", domain.ErrNoActiveSession
	}
	return "cp-" + sessionID, nil
}

func (m *mockSessionService) Rehydrate(_ context.Context, _ string) (*domain.Rehydration, error) {
	return m.rehydration, m.err
}

func (m *mockSessionService) Ancestry(_ context.Context, _ string) ([]domain.Session, error) {
	return m.chain, m.err
}

func (m *mockSessionService) Reparent(_ context.Context, checkpointID, parentID string) error {
	m.reparented = [2]string{checkpointID, parentID}
	return m.err
}

func (m *mockSessionService) DeleteCheckpoint(_ context.Context, checkpointID string, reparentChildren bool) error {
	m.deleted = checkpointID
	m.reparent = reparentChildren
	return m.err
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings domain.Settings
	err      error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultSettings()}
}

func (m *mockSettingsService) Get() (domain.Settings, error) {
	return m.settings, m.err
}

func (m *mockSettingsService) Save(settings domain.Settings) error {
	if m.err != nil {
		return m.err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	m.settings = settings
	return nil
}

func (m *mockSettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model string) error {
	if m.err != nil {
		return m.err
	}
	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	m.settings.Embedding.Dimensions = domain.EmbeddingDimensions()[model]
	return nil
}

func (m *mockSettingsService) SetWeights(semantic, lexical float64) error {
	if m.err != nil {
		return m.err
	}
	if semantic < 0 || lexical < 0 {
		return domain.ErrInvalidInput
	}
	m.settings.Retrieval.SemanticWeight = semantic
	m.settings.Retrieval.LexicalWeight = lexical
	return nil
}

func (m *mockSettingsService) SetThresholds(pass, partial float64) error {
	if m.err != nil {
		return m.err
	}
	if partial > pass {
		return domain.ErrInvalidThresholdConfig
	}
	m.settings.Verifier.Pass = pass
	m.settings.Verifier.Partial = partial
	return nil
}

func (m *mockSettingsService) Path() string {
	return "/tmp/greds/config.toml"
}

// testServices holds the mocks installed by setupTestServices.
// mockAuditService is a mock implementation of driving.AuditService.
// It applies the filter the way the core service does.
type mockAuditService struct {
	events []domain.AuditEvent
	filter domain.AuditFilter
	err    error
}

func (m *mockAuditService) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}
	m.filter = filter
	var out []domain.AuditEvent
	for i := range m.events {
		if filter.Matches(&m.events[i]) && len(out) < filter.Limit {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

type testServices struct {
	ingest   *mockIngestService
	search   *mockSearchService
	verifier *mockVerifierService
	session  *mockSessionService
	settings *mockSettingsService
	audit    *mockAuditService
}

// setupTestServices installs fresh mocks and returns a cleanup that restores
// the previous services and resets every command flag.
func setupTestServices() (*testServices, func()) {
	prev := Services{
		Ingest:   ingestService,
		Search:   searchService,
		Verifier: verifierService,
		Session:  sessionService,
		Settings: settingsService,
		Audit:    auditService,
	}

	ts := &testServices{
		ingest: &mockIngestService{},
		search: &mockSearchService{
			results: []domain.SearchResult{
				{
					Chunk:      domain.Chunk{ID: "paper:v1:0", Text: "bees dance to share food sources"},
					Score:      0.95,
					Semantic:   1,
					Lexical:    0.9,
					Highlights: []string{"bees dance"},
				},
			},
		},
		verifier: &mockVerifierService{},
		session:  &mockSessionService{},
		settings: newMockSettingsService(),
		audit: &mockAuditService{
			events: []domain.AuditEvent{
				{
					Timestamp:    testTime.Add(time.Hour),
					EventType:    domain.AuditRetrieval,
					Action:       "search",
					Status:       domain.AuditFailure,
					ErrorMessage: "index unavailable",
					DurationMS:   4,
				},
				{
					Timestamp:  testTime,
					EventType:  domain.AuditIngestion,
					Action:     "ingest",
					ResourceID: "origin:1",
					Status:     domain.AuditSuccess,
					DurationMS: 120,
				},
			},
		},
	}
	SetServices(Services{
		Ingest:   ts.ingest,
		Search:   ts.search,
		Verifier: ts.verifier,
		Session:  ts.session,
		Settings: ts.settings,
		Audit:    ts.audit,
	})

	return ts, func() {
		SetServices(prev)
		resetFlags(rootCmd)
	}
}

// resetFlags restores every flag of cmd and its subcommands to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns its combined output.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
