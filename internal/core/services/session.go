package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/core/ports/driving"
	"github.com/custodia-labs/greds/internal/logger"
)

// Ensure SessionService implements the interface.
var _ driving.SessionService = (*SessionService)(nil)

// shortSummaryFallback bounds the excerpt used when a chunk has no stored short summary.
const shortSummaryFallback = 200

// SessionService manages live sessions and their checkpoint chains.
// Updates and checkpoints of one session are serialized; different sessions
// proceed independently. Chain edits (reparent, delete) are serialized globally.
type SessionService struct {
	sessionStore driven.SessionStore
	chunkStore   driven.ChunkStore
	citationCap  int
	locks        *keyedMutex
	chainMu      sync.Mutex
	audit        auditor
	now          func() time.Time
}

// NewSessionService creates a session manager.
// The chunkStore is optional; without it Rehydrate returns no short summaries.
func NewSessionService(
	sessionStore driven.SessionStore,
	chunkStore driven.ChunkStore,
	settings domain.SessionSettings,
) *SessionService {
	limit := settings.TopCitationCap
	if limit <= 0 {
		limit = domain.DefaultTopCitationCap
	}
	return &SessionService{
		sessionStore: sessionStore,
		chunkStore:   chunkStore,
		citationCap:  limit,
		locks:        newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetAuditSink sets the sink receiving session and checkpoint events.
func (s *SessionService) SetAuditSink(sink driven.AuditSink) {
	s.audit = auditor{sink: sink}
}

// Update merges update into the live session, creating it if needed.
func (s *SessionService) Update(
	ctx context.Context, sessionID string, update domain.SessionUpdate,
) (session *domain.Session, err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	defer func() {
		s.audit.record(ctx, domain.AuditSession, "update", "session", sessionID, start, err, map[string]any{
			"claims":    len(update.Claims),
			"citations": len(update.Citations),
		})
	}()

	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	now := s.now()
	session, err = s.sessionStore.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		logger.Debug("Creating session %s", sessionID)
		session = &domain.Session{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			UserID:    update.UserID,
			CreatedAt: now,
		}
	case err != nil:
		return nil, err
	}

	if update.Summary != "" {
		session.CondensedSummary = update.Summary
	}
	session.AppendClaims(update.Claims)
	session.TopCitations = domain.MergeTopCitations(session.TopCitations, update.Citations, s.citationCap)
	session.UpdatedAt = now

	if err := s.sessionStore.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("saving session %s: %w", sessionID, err)
	}
	return session, nil
}

// Get returns the live session.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessionStore.GetSession(ctx, sessionID)
}

// Checkpoint freezes the live session and advances its chain head.
func (s *SessionService) Checkpoint(ctx context.Context, sessionID, name string) (id string, err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	defer func() {
		s.audit.record(ctx, domain.AuditCheckpoint, "checkpoint", "checkpoint", id, start, err, map[string]any{
			"session_id": sessionID,
			"name":       name,
		})
	}()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	live, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	now := s.now()
	checkpoint := live.Freeze(uuid.New().String(), name, now)
	live.LastCheckpointID = checkpoint.ID
	live.UpdatedAt = now

	if err := s.sessionStore.SaveCheckpoint(ctx, live, checkpoint); err != nil {
		return "", fmt.Errorf("saving checkpoint: %w", err)
	}
	logger.Info("Checkpoint %s of session %s (parent %q)", checkpoint.ID, sessionID, checkpoint.ParentCheckpointID)
	return checkpoint.ID, nil
}

// Rehydrate returns the context stored in one checkpoint. Ancestors are not merged.
func (s *SessionService) Rehydrate(ctx context.Context, checkpointID string) (r *domain.Rehydration, err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	defer func() {
		s.audit.record(ctx, domain.AuditCheckpoint, "rehydrate", "checkpoint", checkpointID, start, err, nil)
	}()

	cp, err := s.sessionStore.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	r = &domain.Rehydration{
		CheckpointID:       cp.ID,
		CondensedSummary:   cp.CondensedSummary,
		SupportingChunkIDs: cp.SupportingChunkIDs(),
	}
	if s.chunkStore == nil {
		return r, nil
	}

	for _, c := range cp.TopCitations {
		text, err := s.shortSummary(ctx, c.ChunkID)
		if err != nil {
			return nil, err
		}
		if text != "" {
			r.TopShortSummaries = append(r.TopShortSummaries, text)
		}
	}
	return r, nil
}

// shortSummary returns the stored short summary of a chunk, or an excerpt of its text.
func (s *SessionService) shortSummary(ctx context.Context, chunkID string) (string, error) {
	summary, err := s.chunkStore.GetSummary(ctx, chunkID, domain.SummaryShort)
	if err == nil {
		return summary.Text, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	chunk, err := s.chunkStore.GetChunk(ctx, chunkID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Cited chunk %s no longer exists", chunkID)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return truncateRunes(chunk.Text, shortSummaryFallback), nil
}

// Ancestry returns the checkpoint followed by its ancestors, nearest first.
func (s *SessionService) Ancestry(ctx context.Context, checkpointID string) ([]domain.Session, error) {
	cp, err := s.sessionStore.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	chain := []domain.Session{*cp}
	visited := map[string]struct{}{cp.ID: {}}
	for parent := cp.ParentCheckpointID; parent != ""; {
		if _, ok := visited[parent]; ok {
			return nil, fmt.Errorf("%w: %s revisited from %s", domain.ErrCheckpointCycle, parent, checkpointID)
		}
		visited[parent] = struct{}{}

		next, err := s.sessionStore.GetCheckpoint(ctx, parent)
		if errors.Is(err, domain.ErrCheckpointNotFound) {
			logger.Warn("Checkpoint chain of %s ends at missing parent %s", checkpointID, parent)
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, *next)
		parent = next.ParentCheckpointID
	}
	return chain, nil
}

// Reparent moves checkpointID under parentID. A parent that is the checkpoint
// itself or one of its descendants is rejected and the chain is left unchanged.
func (s *SessionService) Reparent(ctx context.Context, checkpointID, parentID string) (err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	defer func() {
		s.audit.record(ctx, domain.AuditCheckpoint, "reparent", "checkpoint", checkpointID, start, err, map[string]any{
			"parent_id": parentID,
		})
	}()

	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	if _, err := s.sessionStore.GetCheckpoint(ctx, checkpointID); err != nil {
		return err
	}
	if parentID == checkpointID {
		return fmt.Errorf("%w: %s cannot be its own parent", domain.ErrCheckpointCycle, checkpointID)
	}
	if parentID != "" {
		ancestors, err := s.Ancestry(ctx, parentID)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			if a.ID == checkpointID {
				return fmt.Errorf("%w: %s descends from %s", domain.ErrCheckpointCycle, parentID, checkpointID)
			}
		}
	}

	return s.sessionStore.SetCheckpointParent(ctx, checkpointID, parentID)
}

// DeleteCheckpoint removes a checkpoint. With reparentChildren its children
// and any live session heads move to its parent.
func (s *SessionService) DeleteCheckpoint(ctx context.Context, checkpointID string, reparentChildren bool) (err error) {
	start := time.Now()
	ctx = ensureCorrelationID(ctx)
	defer func() {
		s.audit.record(ctx, domain.AuditCheckpoint, "delete", "checkpoint", checkpointID, start, err, map[string]any{
			"reparent": reparentChildren,
		})
	}()

	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	return s.sessionStore.DeleteCheckpoint(ctx, checkpointID, reparentChildren)
}

// truncateRunes returns at most limit runes of text.
func truncateRunes(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}
