package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// ==================== Session Store ====================

const sessionColumns = `id, session_id, user_id, condensed_summary, accepted_claims, top_citations,
	is_checkpoint, checkpoint_name, parent_checkpoint_id, last_checkpoint_id, created_at, updated_at`

// storedCitation is the JSON form of a session's top citation.
type storedCitation struct {
	ID              string          `json:"id"`
	RunID           string          `json:"run_id,omitempty"`
	ChunkID         string          `json:"chunk_id"`
	QueryText       string          `json:"query_text,omitempty"`
	ClaimText       string          `json:"claim_text"`
	SimilarityScore float64         `json:"similarity_score"`
	Decision        domain.Decision `json:"decision"`
	ContextWindow   []string        `json:"context_window,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// GetSession retrieves the live session for a session ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ? AND is_checkpoint = 0", sessionID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoActiveSession
	}
	return sess, err
}

// SaveSession inserts or updates a live session.
func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.saveLive(ctx, tx, session)
	})
}

func (s *Store) saveLive(ctx context.Context, tx *sql.Tx, session *domain.Session) error {
	if session.IsCheckpoint {
		return fmt.Errorf("%w: checkpoint saved as live session", domain.ErrInvalidInput)
	}
	if session.SessionID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	if session.LastCheckpointID != "" {
		if err := checkpointExists(ctx, tx, session.LastCheckpointID); err != nil {
			return err
		}
	}

	now := s.now()
	var prevID string
	var prevCreated sql.NullTime
	err := tx.QueryRowContext(ctx,
		"SELECT id, created_at FROM sessions WHERE session_id = ? AND is_checkpoint = 0",
		session.SessionID).Scan(&prevID, &prevCreated)
	switch {
	case err == nil:
		session.ID = prevID
		session.CreatedAt = prevCreated.Time.UTC()
	case errors.Is(err, sql.ErrNoRows):
		if session.ID == "" {
			session.ID = newID()
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
	default:
		return fmt.Errorf("querying session: %w", err)
	}
	session.UpdatedAt = now

	return upsertSession(ctx, tx, session)
}

// SaveCheckpoint stores checkpoint and updates live in one transaction.
func (s *Store) SaveCheckpoint(ctx context.Context, live, checkpoint *domain.Session) error {
	if !checkpoint.IsCheckpoint || checkpoint.ID == "" {
		return fmt.Errorf("%w: checkpoint must be frozen with an id", domain.ErrInvalidInput)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if checkpoint.ParentCheckpointID != "" {
			if err := checkpointExists(ctx, tx, checkpoint.ParentCheckpointID); err != nil {
				return err
			}
		}
		if checkpoint.CreatedAt.IsZero() {
			checkpoint.CreatedAt = s.now()
			checkpoint.UpdatedAt = checkpoint.CreatedAt
		}

		claimsJSON, citationsJSON, err := marshalSessionState(checkpoint)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, NULL, ?, ?)
		`, checkpoint.ID, checkpoint.SessionID, checkpoint.UserID, checkpoint.CondensedSummary,
			claimsJSON, citationsJSON, checkpoint.CheckpointName, nullString(checkpoint.ParentCheckpointID),
			checkpoint.CreatedAt.UTC(), checkpoint.UpdatedAt.UTC())
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: checkpoint %s", domain.ErrAlreadyExists, checkpoint.ID)
		}
		if err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}

		return s.saveLive(ctx, tx, live)
	})
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ? AND is_checkpoint = 1", id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrCheckpointNotFound
	}
	return sess, err
}

// ListChildren returns checkpoints whose parent is id, oldest first.
func (s *Store) ListChildren(ctx context.Context, id string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE parent_checkpoint_id = ? AND is_checkpoint = 1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying children: %w", err)
	}
	defer rows.Close()

	var children []domain.Session //nolint:prealloc // size unknown from query
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating children: %w", err)
	}
	return children, nil
}

// SetCheckpointParent changes the parent link of a checkpoint.
func (s *Store) SetCheckpointParent(ctx context.Context, id, parentID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkpointExists(ctx, tx, id); err != nil {
			return err
		}
		if parentID != "" {
			if err := checkpointExists(ctx, tx, parentID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE sessions SET parent_checkpoint_id = ?, updated_at = ? WHERE id = ?",
			nullString(parentID), s.now(), id)
		if err != nil {
			return fmt.Errorf("updating parent: %w", err)
		}
		return nil
	})
}

// DeleteCheckpoint removes a checkpoint. Live sessions headed by it move to its parent.
func (s *Store) DeleteCheckpoint(ctx context.Context, id string, reparent bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var parent sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT parent_checkpoint_id FROM sessions WHERE id = ? AND is_checkpoint = 1", id).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCheckpointNotFound
		}
		if err != nil {
			return fmt.Errorf("querying checkpoint: %w", err)
		}

		var children int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sessions WHERE parent_checkpoint_id = ?", id).Scan(&children); err != nil {
			return fmt.Errorf("counting children: %w", err)
		}
		if children > 0 && !reparent {
			return domain.ErrCheckpointHasChildren
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET parent_checkpoint_id = ?, updated_at = ? WHERE parent_checkpoint_id = ?",
			parent, now, id); err != nil {
			return fmt.Errorf("reparenting children: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET last_checkpoint_id = ?, updated_at = ? WHERE last_checkpoint_id = ?",
			parent, now, id); err != nil {
			return fmt.Errorf("moving session heads: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting checkpoint: %w", err)
		}
		return nil
	})
}

func checkpointExists(ctx context.Context, tx *sql.Tx, id string) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE id = ? AND is_checkpoint = 1", id).Scan(&n); err != nil {
		return fmt.Errorf("checking checkpoint: %w", err)
	}
	if n == 0 {
		return domain.ErrCheckpointNotFound
	}
	return nil
}

func upsertSession(ctx context.Context, tx *sql.Tx, session *domain.Session) error {
	claimsJSON, citationsJSON, err := marshalSessionState(session)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, '', NULL, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			condensed_summary = excluded.condensed_summary,
			accepted_claims = excluded.accepted_claims,
			top_citations = excluded.top_citations,
			last_checkpoint_id = excluded.last_checkpoint_id,
			updated_at = excluded.updated_at
	`, session.ID, session.SessionID, session.UserID, session.CondensedSummary, claimsJSON,
		citationsJSON, nullString(session.LastCheckpointID), session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func marshalSessionState(session *domain.Session) (string, string, error) {
	claimsJSON, err := json.Marshal(nonNil(session.AcceptedClaims))
	if err != nil {
		return "", "", fmt.Errorf("marshalling claims: %w", err)
	}
	stored := make([]storedCitation, len(session.TopCitations))
	for i, c := range session.TopCitations {
		stored[i] = storedCitation{
			ID:              c.ID,
			RunID:           c.RunID,
			ChunkID:         c.ChunkID,
			QueryText:       c.QueryText,
			ClaimText:       c.ClaimText,
			SimilarityScore: c.SimilarityScore,
			Decision:        c.Decision,
			ContextWindow:   c.ContextWindow,
			CreatedAt:       c.CreatedAt.UTC(),
		}
	}
	citationsJSON, err := json.Marshal(stored)
	if err != nil {
		return "", "", fmt.Errorf("marshalling citations: %w", err)
	}
	return string(claimsJSON), string(citationsJSON), nil
}

// scanSession scans a single session row.
func scanSession(row scanner) (*domain.Session, error) {
	var sess domain.Session
	var claimsJSON, citationsJSON string
	var isCheckpoint int
	var parent, last sql.NullString

	if err := row.Scan(&sess.ID, &sess.SessionID, &sess.UserID, &sess.CondensedSummary,
		&claimsJSON, &citationsJSON, &isCheckpoint, &sess.CheckpointName, &parent, &last,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.IsCheckpoint = isCheckpoint == 1
	sess.ParentCheckpointID = parent.String
	sess.LastCheckpointID = last.String
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()

	if err := json.Unmarshal([]byte(claimsJSON), &sess.AcceptedClaims); err != nil {
		return nil, fmt.Errorf("unmarshaling claims: %w", err)
	}
	var stored []storedCitation
	if err := json.Unmarshal([]byte(citationsJSON), &stored); err != nil {
		return nil, fmt.Errorf("unmarshaling citations: %w", err)
	}
	if len(stored) > 0 {
		sess.TopCitations = make([]domain.Citation, len(stored))
		for i, c := range stored {
			sess.TopCitations[i] = domain.Citation{
				ID:              c.ID,
				RunID:           c.RunID,
				ChunkID:         c.ChunkID,
				QueryText:       c.QueryText,
				ClaimText:       c.ClaimText,
				SimilarityScore: c.SimilarityScore,
				Decision:        c.Decision,
				ContextWindow:   c.ContextWindow,
				CreatedAt:       c.CreatedAt.UTC(),
			}
		}
	}
	if len(sess.AcceptedClaims) == 0 {
		sess.AcceptedClaims = nil
	}

	return &sess, nil
}
