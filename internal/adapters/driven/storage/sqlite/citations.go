package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// ==================== Citation Store ====================

const citationColumns = `id, run_id, chunk_id, query_text, claim_text, similarity_score, decision,
	context_window, created_at`

// AppendCitations stores citations atomically: all are stored or none are.
func (s *Store) AppendCitations(ctx context.Context, citations []domain.Citation) error {
	for i := range citations {
		if !citations[i].Decision.IsValid() {
			return fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidInput, citations[i].Decision)
		}
	}

	now := s.now()
	ids := make([]string, len(citations))
	created := make([]time.Time, len(citations))
	for i, c := range citations {
		ids[i], created[i] = c.ID, c.CreatedAt
		if ids[i] == "" {
			ids[i] = newID()
		}
		if created[i].IsZero() {
			created[i] = now
		}
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO citations (`+citationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for i := range citations {
			c := &citations[i]

			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE id = ?", c.ChunkID).Scan(&exists); err != nil {
				return fmt.Errorf("checking chunk: %w", err)
			}
			if exists == 0 {
				return fmt.Errorf("%w: cited chunk %s", domain.ErrNotFound, c.ChunkID)
			}

			windowJSON, err := json.Marshal(nonNil(c.ContextWindow))
			if err != nil {
				return fmt.Errorf("marshalling context window: %w", err)
			}

			_, err = stmt.ExecContext(ctx, ids[i], c.RunID, c.ChunkID, c.QueryText, c.ClaimText,
				c.SimilarityScore, string(c.Decision), string(windowJSON), created[i].UTC())
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: citation %s", domain.ErrAlreadyExists, ids[i])
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: cited chunk %s", domain.ErrNotFound, c.ChunkID)
			}
			if err != nil {
				return fmt.Errorf("saving citation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range citations {
		citations[i].ID, citations[i].CreatedAt = ids[i], created[i]
	}
	return nil
}

// ListCitationsByRun returns the citations of a run in creation order.
func (s *Store) ListCitationsByRun(ctx context.Context, runID string) ([]domain.Citation, error) {
	return s.queryCitations(ctx, "SELECT "+citationColumns+" FROM citations WHERE run_id = ? ORDER BY rowid", runID)
}

// ListCitationsByChunk returns the citations of a chunk in creation order.
func (s *Store) ListCitationsByChunk(ctx context.Context, chunkID string) ([]domain.Citation, error) {
	return s.queryCitations(ctx, "SELECT "+citationColumns+" FROM citations WHERE chunk_id = ? ORDER BY rowid", chunkID)
}

func (s *Store) queryCitations(ctx context.Context, query string, args ...any) ([]domain.Citation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying citations: %w", err)
	}
	defer rows.Close()

	var citations []domain.Citation //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.Citation
		var decision, windowJSON string
		if err := rows.Scan(&c.ID, &c.RunID, &c.ChunkID, &c.QueryText, &c.ClaimText,
			&c.SimilarityScore, &decision, &windowJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning citation: %w", err)
		}
		c.Decision = domain.Decision(decision)
		c.CreatedAt = c.CreatedAt.UTC()
		if err := json.Unmarshal([]byte(windowJSON), &c.ContextWindow); err != nil {
			return nil, fmt.Errorf("unmarshaling context window: %w", err)
		}
		if len(c.ContextWindow) == 0 {
			c.ContextWindow = nil
		}
		citations = append(citations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating citations: %w", err)
	}
	return citations, nil
}
