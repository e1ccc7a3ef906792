package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// ==================== Work Store ====================

const workColumns = `id, slug, version, canonical_url, title, authors, tags, file_format, raw_path,
	status, ingestion_started_at, ingestion_completed_at, total_chunks, metadata, created_at, updated_at`

// SaveWork stores or updates a work.
func (s *Store) SaveWork(ctx context.Context, work *domain.Work) error {
	if err := work.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		if work.ID == "" {
			work.ID = newID()
		}

		prev, err := scanWork(tx.QueryRowContext(ctx, "SELECT "+workColumns+" FROM works WHERE id = ?", work.ID))
		switch {
		case err == nil:
			if err := work.CheckUpdate(prev); err != nil {
				return err
			}
			work.CreatedAt = prev.CreatedAt
		case errors.Is(err, domain.ErrNotFound):
			if work.CreatedAt.IsZero() {
				work.CreatedAt = now
			}
		default:
			return err
		}
		if work.Status == "" {
			work.Status = domain.WorkStatusPending
		}
		work.UpdatedAt = now

		authorsJSON, err := json.Marshal(nonNil(work.Authors))
		if err != nil {
			return fmt.Errorf("marshalling authors: %w", err)
		}
		tagsJSON, err := json.Marshal(nonNil(work.Tags))
		if err != nil {
			return fmt.Errorf("marshalling tags: %w", err)
		}
		metadataJSON, err := json.Marshal(work.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO works (`+workColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				slug = excluded.slug,
				version = excluded.version,
				canonical_url = excluded.canonical_url,
				title = excluded.title,
				authors = excluded.authors,
				tags = excluded.tags,
				file_format = excluded.file_format,
				raw_path = excluded.raw_path,
				status = excluded.status,
				ingestion_started_at = excluded.ingestion_started_at,
				ingestion_completed_at = excluded.ingestion_completed_at,
				total_chunks = excluded.total_chunks,
				metadata = excluded.metadata,
				updated_at = excluded.updated_at
		`, work.ID, work.Slug, work.Version, work.CanonicalURL, work.Title, string(authorsJSON),
			string(tagsJSON), work.FileFormat, work.RawPath, string(work.Status),
			nullTime(work.IngestionStartedAt), nullTime(work.IngestionCompletedAt), work.TotalChunks,
			string(metadataJSON), work.CreatedAt.UTC(), work.UpdatedAt.UTC())
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: work %s:%s", domain.ErrAlreadyExists, work.Slug, work.Version)
		}
		if err != nil {
			return fmt.Errorf("saving work: %w", err)
		}
		return nil
	})
}

// GetWork retrieves a work by ID.
func (s *Store) GetWork(ctx context.Context, id string) (*domain.Work, error) {
	return scanWork(s.db.QueryRowContext(ctx, "SELECT "+workColumns+" FROM works WHERE id = ?", id))
}

// GetWorkBySlug retrieves a work by slug and version.
func (s *Store) GetWorkBySlug(ctx context.Context, slug, version string) (*domain.Work, error) {
	return scanWork(s.db.QueryRowContext(ctx,
		"SELECT "+workColumns+" FROM works WHERE slug = ? AND version = ?", slug, version))
}

// ListWorks returns all works ordered by slug then version.
func (s *Store) ListWorks(ctx context.Context) ([]domain.Work, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+workColumns+" FROM works ORDER BY slug, version")
	if err != nil {
		return nil, fmt.Errorf("querying works: %w", err)
	}
	defer rows.Close()

	var works []domain.Work //nolint:prealloc // size unknown from query
	for rows.Next() {
		work, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, *work)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating works: %w", err)
	}
	return works, nil
}

// DeleteWork removes a work with its chunks, embeddings and summaries.
func (s *Store) DeleteWork(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var cited int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM citations c JOIN chunks k ON k.id = c.chunk_id WHERE k.work_id = ?
		`, id).Scan(&cited); err != nil {
			return fmt.Errorf("counting citations: %w", err)
		}
		if cited > 0 {
			return domain.ErrChunkReferenced
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM works WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting work: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// scanWork scans a single work row.
func scanWork(row scanner) (*domain.Work, error) {
	var work domain.Work
	var authorsJSON, tagsJSON, metadataJSON, status string
	var started, completed sql.NullTime

	if err := row.Scan(&work.ID, &work.Slug, &work.Version, &work.CanonicalURL, &work.Title,
		&authorsJSON, &tagsJSON, &work.FileFormat, &work.RawPath, &status, &started, &completed,
		&work.TotalChunks, &metadataJSON, &work.CreatedAt, &work.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning work: %w", err)
	}

	work.Status = domain.WorkStatus(status)
	work.IngestionStartedAt = timePtr(started)
	work.IngestionCompletedAt = timePtr(completed)
	work.CreatedAt = work.CreatedAt.UTC()
	work.UpdatedAt = work.UpdatedAt.UTC()

	if err := json.Unmarshal([]byte(authorsJSON), &work.Authors); err != nil {
		return nil, fmt.Errorf("unmarshaling authors: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &work.Tags); err != nil {
		return nil, fmt.Errorf("unmarshaling tags: %w", err)
	}
	if metadataJSON != "" && metadataJSON != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON), &work.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if len(work.Authors) == 0 {
		work.Authors = nil
	}
	if len(work.Tags) == 0 {
		work.Tags = nil
	}

	return &work, nil
}

// jsonNull is the JSON representation of null.
const jsonNull = "null"

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
