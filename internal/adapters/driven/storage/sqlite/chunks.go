package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// ==================== Chunk Store ====================

const chunkColumns = `id, work_id, chunk_index, text, span_start, span_end, token_count, content_hash,
	chunk_size, overlap_ratio, seed, strategy, created_at`

// SaveChunks atomically replaces the chunk set of a work.
// Chunks whose content hash is unchanged keep their embeddings and summaries.
func (s *Store) SaveChunks(ctx context.Context, workID string, chunks []domain.Chunk) error {
	if err := domain.ValidateChunkSet(workID, chunks); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM works WHERE id = ?", workID).Scan(&exists); err != nil {
			return fmt.Errorf("checking work: %w", err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}

		old, err := queryChunks(ctx, tx, "SELECT "+chunkColumns+" FROM chunks WHERE work_id = ?", workID)
		if err != nil {
			return err
		}
		incoming := make(map[string]string, len(chunks))
		for _, c := range chunks {
			incoming[c.ID] = c.ContentHash
		}

		kept := make(map[string]domain.Chunk)
		for _, c := range old {
			if hash, ok := incoming[c.ID]; ok && hash == c.ContentHash {
				kept[c.ID] = c
				continue
			}
			var cited int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM citations WHERE chunk_id = ?", c.ID).Scan(&cited); err != nil {
				return fmt.Errorf("counting citations: %w", err)
			}
			if cited > 0 {
				return fmt.Errorf("%w: %s", domain.ErrChunkReferenced, c.ID)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", c.ID); err != nil {
				return fmt.Errorf("deleting chunk: %w", err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (`+chunkColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		now := s.now()
		for i := range chunks {
			c := &chunks[i]
			if prev, ok := kept[c.ID]; ok {
				c.CreatedAt = prev.CreatedAt
				continue
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			_, err := stmt.ExecContext(ctx, c.ID, workID, c.Index, c.Text, c.Span.Start, c.Span.End,
				c.TokenCount, c.ContentHash, c.Params.Size, c.Params.OverlapRatio, c.Params.Seed,
				c.Params.Strategy, c.CreatedAt.UTC())
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: chunk %s or its content hash", domain.ErrAlreadyExists, c.ID)
			}
			if err != nil {
				return fmt.Errorf("saving chunk: %w", err)
			}
		}
		return nil
	})
}

// GetChunks retrieves all chunks for a work ordered by index.
func (s *Store) GetChunks(ctx context.Context, workID string) ([]domain.Chunk, error) {
	return queryChunks(ctx, s.db, "SELECT "+chunkColumns+" FROM chunks WHERE work_id = ? ORDER BY chunk_index", workID)
}

// GetChunk retrieves a chunk by its RetrievalID string.
func (s *Store) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	return scanChunk(s.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id))
}

// ListChunks returns every stored chunk ordered by ID.
func (s *Store) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	return queryChunks(ctx, s.db, "SELECT "+chunkColumns+" FROM chunks ORDER BY id")
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryChunks(ctx context.Context, q querier, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// scanChunk scans a single chunk row.
func scanChunk(row scanner) (*domain.Chunk, error) {
	var c domain.Chunk
	if err := row.Scan(&c.ID, &c.WorkID, &c.Index, &c.Text, &c.Span.Start, &c.Span.End,
		&c.TokenCount, &c.ContentHash, &c.Params.Size, &c.Params.OverlapRatio, &c.Params.Seed,
		&c.Params.Strategy, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// ==================== Embeddings ====================

const embeddingColumns = `id, chunk_id, model_name, model_version, dimension, vector, vector_hash,
	index_position, created_at`

// SaveEmbedding stores the embedding of a chunk.
// The same model updates in place; a different model replaces it with a new record.
func (s *Store) SaveEmbedding(ctx context.Context, embedding *domain.Embedding) error {
	if err := embedding.Validate(len(embedding.Vector)); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE id = ?", embedding.ChunkID).Scan(&exists); err != nil {
			return fmt.Errorf("checking chunk: %w", err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}

		prev, err := scanEmbedding(tx.QueryRowContext(ctx,
			"SELECT "+embeddingColumns+" FROM embeddings WHERE chunk_id = ?", embedding.ChunkID))
		switch {
		case err == nil && prev.ModelName == embedding.ModelName:
			embedding.ID = prev.ID
			embedding.CreatedAt = prev.CreatedAt
		case err == nil || errors.Is(err, domain.ErrNotFound):
			if embedding.ID == "" || (prev != nil && embedding.ID == prev.ID) {
				embedding.ID = newID()
			}
		default:
			return err
		}
		if embedding.CreatedAt.IsZero() {
			embedding.CreatedAt = s.now()
		}
		embedding.Dimension = len(embedding.Vector)
		if embedding.VectorHash == "" {
			embedding.VectorHash = domain.VectorHash(embedding.Vector)
		}

		if prev != nil && prev.ID != embedding.ID {
			if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE id = ?", prev.ID); err != nil {
				return fmt.Errorf("replacing embedding: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (`+embeddingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				model_version = excluded.model_version,
				dimension = excluded.dimension,
				vector = excluded.vector,
				vector_hash = excluded.vector_hash,
				index_position = excluded.index_position
		`, embedding.ID, embedding.ChunkID, embedding.ModelName, embedding.ModelVersion,
			embedding.Dimension, float32SliceToBytes(embedding.Vector), embedding.VectorHash,
			embedding.IndexPosition, embedding.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("saving embedding: %w", err)
		}
		return nil
	})
}

// GetEmbedding retrieves the embedding of a chunk.
func (s *Store) GetEmbedding(ctx context.Context, chunkID string) (*domain.Embedding, error) {
	return scanEmbedding(s.db.QueryRowContext(ctx,
		"SELECT "+embeddingColumns+" FROM embeddings WHERE chunk_id = ?", chunkID))
}

// ListEmbeddings returns every stored embedding ordered by chunk ID.
func (s *Store) ListEmbeddings(ctx context.Context) ([]domain.Embedding, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+embeddingColumns+" FROM embeddings ORDER BY chunk_id")
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	embeddings := []domain.Embedding{}
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return embeddings, nil
}

func scanEmbedding(row scanner) (*domain.Embedding, error) {
	var e domain.Embedding
	var blob []byte
	if err := row.Scan(&e.ID, &e.ChunkID, &e.ModelName, &e.ModelVersion, &e.Dimension, &blob,
		&e.VectorHash, &e.IndexPosition, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning embedding: %w", err)
	}
	e.Vector = bytesToFloat32Slice(blob)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// ==================== Summaries ====================

// SaveSummary stores or replaces the summary of a chunk at one level.
func (s *Store) SaveSummary(ctx context.Context, summary *domain.Summary) error {
	if !summary.Level.IsValid() {
		return fmt.Errorf("%w: unknown summary level %q", domain.ErrInvalidInput, summary.Level)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE id = ?", summary.ChunkID).Scan(&exists); err != nil {
			return fmt.Errorf("checking chunk: %w", err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}

		var prevID string
		err := tx.QueryRowContext(ctx, "SELECT id FROM summaries WHERE chunk_id = ? AND level = ?",
			summary.ChunkID, string(summary.Level)).Scan(&prevID)
		switch {
		case err == nil:
			summary.ID = prevID
		case errors.Is(err, sql.ErrNoRows):
			if summary.ID == "" {
				summary.ID = newID()
			}
		default:
			return fmt.Errorf("querying summary: %w", err)
		}
		if summary.CreatedAt.IsZero() {
			summary.CreatedAt = s.now()
		}
		summary.CharCount = len([]rune(summary.Text))

		_, err = tx.ExecContext(ctx, `
			INSERT INTO summaries (id, chunk_id, level, text, char_count, llm_model, prompt_hash, temperature, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id, level) DO UPDATE SET
				text = excluded.text,
				char_count = excluded.char_count,
				llm_model = excluded.llm_model,
				prompt_hash = excluded.prompt_hash,
				temperature = excluded.temperature,
				created_at = excluded.created_at
		`, summary.ID, summary.ChunkID, string(summary.Level), summary.Text, summary.CharCount,
			summary.LLMModel, summary.PromptHash, summary.Temperature, summary.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("saving summary: %w", err)
		}
		return nil
	})
}

// GetSummary retrieves the summary of a chunk at one level.
func (s *Store) GetSummary(ctx context.Context, chunkID string, level domain.SummaryLevel) (*domain.Summary, error) {
	var sum domain.Summary
	var lvl string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chunk_id, level, text, char_count, llm_model, prompt_hash, temperature, created_at
		FROM summaries WHERE chunk_id = ? AND level = ?
	`, chunkID, string(level)).Scan(&sum.ID, &sum.ChunkID, &lvl, &sum.Text, &sum.CharCount,
		&sum.LLMModel, &sum.PromptHash, &sum.Temperature, &sum.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning summary: %w", err)
	}
	sum.Level = domain.SummaryLevel(lvl)
	sum.CreatedAt = sum.CreatedAt.UTC()
	return &sum, nil
}
