package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ChunkingStrategyFixedTokens splits text into fixed-size token windows with overlap.
const ChunkingStrategyFixedTokens = "fixed_tokens_with_overlap"

// ChunkingParams records how a chunk set was produced.
// Chunk sets produced with different params are distinct.
type ChunkingParams struct {
	// Size is the window length in tokens.
	Size int

	// OverlapRatio is the fraction of each window repeated in the next, in [0, 1).
	OverlapRatio float64

	// Seed is recorded for reproducibility. Chunking itself is deterministic.
	Seed int64

	// Strategy names the chunking algorithm.
	Strategy string
}

// DefaultChunkingParams returns the default token window settings.
func DefaultChunkingParams() ChunkingParams {
	return ChunkingParams{
		Size:         1024,
		OverlapRatio: 0.2,
		Seed:         42,
		Strategy:     ChunkingStrategyFixedTokens,
	}
}

// OverlapTokens returns floor(Size * OverlapRatio).
// A small epsilon absorbs float error such as 100*0.29 = 28.999999999999996.
func (p ChunkingParams) OverlapTokens() int {
	return int(math.Floor(float64(p.Size)*p.OverlapRatio + 1e-9))
}

// Step returns the number of tokens between consecutive window starts.
func (p ChunkingParams) Step() int {
	return p.Size - p.OverlapTokens()
}

// Validate checks the window size and overlap ratio.
func (p ChunkingParams) Validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkingParams, p.Size)
	}
	if math.IsNaN(p.OverlapRatio) || p.OverlapRatio < 0 || p.OverlapRatio >= 1 {
		return fmt.Errorf("%w: overlap ratio must be in [0, 1), got %v", ErrInvalidChunkingParams, p.OverlapRatio)
	}
	if p.OverlapTokens() >= p.Size {
		return fmt.Errorf("%w: overlap of %d tokens leaves no progress for size %d",
			ErrInvalidChunkingParams, p.OverlapTokens(), p.Size)
	}
	if p.Strategy != "" && p.Strategy != ChunkingStrategyFixedTokens {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidChunkingParams, p.Strategy)
	}
	return nil
}

// Fingerprint is a stable textual form of the params.
func (p ChunkingParams) Fingerprint() string {
	strategy := p.Strategy
	if strategy == "" {
		strategy = ChunkingStrategyFixedTokens
	}
	return strategy +
		"/size=" + strconv.Itoa(p.Size) +
		"/overlap=" + strconv.FormatFloat(p.OverlapRatio, 'g', -1, 64) +
		"/seed=" + strconv.FormatInt(p.Seed, 10)
}

// ByteSpan is a half-open [Start, End) byte range into the work text.
type ByteSpan struct {
	Start int
	End   int
}

// Len returns the span length in bytes.
func (s ByteSpan) Len() int {
	return s.End - s.Start
}

// WorkRef identifies the work a chunk set belongs to.
type WorkRef struct {
	ID      string
	Slug    string
	Version string
}

// Chunk is a token window of a work.
type Chunk struct {
	// ID is the RetrievalID string "slug:version:index".
	ID string

	// WorkID links to the owning Work.
	WorkID string

	// Index is the 0-based position of the chunk within its work.
	Index int

	// Text is the chunk content, an exact byte range of the work text.
	Text string

	// Span locates Text within the work text.
	Span ByteSpan

	// TokenCount is the number of tokens in the window.
	TokenCount int

	// ContentHash is the hex SHA-256 of the chunk's identity, params and text.
	ContentHash string

	// Params records how the chunk was produced.
	Params ChunkingParams

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time
}

// RetrievalID parses the chunk's ID.
func (c *Chunk) RetrievalID() (RetrievalID, error) {
	return ParseRetrievalID(c.ID)
}

// ContentHash returns the hex SHA-256 over the retrieval ID, params fingerprint and text.
// It is globally unique because retrieval IDs are, and changes whenever the params do.
func ContentHash(id RetrievalID, params ChunkingParams, text string) string {
	h := sha256.New()
	h.Write([]byte(id.String()))
	h.Write([]byte{0})
	h.Write([]byte(params.Fingerprint()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// TextHash returns the hex SHA-256 of text alone.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ValidateChunkSet checks that chunks belong to workID and that their
// indices are contiguous from 0 with unique content hashes.
func ValidateChunkSet(workID string, chunks []Chunk) error {
	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.WorkID != workID {
			return fmt.Errorf("%w: chunk %s belongs to work %q, not %q", ErrInvalidInput, c.ID, c.WorkID, workID)
		}
		if c.Index != i {
			return fmt.Errorf("%w: chunk index %d at position %d is not contiguous", ErrInvalidInput, c.Index, i)
		}
		if c.ContentHash == "" {
			return fmt.Errorf("%w: chunk %s has no content hash", ErrInvalidInput, c.ID)
		}
		if _, dup := seen[c.ContentHash]; dup {
			return fmt.Errorf("%w: duplicate content hash %s", ErrAlreadyExists, c.ContentHash)
		}
		seen[c.ContentHash] = struct{}{}
	}
	return nil
}
