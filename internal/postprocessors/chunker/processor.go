// Package chunker provides a fixed-size token window chunking processor.
package chunker

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// Processor splits work text into windows of whitespace-delimited tokens.
// Consecutive windows share floor(size*overlap) tokens.
type Processor struct {
	params domain.ChunkingParams
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the default window size in tokens.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.params.Size = size
		}
	}
}

// WithOverlapRatio sets the default fraction of each window repeated in the next.
func WithOverlapRatio(ratio float64) Option {
	return func(p *Processor) {
		if ratio >= 0 && ratio < 1 {
			p.params.OverlapRatio = ratio
		}
	}
}

// WithSeed sets the seed recorded in chunk params.
func WithSeed(seed int64) Option {
	return func(p *Processor) {
		p.params.Seed = seed
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{params: domain.DefaultChunkingParams()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Params returns the default params used by Process.
func (p *Processor) Params() domain.ChunkingParams {
	return p.params
}

// Process chunks text with the processor's default params.
func (p *Processor) Process(ctx context.Context, work domain.WorkRef, text string) ([]domain.Chunk, error) {
	return p.Chunk(ctx, work, text, p.params)
}

// Chunk splits text into chunks owned by work.
// Empty or whitespace-only text produces no chunks.
func (p *Processor) Chunk(ctx context.Context, work domain.WorkRef, text string, params domain.ChunkingParams) ([]domain.Chunk, error) {
	if params.Strategy == "" {
		params.Strategy = domain.ChunkingStrategyFixedTokens
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := params.Step()
	chunks := make([]domain.Chunk, 0, len(tokens)/step+1)

	for start := 0; start < len(tokens); start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+params.Size, len(tokens))
		id, err := domain.NewRetrievalID(work.Slug, work.Version, len(chunks))
		if err != nil {
			return nil, err
		}

		span := domain.ByteSpan{Start: tokens[start].start, End: tokens[end-1].end}
		content := text[span.Start:span.End]
		chunks = append(chunks, domain.Chunk{
			ID:          id.String(),
			WorkID:      work.ID,
			Index:       id.ChunkIndex,
			Text:        content,
			Span:        span,
			TokenCount:  end - start,
			ContentHash: domain.ContentHash(id, params, content),
			Params:      params,
		})

		// The window reaching the last token is the final one.
		if end == len(tokens) {
			break
		}
	}

	return chunks, nil
}

// token is the byte range of a maximal run of non-whitespace.
type token struct {
	start int
	end   int
}

// tokenize splits text on Unicode whitespace, recording byte offsets.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{start: start, end: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		tokens = append(tokens, token{start: start, end: len(text)})
	}
	return tokens
}

// CountTokens returns the number of tokens the chunker sees in text.
func CountTokens(text string) int {
	return len(tokenize(text))
}
