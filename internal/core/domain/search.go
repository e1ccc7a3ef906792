package domain

import "strings"

// Query is a hybrid retrieval request. At least one of Vector and Text must be set.
type Query struct {
	// Vector is the query embedding. Empty or all-zero means no semantic side.
	Vector []float32

	// Text is the query text. Blank means no lexical side.
	Text string

	// K is the maximum number of results. Zero uses the configured default.
	K int

	// SemanticWeight and LexicalWeight scale the normalised scores.
	// Nil uses the configured weights.
	SemanticWeight *float64
	LexicalWeight  *float64
}

// HasVector reports whether the query has a usable vector.
func (q Query) HasVector() bool {
	return !IsZeroVector(q.Vector)
}

// HasText reports whether the query has non-blank text.
func (q Query) HasText() bool {
	return strings.TrimSpace(q.Text) != ""
}

// ScoredResult is one fused retrieval result.
type ScoredResult struct {
	// ID identifies the chunk.
	ID RetrievalID

	// Score is the fused score.
	Score float64

	// Semantic is the normalised semantic score, 0 when absent from that side.
	Semantic float64

	// Lexical is the normalised lexical score, 0 when absent from that side.
	Lexical float64
}

// SearchOptions configures a text search.
type SearchOptions struct {
	// Limit is the maximum number of results.
	Limit int

	// SemanticWeight and LexicalWeight override the configured weights when set.
	SemanticWeight *float64
	LexicalWeight  *float64
}

// SearchResult represents a single hydrated search hit.
type SearchResult struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Score is the fused relevance score.
	Score float64

	// Semantic and Lexical are the normalised component scores.
	Semantic float64
	Lexical  float64

	// Highlights contains snippets of the chunk.
	Highlights []string
}
