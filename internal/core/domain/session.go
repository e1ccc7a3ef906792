package domain

import (
	"slices"
	"sort"
	"time"
)

// DefaultTopCitationCap bounds the citations retained in a session.
const DefaultTopCitationCap = 20

// Claim is a verified statement accepted into a session.
type Claim struct {
	// Text is the claim as stated.
	Text string `json:"text"`

	// CitationIDs are the retrieval IDs the claim cites.
	CitationIDs []string `json:"citation_ids"`

	// Decision is the verifier's verdict.
	Decision Decision `json:"decision"`

	// Score is the verifier's support score.
	Score float64 `json:"score"`
}

// Session is conversational state. A live session is mutable; a checkpoint
// is a frozen copy of a live session linked to its predecessor checkpoint.
type Session struct {
	// ID is the unique row identifier. For checkpoints this is the checkpoint ID.
	ID string

	// SessionID identifies the conversation.
	SessionID string

	// UserID is the owning user, if known.
	UserID string

	// CondensedSummary is the running summary of the conversation.
	CondensedSummary string

	// AcceptedClaims are the claims accepted so far, in acceptance order.
	AcceptedClaims []Claim

	// TopCitations is the bounded set of best-supported citations.
	TopCitations []Citation

	// IsCheckpoint marks frozen checkpoint rows.
	IsCheckpoint bool

	// CheckpointName is an optional label for a checkpoint.
	CheckpointName string

	// ParentCheckpointID links a checkpoint to its predecessor.
	ParentCheckpointID string

	// LastCheckpointID is the head of a live session's checkpoint chain.
	LastCheckpointID string

	// CreatedAt is when the row was created.
	CreatedAt time.Time

	// UpdatedAt is when the row was last updated.
	UpdatedAt time.Time
}

// Freeze returns a checkpoint copy of a live session.
func (s *Session) Freeze(id, name string, now time.Time) *Session {
	return &Session{
		ID:                 id,
		SessionID:          s.SessionID,
		UserID:             s.UserID,
		CondensedSummary:   s.CondensedSummary,
		AcceptedClaims:     cloneClaims(s.AcceptedClaims),
		TopCitations:       cloneCitations(s.TopCitations),
		IsCheckpoint:       true,
		CheckpointName:     name,
		ParentCheckpointID: s.LastCheckpointID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// SupportingChunkIDs returns top citation chunk IDs in order, followed by
// claim citations not already listed.
func (s *Session) SupportingChunkIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, c := range s.TopCitations {
		add(c.ChunkID)
	}
	for _, claim := range s.AcceptedClaims {
		for _, id := range claim.CitationIDs {
			add(id)
		}
	}
	return ids
}

// AppendClaims appends claims, skipping ones identical to an existing claim.
func (s *Session) AppendClaims(claims []Claim) {
	for _, c := range claims {
		if slices.ContainsFunc(s.AcceptedClaims, func(e Claim) bool { return claimsEqual(e, c) }) {
			continue
		}
		s.AcceptedClaims = append(s.AcceptedClaims, cloneClaim(c))
	}
}

// MergeTopCitations merges incoming into existing and keeps at most limit entries.
// Citations of the same chunk are collapsed to the best-scored one. When over
// the limit the lowest score is evicted, ties broken by oldest CreatedAt.
// The result is ordered by score descending, then CreatedAt, then ChunkID.
func MergeTopCitations(existing, incoming []Citation, limit int) []Citation {
	byChunk := make(map[string]Citation, len(existing)+len(incoming))
	consider := func(c Citation) {
		prev, ok := byChunk[c.ChunkID]
		if !ok || c.SimilarityScore > prev.SimilarityScore ||
			(c.SimilarityScore == prev.SimilarityScore && c.CreatedAt.Before(prev.CreatedAt)) {
			byChunk[c.ChunkID] = c
		}
	}
	for _, c := range existing {
		consider(c)
	}
	for _, c := range incoming {
		consider(c)
	}

	merged := make([]Citation, 0, len(byChunk))
	for _, c := range byChunk {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		return citationLess(merged[i], merged[j])
	})

	for limit > 0 && len(merged) > limit {
		i := evictionIndex(merged)
		merged = slices.Delete(merged, i, i+1)
	}
	return merged
}

// citationLess orders by score desc, created_at asc, chunk id asc.
func citationLess(a, b Citation) bool {
	if a.SimilarityScore != b.SimilarityScore {
		return a.SimilarityScore > b.SimilarityScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ChunkID < b.ChunkID
}

// evictionIndex finds the lowest-scored citation, preferring the oldest on ties.
func evictionIndex(cs []Citation) int {
	victim := 0
	for i := 1; i < len(cs); i++ {
		v, c := cs[victim], cs[i]
		if c.SimilarityScore < v.SimilarityScore ||
			(c.SimilarityScore == v.SimilarityScore && c.CreatedAt.Before(v.CreatedAt)) {
			victim = i
		}
	}
	return victim
}

func claimsEqual(a, b Claim) bool {
	return a.Text == b.Text && a.Decision == b.Decision && a.Score == b.Score &&
		slices.Equal(a.CitationIDs, b.CitationIDs)
}

func cloneClaim(c Claim) Claim {
	c.CitationIDs = slices.Clone(c.CitationIDs)
	return c
}

func cloneClaims(cs []Claim) []Claim {
	if cs == nil {
		return nil
	}
	out := make([]Claim, len(cs))
	for i, c := range cs {
		out[i] = cloneClaim(c)
	}
	return out
}

func cloneCitations(cs []Citation) []Citation {
	if cs == nil {
		return nil
	}
	out := make([]Citation, len(cs))
	for i, c := range cs {
		c.ContextWindow = slices.Clone(c.ContextWindow)
		out[i] = c
	}
	return out
}

// Rehydration is the minimal context needed to resume from a checkpoint.
type Rehydration struct {
	CheckpointID       string
	CondensedSummary   string
	TopShortSummaries  []string
	SupportingChunkIDs []string
}
