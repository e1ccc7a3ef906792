package domain

import "time"

// SummaryLevel is the length class of a chunk summary.
type SummaryLevel string

// Available summary levels.
const (
	SummaryShort  SummaryLevel = "short"
	SummaryMedium SummaryLevel = "medium"
	SummaryLong   SummaryLevel = "long"
)

// IsValid returns true if the level is recognised.
func (l SummaryLevel) IsValid() bool {
	switch l {
	case SummaryShort, SummaryMedium, SummaryLong:
		return true
	default:
		return false
	}
}

// Summary is a condensed form of one chunk at one level.
// There is at most one summary per (chunk, level).
type Summary struct {
	ID          string
	ChunkID     string
	Level       SummaryLevel
	Text        string
	CharCount   int
	LLMModel    string
	PromptHash  string
	Temperature float64
	CreatedAt   time.Time
}
