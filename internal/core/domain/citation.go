package domain

import (
	"fmt"
	"math"
	"time"
)

// Decision is the verifier's verdict on a claim.
type Decision string

// Available decisions, from strongest to weakest.
const (
	DecisionPass    Decision = "pass"
	DecisionPartial Decision = "partial"
	DecisionFail    Decision = "fail"
)

// IsValid returns true if the decision is recognised.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionPass, DecisionPartial, DecisionFail:
		return true
	default:
		return false
	}
}

// rank orders decisions so the weaker one compares lower.
func (d Decision) rank() int {
	switch d {
	case DecisionPass:
		return 2
	case DecisionPartial:
		return 1
	default:
		return 0
	}
}

// Weaker returns the weaker of d and other.
func (d Decision) Weaker(other Decision) Decision {
	if other.rank() < d.rank() {
		return other
	}
	return d
}

// String returns the string representation.
func (d Decision) String() string {
	return string(d)
}

// Thresholds configures the verifier's decision boundaries.
type Thresholds struct {
	// Pass is the minimum score for a pass decision.
	Pass float64

	// Partial is the minimum score for a partial decision.
	Partial float64
}

// DefaultThresholds returns the default pass/partial thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Pass: 0.80, Partial: 0.75}
}

// Validate rejects NaN thresholds, thresholds outside [0, 1] and partial above pass.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Pass) || math.IsNaN(t.Partial) {
		return fmt.Errorf("%w: thresholds must be numbers, got pass=%v partial=%v",
			ErrInvalidThresholdConfig, t.Pass, t.Partial)
	}
	if t.Pass < 0 || t.Pass > 1 || t.Partial < 0 || t.Partial > 1 {
		return fmt.Errorf("%w: thresholds must be in [0, 1], got pass=%v partial=%v",
			ErrInvalidThresholdConfig, t.Pass, t.Partial)
	}
	if t.Partial > t.Pass {
		return fmt.Errorf("%w: partial %v exceeds pass %v", ErrInvalidThresholdConfig, t.Partial, t.Pass)
	}
	return nil
}

// Classify maps a support score to a decision.
func (t Thresholds) Classify(score float64) Decision {
	switch {
	case score >= t.Pass:
		return DecisionPass
	case score >= t.Partial:
		return DecisionPartial
	default:
		return DecisionFail
	}
}

// Citation is an immutable record that a claim was checked against a chunk.
// Citations are only created by the verifier and are never updated.
type Citation struct {
	// ID is the unique identifier for the citation.
	ID string

	// RunID groups citations produced by one verification run.
	RunID string

	// ChunkID is the cited chunk's RetrievalID string.
	ChunkID string

	// QueryText is the user query that led to the claim.
	QueryText string

	// ClaimText is the claim being verified.
	ClaimText string

	// SimilarityScore is the support score of this chunk for the claim.
	SimilarityScore float64

	// Decision is the verdict for this (claim, chunk) pair.
	Decision Decision

	// ContextWindow lists the retrieval IDs of the cited chunk's neighbours.
	ContextWindow []string

	// CreatedAt is when the citation was recorded.
	CreatedAt time.Time
}
