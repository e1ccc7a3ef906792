package driving

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// VerifierService checks claims against the chunks they cite.
type VerifierService interface {
	// Verify scores one claim and appends one citation per cited chunk.
	Verify(ctx context.Context, claim domain.ClaimInput) (*domain.Verification, error)

	// VerifyRun verifies every claim of a model output.
	// The overall decision is the weakest claim decision; no claims is a fail.
	VerifyRun(ctx context.Context, runID string, claims []domain.ClaimInput) (*domain.RunVerification, error)

	// Thresholds returns the configured decision boundaries.
	Thresholds() domain.Thresholds
}
