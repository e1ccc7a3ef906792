package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/core/domain"
)

var (
	verifyClaim      string
	verifyCites      []string
	verifyRunID      string
	verifyQuery      string
	verifyClaimsFile string
	verifyJSON       bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify claims against the chunks they cite",
	Long: `Scores a claim against the centroid of its cited chunks and records one
citation per cited chunk.

A score at or above the pass threshold passes, at or above the partial
threshold is partial, anything lower fails. A claim without citations fails.

Use --claims-file with a JSON array of {"text", "cited_ids"} objects to verify
every claim of one model output as a run. The run decision is the weakest
claim decision.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyClaim, "claim", "", "claim text")
	verifyCmd.Flags().StringSliceVar(&verifyCites, "cite", nil, "cited retrieval ID (repeatable)")
	verifyCmd.Flags().StringVar(&verifyRunID, "run-id", "", "run grouping the citations (default: generated)")
	verifyCmd.Flags().StringVar(&verifyQuery, "query", "", "user query the claim answers")
	verifyCmd.Flags().StringVar(&verifyClaimsFile, "claims-file", "", "JSON file of claims verified as one run")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "output results as JSON")
	verifyCmd.MarkFlagsMutuallyExclusive("claim", "claims-file")
	verifyCmd.MarkFlagsOneRequired("claim", "claims-file")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	if verifierService == nil {
		return errors.New("verifier service not configured")
	}

	if verifyClaimsFile != "" {
		return runVerifyFile(cmd)
	}

	v, err := verifierService.Verify(cmd.Context(), domain.ClaimInput{
		RunID:     verifyRunID,
		QueryText: verifyQuery,
		Text:      verifyClaim,
		CitedIDs:  verifyCites,
	})
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	if verifyJSON {
		return printJSON(cmd, toVerificationJSON(v))
	}
	printVerification(cmd, v)
	return nil
}

func runVerifyFile(cmd *cobra.Command) error {
	data, err := os.ReadFile(verifyClaimsFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", verifyClaimsFile, err)
	}
	var claims []domain.ClaimInput
	if err := json.Unmarshal(data, &claims); err != nil {
		return fmt.Errorf("parsing %s: %w", verifyClaimsFile, err)
	}
	for i := range claims {
		if claims[i].QueryText == "" {
			claims[i].QueryText = verifyQuery
		}
	}

	run, err := verifierService.VerifyRun(cmd.Context(), verifyRunID, claims)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	if verifyJSON {
		out := runJSON{RunID: run.RunID, Decision: run.Decision}
		for i := range run.Claims {
			out.Claims = append(out.Claims, toVerificationJSON(&run.Claims[i]))
		}
		return printJSON(cmd, out)
	}

	cmd.Printf("Run %s: %s\n\n", run.RunID, run.Decision)
	for i := range run.Claims {
		printVerification(cmd, &run.Claims[i])
		cmd.Println()
	}
	return nil
}

// verificationJSON is the JSON shape of one verified claim.
type verificationJSON struct {
	RunID     string          `json:"run_id"`
	Claim     string          `json:"claim"`
	Score     float64         `json:"score"`
	Decision  domain.Decision `json:"decision"`
	Citations []citationJSON  `json:"citations"`
}

type citationJSON struct {
	ID            string          `json:"id"`
	ChunkID       string          `json:"chunk_id"`
	Score         float64         `json:"score"`
	Decision      domain.Decision `json:"decision"`
	ContextWindow []string        `json:"context_window,omitempty"`
}

type runJSON struct {
	RunID    string             `json:"run_id"`
	Decision domain.Decision    `json:"decision"`
	Claims   []verificationJSON `json:"claims"`
}

func toVerificationJSON(v *domain.Verification) verificationJSON {
	out := verificationJSON{
		RunID:     v.Claim.RunID,
		Claim:     v.Claim.Text,
		Score:     v.Score,
		Decision:  v.Decision,
		Citations: make([]citationJSON, 0, len(v.Citations)),
	}
	for _, c := range v.Citations {
		out.Citations = append(out.Citations, citationJSON{
			ID:            c.ID,
			ChunkID:       c.ChunkID,
			Score:         c.SimilarityScore,
			Decision:      c.Decision,
			ContextWindow: c.ContextWindow,
		})
	}
	return out
}

func printVerification(cmd *cobra.Command, v *domain.Verification) {
	cmd.Printf("Claim: %s\n", v.Claim.Text)
	cmd.Printf("  Decision: %s (%.3f)\n", v.Decision, v.Score)
	if v.Claim.RunID != "" {
		cmd.Printf("  Run: %s\n", v.Claim.RunID)
	}
	for _, c := range v.Citations {
		cmd.Printf("  - %s %s (%.3f)\n", c.ChunkID, c.Decision, c.SimilarityScore)
	}
}
