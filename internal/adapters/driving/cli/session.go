package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/core/domain"
)

var (
	sessionSummary    string
	sessionUser       string
	sessionClaim      string
	sessionCites      []string
	sessionQuery      string
	sessionName       string
	sessionParent     string
	sessionReparent   bool
	sessionOutputJSON bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions and checkpoints",
	Long: `A session accumulates accepted claims, a condensed summary and a bounded set
of top citations. Checkpoints freeze a session and link to the previous
checkpoint, forming a chain that can be rehydrated into a minimal context.`,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show the live session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionUpdateCmd = &cobra.Command{
	Use:   "update [session-id]",
	Short: "Merge a summary or an accepted claim into a session",
	Long: `Updates the live session, creating it on first use.

With --claim the claim is verified against its --cite IDs first. Only a claim
that passes or partially passes is accepted; its citations are merged into the
session's top citations.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionUpdate,
}

var sessionCheckpointCmd = &cobra.Command{
	Use:   "checkpoint [session-id]",
	Short: "Freeze the live session into a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionCheckpoint,
}

var sessionRehydrateCmd = &cobra.Command{
	Use:   "rehydrate [checkpoint-id]",
	Short: "Print the minimal context stored in a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRehydrate,
}

var sessionAncestryCmd = &cobra.Command{
	Use:   "ancestry [checkpoint-id]",
	Short: "List a checkpoint and its ancestors",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionAncestry,
}

var sessionReparentCmd = &cobra.Command{
	Use:   "reparent [checkpoint-id]",
	Short: "Move a checkpoint under a new parent",
	Long:  `Moves a checkpoint under --parent, or makes it a root without one. Moving a checkpoint under itself or one of its descendants fails.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionReparent,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete [checkpoint-id]",
	Short: "Delete a checkpoint",
	Long:  `Deletes a checkpoint. A checkpoint with children is only deleted with --reparent-children, which moves them to its parent.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

func init() {
	sessionShowCmd.Flags().BoolVar(&sessionOutputJSON, "json", false, "output as JSON")

	sessionUpdateCmd.Flags().StringVar(&sessionSummary, "summary", "", "replace the condensed summary")
	sessionUpdateCmd.Flags().StringVar(&sessionUser, "user", "", "owning user, set when the session is created")
	sessionUpdateCmd.Flags().StringVar(&sessionClaim, "claim", "", "claim to verify and accept")
	sessionUpdateCmd.Flags().StringSliceVar(&sessionCites, "cite", nil, "retrieval ID cited by --claim (repeatable)")
	sessionUpdateCmd.Flags().StringVar(&sessionQuery, "query", "", "user query --claim answers")

	sessionCheckpointCmd.Flags().StringVar(&sessionName, "name", "", "checkpoint label")

	sessionRehydrateCmd.Flags().BoolVar(&sessionOutputJSON, "json", false, "output as JSON")

	sessionReparentCmd.Flags().StringVar(&sessionParent, "parent", "", "new parent checkpoint (empty makes a root)")

	sessionDeleteCmd.Flags().BoolVar(&sessionReparent, "reparent-children", false, "move children to the deleted checkpoint's parent")

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionUpdateCmd)
	sessionCmd.AddCommand(sessionCheckpointCmd)
	sessionCmd.AddCommand(sessionRehydrateCmd)
	sessionCmd.AddCommand(sessionAncestryCmd)
	sessionCmd.AddCommand(sessionReparentCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	sess, err := sessionService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if sessionOutputJSON {
		return printJSON(cmd, sess)
	}
	printSession(cmd, sess)
	return nil
}

func runSessionUpdate(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	update := domain.SessionUpdate{
		UserID:  sessionUser,
		Summary: sessionSummary,
	}

	if sessionClaim != "" {
		if verifierService == nil {
			return errors.New("verifier service not configured")
		}
		v, err := verifierService.Verify(cmd.Context(), domain.ClaimInput{
			QueryText: sessionQuery,
			Text:      sessionClaim,
			CitedIDs:  sessionCites,
		})
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}
		if v.Decision == domain.DecisionFail {
			return fmt.Errorf("claim not accepted: verification failed (%.3f)", v.Score)
		}
		update.Claims = []domain.Claim{v.AcceptedClaim()}
		update.Citations = v.Citations
	}

	sess, err := sessionService.Update(cmd.Context(), args[0], update)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	cmd.Printf("Updated session %s (%d claims, %d top citations)\n",
		sess.SessionID, len(sess.AcceptedClaims), len(sess.TopCitations))
	return nil
}

func runSessionCheckpoint(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	id, err := sessionService.Checkpoint(cmd.Context(), args[0], sessionName)
	if err != nil {
		return fmt.Errorf("failed to checkpoint session: %w", err)
	}

	cmd.Printf("Checkpoint: %s\n", id)
	return nil
}

func runSessionRehydrate(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	r, err := sessionService.Rehydrate(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to rehydrate checkpoint: %w", err)
	}

	if sessionOutputJSON {
		return printJSON(cmd, r)
	}

	cmd.Printf("Checkpoint: %s\n", r.CheckpointID)
	cmd.Printf("Summary: %s\n", r.CondensedSummary)
	if len(r.SupportingChunkIDs) > 0 {
		cmd.Println()
		cmd.Println("Supporting chunks:")
		for _, id := range r.SupportingChunkIDs {
			cmd.Printf("  - %s\n", id)
		}
	}
	if len(r.TopShortSummaries) > 0 {
		cmd.Println()
		cmd.Println("Short summaries:")
		for _, summary := range r.TopShortSummaries {
			cmd.Printf("  - %s\n", summary)
		}
	}
	return nil
}

func runSessionAncestry(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	chain, err := sessionService.Ancestry(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to walk ancestry: %w", err)
	}

	for i := range chain {
		name := chain[i].CheckpointName
		if name == "" {
			name = "-"
		}
		cmd.Printf("%s  %s  %s\n", chain[i].ID, chain[i].CreatedAt.Format("2006-01-02 15:04:05"), name)
	}
	return nil
}

func runSessionReparent(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	if err := sessionService.Reparent(cmd.Context(), args[0], sessionParent); err != nil {
		return fmt.Errorf("failed to reparent checkpoint: %w", err)
	}

	if sessionParent == "" {
		cmd.Printf("Checkpoint %s is now a root\n", args[0])
	} else {
		cmd.Printf("Checkpoint %s moved under %s\n", args[0], sessionParent)
	}
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	if err := sessionService.DeleteCheckpoint(cmd.Context(), args[0], sessionReparent); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	cmd.Printf("Deleted checkpoint %s\n", args[0])
	return nil
}

func printSession(cmd *cobra.Command, sess *domain.Session) {
	cmd.Printf("Session: %s\n", sess.SessionID)
	if sess.UserID != "" {
		cmd.Printf("  User: %s\n", sess.UserID)
	}
	if sess.LastCheckpointID != "" {
		cmd.Printf("  Last checkpoint: %s\n", sess.LastCheckpointID)
	}
	cmd.Printf("  Summary: %s\n", sess.CondensedSummary)
	cmd.Printf("  Accepted claims: %d\n", len(sess.AcceptedClaims))
	for _, c := range sess.AcceptedClaims {
		cmd.Printf("    - [%s] %s\n", c.Decision, c.Text)
	}
	cmd.Printf("  Top citations: %d\n", len(sess.TopCitations))
	for _, c := range sess.TopCitations {
		cmd.Printf("    - %s (%.3f)\n", c.ChunkID, c.SimilarityScore)
	}
}
