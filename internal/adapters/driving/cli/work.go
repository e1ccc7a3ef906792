package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var workJSON bool

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Manage ingested works",
}

var workListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested works",
	Args:  cobra.NoArgs,
	RunE:  runWorkList,
}

var workDeleteCmd = &cobra.Command{
	Use:   "delete [slug] [version]",
	Short: "Delete a work and its chunks",
	Long:  `Deletes a work with its chunks, embeddings and summaries, and removes the chunks from both indexes. A work with cited chunks cannot be deleted.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkDelete,
}

var workReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild both indexes from stored chunks",
	Args:  cobra.NoArgs,
	RunE:  runWorkReindex,
}

func init() {
	workListCmd.Flags().BoolVar(&workJSON, "json", false, "output as JSON")
	workCmd.AddCommand(workListCmd)
	workCmd.AddCommand(workDeleteCmd)
	workCmd.AddCommand(workReindexCmd)
	rootCmd.AddCommand(workCmd)
}

func runWorkList(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	works, err := ingestService.ListWorks(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list works: %w", err)
	}

	if workJSON {
		return printJSON(cmd, works)
	}

	if len(works) == 0 {
		cmd.Println("No works ingested.")
		return nil
	}
	for i := range works {
		title := works[i].Title
		if title == "" {
			title = "-"
		}
		cmd.Printf("%s:%s  %-10s  %4d chunks  %s\n",
			works[i].Slug, works[i].Version, works[i].Status, works[i].TotalChunks, title)
	}
	return nil
}

func runWorkDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	if err := ingestService.DeleteWork(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to delete work: %w", err)
	}

	cmd.Printf("Deleted %s:%s\n", args[0], args[1])
	return nil
}

func runWorkReindex(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	n, err := ingestService.Reindex(cmd.Context())
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	cmd.Printf("Reindexed %d chunks\n", n)
	return nil
}
