package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/core/domain"
)

var (
	searchLimit          int
	searchSemanticWeight float64
	searchLexicalWeight  float64
	searchJSON           bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Performs hybrid search across all indexed chunks.
Fuses keyword (BM25) and semantic (vector) rankings. Each side is min-max
normalised before the weights are applied, so only their ratio matters.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchSemanticWeight, "semantic-weight", 0, "override the semantic weight")
	searchCmd.Flags().Float64Var(&searchLexicalWeight, "lexical-weight", 0, "override the lexical weight")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Limit: searchLimit,
	}
	if cmd.Flags().Changed("semantic-weight") {
		opts.SemanticWeight = &searchSemanticWeight
	}
	if cmd.Flags().Changed("lexical-weight") {
		opts.LexicalWeight = &searchLexicalWeight
	}

	results, err := searchService.SearchText(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

// searchResultJSON is the JSON shape of one search result.
type searchResultJSON struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	Semantic   float64  `json:"semantic"`
	Lexical    float64  `json:"lexical"`
	Text       string   `json:"text"`
	Highlights []string `json:"highlights,omitempty"`
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	out := make([]searchResultJSON, 0, len(results))
	for i := range results {
		out = append(out, searchResultJSON{
			ID:         results[i].Chunk.ID,
			Score:      results[i].Score,
			Semantic:   results[i].Semantic,
			Lexical:    results[i].Lexical,
			Text:       results[i].Chunk.Text,
			Highlights: results[i].Highlights,
		})
	}
	return printJSON(cmd, out)
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		// Format: [N] slug:version:index (fused; semantic/lexical)
		cmd.Printf("  [%d] %s (%.2f; sem %.2f, lex %.2f)\n", i+1,
			results[i].Chunk.ID, results[i].Score, results[i].Semantic, results[i].Lexical)

		snippet := ""
		if len(results[i].Highlights) > 0 {
			snippet = results[i].Highlights[0]
		}
		if snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}

	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
