package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/core/domain"
)

var settingsModel string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the embedding provider, fusion weights and verifier
thresholds. Settings are stored in the config file given by --config.`,
	Annotations: map[string]string{bootstrapAnnotation: bootstrapSettings},
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding [provider]",
	Short: "Configure embedding provider",
	Long: `Configure the embedding provider for semantic search.

Without a provider argument a menu is shown. An empty model selects the
provider's default model. Changing the model changes embedding dimensions;
run 'greds work reindex' afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSettingsEmbedding,
}

var settingsWeightsCmd = &cobra.Command{
	Use:   "weights [semantic] [lexical]",
	Short: "Set the fusion weights",
	Long: `Set the semantic and lexical weights used to fuse search rankings.
Weights must be non-negative. Arguments starting with "-" are read as
flags unless they follow "--":

  greds settings weights -- -1 0.6`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsWeights,
}

var settingsThresholdsCmd = &cobra.Command{
	Use:   "thresholds [pass] [partial]",
	Short: "Set the verifier thresholds",
	Long:  `Set the verifier decision boundaries. Both must be in [0, 1] and partial must not exceed pass.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsThresholds,
}

func init() {
	settingsEmbeddingCmd.Flags().StringVar(&settingsModel, "model", "", "embedding model (default: provider default)")
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsWeightsCmd)
	settingsCmd.AddCommand(settingsThresholdsCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Printf("File: %s\n", settingsService.Path())
	cmd.Println()

	// Embedding settings
	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.ResolvedDimensions())
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := "configured"
	if !settings.Embedding.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	// Retrieval settings
	cmd.Println("[Retrieval]")
	cmd.Printf("  Weights: semantic %.2f, lexical %.2f\n",
		settings.Retrieval.SemanticWeight, settings.Retrieval.LexicalWeight)
	cmd.Printf("  Top K: %d (x%d candidates)\n",
		settings.Retrieval.TopK, settings.Retrieval.CandidateMultiplier)
	cmd.Println()

	// Chunking settings
	cmd.Println("[Chunking]")
	cmd.Printf("  Size: %d tokens, overlap %.2f\n", settings.Chunking.Size, settings.Chunking.OverlapRatio)
	cmd.Println()

	// Verifier settings
	cmd.Println("[Verifier]")
	cmd.Printf("  Pass: %.2f\n", settings.Verifier.Pass)
	cmd.Printf("  Partial: %.2f\n", settings.Verifier.Partial)
	cmd.Println()

	// Storage settings
	cmd.Println("[Storage]")
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend)
	cmd.Printf("  Audit: %s\n", settings.Audit.Sink)
	cmd.Println()

	if err := settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	var provider domain.AIProvider
	if len(args) == 1 {
		provider = domain.AIProvider(args[0])
	} else {
		provider = selectEmbeddingProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
	}

	if err := settingsService.SetEmbeddingProvider(provider, settingsModel); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	cmd.Printf("Embedding provider configured: %s (%s, %d dimensions)\n",
		provider.Description(), settings.Embedding.Model, settings.Embedding.ResolvedDimensions())
	if provider.RequiresAPIKey() && settings.Embedding.APIKey == "" {
		cmd.Println("Note: set OPENAI_API_KEY in the environment or a .env file.")
	}
	return nil
}

func selectEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) domain.AIProvider {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	return providers[idx-1]
}

func runSettingsWeights(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	semantic, lexical, err := parseFloatPair(args)
	if err != nil {
		return err
	}
	if err := settingsService.SetWeights(semantic, lexical); err != nil {
		return fmt.Errorf("failed to set weights: %w", err)
	}

	cmd.Printf("Fusion weights set: semantic %.2f, lexical %.2f\n", semantic, lexical)
	return nil
}

func runSettingsThresholds(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	pass, partial, err := parseFloatPair(args)
	if err != nil {
		return err
	}
	if err := settingsService.SetThresholds(pass, partial); err != nil {
		return fmt.Errorf("failed to set thresholds: %w", err)
	}

	cmd.Printf("Verifier thresholds set: pass %.2f, partial %.2f\n", pass, partial)
	return nil
}

// Helper functions.

func parseFloatPair(args []string) (float64, float64, error) {
	a, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", args[0])
	}
	b, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", args[1])
	}
	return a, b, nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
