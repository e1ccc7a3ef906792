package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/core/domain"
)

var (
	ingestSlug      string
	ingestVersion   string
	ingestTitle     string
	ingestURL       string
	ingestFormat    string
	ingestAuthors   []string
	ingestTags      []string
	ingestChunkSize int
	ingestOverlap   float64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Chunk, embed and index a work",
	Long: `Reads the extracted text of a work and splits it into overlapping token
windows. Each chunk is summarised, embedded and added to both indexes.

Chunks are addressed as slug:version:index. A completed work is immutable;
ingest a new version to change its text.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSlug, "slug", "", "stable name of the work (required)")
	ingestCmd.Flags().StringVar(&ingestVersion, "version", "", "edition of the work (required)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "human-readable title")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "canonical URL of the work")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "raw file format (default: file extension)")
	ingestCmd.Flags().StringSliceVar(&ingestAuthors, "author", nil, "author of the work (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "free-form label (repeatable)")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "override chunk size in tokens")
	ingestCmd.Flags().Float64Var(&ingestOverlap, "overlap", 0, "override overlap ratio")
	_ = ingestCmd.MarkFlagRequired("slug")
	_ = ingestCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]

	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	format := ingestFormat
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	req := domain.IngestRequest{
		Work: domain.Work{
			Slug:         ingestSlug,
			Version:      ingestVersion,
			Title:        ingestTitle,
			CanonicalURL: ingestURL,
			FileFormat:   format,
			RawPath:      path,
			Authors:      ingestAuthors,
			Tags:         ingestTags,
		},
		Text: string(text),
	}
	if cmd.Flags().Changed("chunk-size") || cmd.Flags().Changed("overlap") {
		params := domain.DefaultChunkingParams()
		if cmd.Flags().Changed("chunk-size") {
			params.Size = ingestChunkSize
		}
		if cmd.Flags().Changed("overlap") {
			params.OverlapRatio = ingestOverlap
		}
		req.Params = &params
	}

	work, err := ingestService.Ingest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Ingested %s:%s (%d chunks)\n", work.Slug, work.Version, work.TotalChunks)
	return nil
}
