package driving

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// SearchService provides hybrid retrieval to external actors.
type SearchService interface {
	// Search fuses semantic and lexical rankings and returns at most q.K retrieval IDs.
	// A query with text but no vector is embedded when an embedder is configured.
	Search(ctx context.Context, q domain.Query) ([]domain.RetrievalID, error)

	// SearchScored is Search with per-result fused and normalised scores.
	SearchScored(ctx context.Context, q domain.Query) ([]domain.ScoredResult, error)

	// SearchText runs a hybrid search for text, hydrating chunk text.
	SearchText(ctx context.Context, text string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
