package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/greds/internal/core/domain"
)

const defaultSearchLimit = 10

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query          string   `json:"query" jsonschema:"the search query to find chunks"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty" jsonschema:"override the semantic fusion weight"`
	LexicalWeight  *float64 `json:"lexical_weight,omitempty" jsonschema:"override the lexical fusion weight"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	Semantic   float64  `json:"semantic"`
	Lexical    float64  `json:"lexical"`
	Text       string   `json:"text"`
	Highlights []string `json:"highlights,omitempty"`
}

// ClaimInput is one claim of a model output and the retrieval IDs it cites.
type ClaimInput struct {
	Text     string   `json:"text" jsonschema:"the claim text"`
	CitedIDs []string `json:"cited_ids" jsonschema:"retrieval IDs (slug:version:index) the claim cites"`
}

// VerifyInput is the input schema for the verify tool.
type VerifyInput struct {
	RunID  string       `json:"run_id,omitempty" jsonschema:"run grouping the citations (default generated)"`
	Query  string       `json:"query,omitempty" jsonschema:"the user query the claims answer"`
	Claims []ClaimInput `json:"claims" jsonschema:"claims to verify"`
}

// VerifyOutput is the output schema for the verify tool.
type VerifyOutput struct {
	RunID    string                `json:"run_id"`
	Decision domain.Decision       `json:"decision"`
	Claims   []ClaimVerifiedOutput `json:"claims"`
}

// ClaimVerifiedOutput is the verification of one claim.
type ClaimVerifiedOutput struct {
	Text      string           `json:"text"`
	Score     float64          `json:"score"`
	Decision  domain.Decision  `json:"decision"`
	Citations []CitationOutput `json:"citations"`
}

// CitationOutput is one recorded claim to chunk link.
type CitationOutput struct {
	ID       string          `json:"id"`
	ChunkID  string          `json:"chunk_id"`
	Score    float64         `json:"score"`
	Decision domain.Decision `json:"decision"`
}

// SessionUpdateInput is the input schema for the session_update tool.
type SessionUpdateInput struct {
	SessionID string       `json:"session_id" jsonschema:"the session to update"`
	UserID    string       `json:"user_id,omitempty" jsonschema:"owning user, set when the session is created"`
	Summary   string       `json:"summary,omitempty" jsonschema:"replacement condensed summary"`
	Query     string       `json:"query,omitempty" jsonschema:"the user query the claims answer"`
	Claims    []ClaimInput `json:"claims,omitempty" jsonschema:"claims to verify and accept"`
}

// SessionUpdateOutput is the output schema for the session_update tool.
type SessionUpdateOutput struct {
	SessionID    string   `json:"session_id"`
	Accepted     int      `json:"accepted"`
	Rejected     []string `json:"rejected,omitempty"`
	ClaimCount   int      `json:"claim_count"`
	TopCitations []string `json:"top_citations"`
}

// CheckpointInput is the input schema for the checkpoint tool.
type CheckpointInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to freeze"`
	Name      string `json:"name,omitempty" jsonschema:"checkpoint label"`
}

// CheckpointOutput is the output schema for the checkpoint tool.
type CheckpointOutput struct {
	CheckpointID string `json:"checkpoint_id"`
}

// RehydrateInput is the input schema for the rehydrate tool.
type RehydrateInput struct {
	CheckpointID string `json:"checkpoint_id" jsonschema:"the checkpoint to rehydrate"`
}

// RehydrateOutput is the minimal context stored in a checkpoint.
type RehydrateOutput struct {
	CheckpointID       string   `json:"checkpoint_id"`
	CondensedSummary   string   `json:"condensed_summary"`
	TopShortSummaries  []string `json:"top_short_summaries"`
	SupportingChunkIDs []string `json:"supporting_chunk_ids"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid semantic and lexical search across ingested chunks",
	}, s.handleSearch)

	if s.ports.Verifier != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "verify",
			Description: "Verify claims against the chunks they cite and record citations",
		}, s.handleVerify)
	}

	if s.ports.Session != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "session_update",
			Description: "Merge a summary and verified claims into a live session",
		}, s.handleSessionUpdate)
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "checkpoint",
			Description: "Freeze a live session into a checkpoint",
		}, s.handleCheckpoint)
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "rehydrate",
			Description: "Return the minimal context stored in a checkpoint",
		}, s.handleRehydrate)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	opts := domain.SearchOptions{
		Limit:          limit,
		SemanticWeight: input.SemanticWeight,
		LexicalWeight:  input.LexicalWeight,
	}
	results, err := s.ports.Search.SearchText(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}

	for i := range results {
		output.Results[i] = SearchResultOutput{
			ID:         results[i].Chunk.ID,
			Score:      results[i].Score,
			Semantic:   results[i].Semantic,
			Lexical:    results[i].Lexical,
			Text:       results[i].Chunk.Text,
			Highlights: results[i].Highlights,
		}
	}

	return nil, output, nil
}

// handleVerify verifies every claim as one run.
func (s *Server) handleVerify(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input VerifyInput,
) (*mcp.CallToolResult, VerifyOutput, error) {
	if s.ports.Verifier == nil {
		return nil, VerifyOutput{}, ErrMissingVerifierService
	}

	run, err := s.ports.Verifier.VerifyRun(ctx, input.RunID, toClaimInputs(input.Query, input.Claims))
	if err != nil {
		return nil, VerifyOutput{}, err
	}

	output := VerifyOutput{
		RunID:    run.RunID,
		Decision: run.Decision,
		Claims:   make([]ClaimVerifiedOutput, len(run.Claims)),
	}
	for i := range run.Claims {
		output.Claims[i] = toClaimVerifiedOutput(&run.Claims[i])
	}

	return nil, output, nil
}

// handleSessionUpdate verifies the given claims and merges the accepted ones.
// A failed claim is reported back and left out of the session.
func (s *Server) handleSessionUpdate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionUpdateInput,
) (*mcp.CallToolResult, SessionUpdateOutput, error) {
	update := domain.SessionUpdate{
		UserID:  input.UserID,
		Summary: input.Summary,
	}

	var rejected []string
	if len(input.Claims) > 0 {
		if s.ports.Verifier == nil {
			return nil, SessionUpdateOutput{}, ErrMissingVerifierService
		}
		for _, claim := range toClaimInputs(input.Query, input.Claims) {
			v, err := s.ports.Verifier.Verify(ctx, claim)
			if err != nil {
				return nil, SessionUpdateOutput{}, err
			}
			if v.Decision == domain.DecisionFail {
				rejected = append(rejected, claim.Text)
				continue
			}
			update.Claims = append(update.Claims, v.AcceptedClaim())
			update.Citations = append(update.Citations, v.Citations...)
		}
	}

	sess, err := s.ports.Session.Update(ctx, input.SessionID, update)
	if err != nil {
		return nil, SessionUpdateOutput{}, err
	}

	output := SessionUpdateOutput{
		SessionID:    sess.SessionID,
		Accepted:     len(update.Claims),
		Rejected:     rejected,
		ClaimCount:   len(sess.AcceptedClaims),
		TopCitations: make([]string, 0, len(sess.TopCitations)),
	}
	for _, c := range sess.TopCitations {
		output.TopCitations = append(output.TopCitations, c.ChunkID)
	}

	return nil, output, nil
}

// handleCheckpoint handles the checkpoint tool invocation.
func (s *Server) handleCheckpoint(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CheckpointInput,
) (*mcp.CallToolResult, CheckpointOutput, error) {
	id, err := s.ports.Session.Checkpoint(ctx, input.SessionID, input.Name)
	if err != nil {
		return nil, CheckpointOutput{}, err
	}
	return nil, CheckpointOutput{CheckpointID: id}, nil
}

// handleRehydrate handles the rehydrate tool invocation.
func (s *Server) handleRehydrate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RehydrateInput,
) (*mcp.CallToolResult, RehydrateOutput, error) {
	r, err := s.ports.Session.Rehydrate(ctx, input.CheckpointID)
	if err != nil {
		return nil, RehydrateOutput{}, err
	}
	return nil, RehydrateOutput{
		CheckpointID:       r.CheckpointID,
		CondensedSummary:   r.CondensedSummary,
		TopShortSummaries:  nonNil(r.TopShortSummaries),
		SupportingChunkIDs: nonNil(r.SupportingChunkIDs),
	}, nil
}

func toClaimInputs(query string, claims []ClaimInput) []domain.ClaimInput {
	out := make([]domain.ClaimInput, len(claims))
	for i, c := range claims {
		out[i] = domain.ClaimInput{
			QueryText: query,
			Text:      c.Text,
			CitedIDs:  c.CitedIDs,
		}
	}
	return out
}

func toClaimVerifiedOutput(v *domain.Verification) ClaimVerifiedOutput {
	out := ClaimVerifiedOutput{
		Text:      v.Claim.Text,
		Score:     v.Score,
		Decision:  v.Decision,
		Citations: make([]CitationOutput, len(v.Citations)),
	}
	for i, c := range v.Citations {
		out.Citations[i] = CitationOutput{
			ID:       c.ID,
			ChunkID:  c.ChunkID,
			Score:    c.SimilarityScore,
			Decision: c.Decision,
		}
	}
	return out
}

// nonNil keeps empty lists as [] in the JSON output schema.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
