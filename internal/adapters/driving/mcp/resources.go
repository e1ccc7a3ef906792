package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/greds/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for greds resources.
	uriScheme = "greds://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Ingest != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "works",
			Name:        "works",
			Description: "List of all ingested works",
			MIMEType:    "application/json",
		}, s.handleWorksResource)

		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "chunks/{retrievalId}",
			Name:        "chunk",
			Description: "Text of one chunk, addressed by slug:version:index",
			MIMEType:    "text/plain",
		}, s.handleChunkResource)
	}

	if s.ports.Session != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "checkpoints/{checkpointId}/ancestry",
			Name:        "checkpoint-ancestry",
			Description: "A checkpoint followed by its ancestors, nearest first",
			MIMEType:    "application/json",
		}, s.handleAncestryResource)
	}
}

// workOutput is the JSON shape of one listed work.
type workOutput struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Version     string            `json:"version"`
	Title       string            `json:"title,omitempty"`
	URL         string            `json:"url,omitempty"`
	Status      domain.WorkStatus `json:"status"`
	TotalChunks int               `json:"total_chunks"`
}

// ancestryEntry is the JSON shape of one checkpoint in an ancestry chain.
type ancestryEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

// handleWorksResource returns a list of all ingested works.
func (s *Server) handleWorksResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	works, err := s.ports.Ingest.ListWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing works: %w", err)
	}

	out := make([]workOutput, len(works))
	for i := range works {
		out[i] = workOutput{
			ID:          works[i].ID,
			Slug:        works[i].Slug,
			Version:     works[i].Version,
			Title:       works[i].Title,
			URL:         works[i].CanonicalURL,
			Status:      works[i].Status,
			TotalChunks: works[i].TotalChunks,
		}
	}

	return jsonResult(req.Params.URI, out)
}

// handleChunkResource returns the text of one chunk.
func (s *Server) handleChunkResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract retrievalId from URI: greds://chunks/{retrievalId}
	id := extractChunkID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	chunk, err := s.ports.Ingest.GetChunk(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrMalformedRetrievalID) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("getting chunk: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     chunk.Text,
		}},
	}, nil
}

// handleAncestryResource returns a checkpoint's ancestry chain.
func (s *Server) handleAncestryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id := extractCheckpointID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	chain, err := s.ports.Session.Ancestry(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrCheckpointNotFound) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("walking ancestry: %w", err)
	}

	out := make([]ancestryEntry, len(chain))
	for i := range chain {
		out[i] = ancestryEntry{
			ID:        chain[i].ID,
			Name:      chain[i].CheckpointName,
			ParentID:  chain[i].ParentCheckpointID,
			Summary:   chain[i].CondensedSummary,
			CreatedAt: chain[i].CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	return jsonResult(req.Params.URI, out)
}

// handleAuditResource returns the latest audit events, optionally of one type.
func (s *Server) handleAuditResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	eventType, ok := extractAuditType(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	events, err := s.ports.Audit.List(ctx, domain.AuditFilter{EventType: eventType})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}

	return jsonResult(req.Params.URI, events)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractChunkID extracts the retrieval ID from a URI like greds://chunks/{retrievalId}.
func extractChunkID(uri string) string {
	const prefix = uriScheme + "chunks/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}

// extractCheckpointID extracts the checkpoint ID from a URI like
// greds://checkpoints/{checkpointId}/ancestry.
func extractCheckpointID(uri string) string {
	const prefix = uriScheme + "checkpoints/"
	const suffix = "/ancestry"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	return strings.TrimSuffix(uri, suffix)
}

// extractAuditType extracts the event type from greds://audit or greds://audit/{eventType}.
// The bare listing yields an empty type.
func extractAuditType(uri string) (domain.AuditEventType, bool) {
	const base = uriScheme + "audit"

	if uri == base {
		return "", true
	}
	t, ok := strings.CutPrefix(uri, base+"/")
	if !ok || t == "" {
		return "", false
	}
	return domain.AuditEventType(t), true
}
