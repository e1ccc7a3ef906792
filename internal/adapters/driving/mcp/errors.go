package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrMissingVerifierService is returned when a tool needs the verifier and none is provided.
var ErrMissingVerifierService = errors.New("mcp: verifier service is required")
