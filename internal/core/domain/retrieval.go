package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const retrievalIDSeparator = ":"

// RetrievalID addresses one chunk of one version of a work.
// Its wire form is "slug:version:chunk_index".
type RetrievalID struct {
	Slug       string
	Version    string
	ChunkIndex int
}

// NewRetrievalID builds a RetrievalID, rejecting parts that cannot round-trip.
func NewRetrievalID(slug, version string, index int) (RetrievalID, error) {
	if err := validateIDPart("slug", slug); err != nil {
		return RetrievalID{}, fmt.Errorf("%w: %w", ErrMalformedRetrievalID, err)
	}
	if err := validateIDPart("version", version); err != nil {
		return RetrievalID{}, fmt.Errorf("%w: %w", ErrMalformedRetrievalID, err)
	}
	if index < 0 {
		return RetrievalID{}, fmt.Errorf("%w: negative chunk index %d", ErrMalformedRetrievalID, index)
	}
	return RetrievalID{Slug: slug, Version: version, ChunkIndex: index}, nil
}

// ParseRetrievalID parses "slug:version:chunk_index".
func ParseRetrievalID(s string) (RetrievalID, error) {
	parts := strings.Split(s, retrievalIDSeparator)
	if len(parts) != 3 {
		return RetrievalID{}, fmt.Errorf("%w: %q has %d parts, want 3", ErrMalformedRetrievalID, s, len(parts))
	}
	if parts[0] == "" || parts[1] == "" {
		return RetrievalID{}, fmt.Errorf("%w: %q has an empty slug or version", ErrMalformedRetrievalID, s)
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 0 || !isDigits(parts[2]) {
		return RetrievalID{}, fmt.Errorf("%w: %q has invalid chunk index", ErrMalformedRetrievalID, s)
	}
	return RetrievalID{Slug: parts[0], Version: parts[1], ChunkIndex: index}, nil
}

// String formats the ID as "slug:version:chunk_index".
func (r RetrievalID) String() string {
	return r.Slug + retrievalIDSeparator + r.Version + retrievalIDSeparator + strconv.Itoa(r.ChunkIndex)
}

// WorkKey returns "slug:version", the identity of the owning work.
func (r RetrievalID) WorkKey() string {
	return WorkKey(r.Slug, r.Version)
}

// Neighbour returns the ID of the chunk offset positions away in the same work.
// ok is false when the resulting index would be negative.
func (r RetrievalID) Neighbour(offset int) (RetrievalID, bool) {
	idx := r.ChunkIndex + offset
	if idx < 0 {
		return RetrievalID{}, false
	}
	return RetrievalID{Slug: r.Slug, Version: r.Version, ChunkIndex: idx}, true
}

// WorkKey returns the "slug:version" key of a work.
func WorkKey(slug, version string) string {
	return slug + retrievalIDSeparator + version
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
