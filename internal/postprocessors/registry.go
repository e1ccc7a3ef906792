// Package postprocessors builds the text processors used during ingestion.
package postprocessors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ChunkerRegistry = (*Registry)(nil)

// BuilderFunc creates a Chunker configured with default params.
type BuilderFunc func(defaults domain.ChunkingParams) (driven.Chunker, error)

// Registry maps chunking strategy names to their builders.
// Chunkers are built once per strategy and reused.
type Registry struct {
	mu       sync.Mutex
	defaults domain.ChunkingParams
	builders map[string]BuilderFunc
	built    map[string]driven.Chunker
}

// NewRegistry creates an empty registry. defaults seeds every built chunker.
func NewRegistry(defaults domain.ChunkingParams) *Registry {
	return &Registry{
		defaults: defaults,
		builders: make(map[string]BuilderFunc),
		built:    make(map[string]driven.Chunker),
	}
}

// Register adds a builder for strategy, replacing any previous one.
func (r *Registry) Register(strategy string, builder BuilderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[strategy] = builder
	delete(r.built, strategy)
}

// Chunker returns the chunker for strategy. An empty strategy selects the
// fixed token window strategy.
func (r *Registry) Chunker(strategy string) (driven.Chunker, error) {
	if strategy == "" {
		strategy = domain.ChunkingStrategyFixedTokens
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.built[strategy]; ok {
		return c, nil
	}
	builder, ok := r.builders[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", domain.ErrInvalidChunkingParams, strategy)
	}
	c, err := builder(r.defaults)
	if err != nil {
		return nil, fmt.Errorf("building chunker %s: %w", strategy, err)
	}
	r.built[strategy] = c
	return c, nil
}

// Has returns true if a builder is registered for strategy.
func (r *Registry) Has(strategy string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.builders[strategy]
	return ok
}

// Names returns the registered strategies in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
