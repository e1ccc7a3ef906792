// Package lexical provides an in-memory BM25 inverted index over chunk text.
//
// Like the vector index, writers publish immutable snapshots atomically so
// searches never observe a half-applied update. Chunks are grouped by work,
// so an upsert copies only the work groups and posting lists it changes.
package lexical

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
	"github.com/custodia-labs/greds/internal/postprocessors/analyzer"
)

// Ensure Index implements the interface.
var _ driven.LexicalIndex = (*Index)(nil)

// Okapi BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// snapshot is an immutable view of the index. Chunks are grouped by work so
// a write copies only the groups it touches.
type snapshot struct {
	// works maps work key to the chunks of that work.
	works map[string]*workDocs
	// postings maps term to work key to chunk ID to term frequency.
	postings map[string]map[string]map[string]int
	docCount int
	totalLen int
}

// workDocs holds the indexed chunks of one work.
type workDocs struct {
	// tf maps chunk ID to its term frequencies.
	tf map[string]map[string]int
	// lengths maps chunk ID to its term count.
	lengths map[string]int
}

func emptySnapshot() *snapshot {
	return &snapshot{
		works:    make(map[string]*workDocs),
		postings: make(map[string]map[string]map[string]int),
	}
}

// workKeyOf groups a chunk ID of the form slug:version:index by its slug:version prefix.
func workKeyOf(chunkID string) string {
	if i := strings.LastIndexByte(chunkID, ':'); i >= 0 {
		return chunkID[:i]
	}
	return ""
}

// builder derives a new snapshot from a base. Only the top-level maps are
// copied up front; work groups and per-term lists are copied on first write.
type builder struct {
	next  *snapshot
	works map[string]bool
	terms map[string]bool
	lists map[termWork]bool
}

type termWork struct {
	term, work string
}

func newBuilder(base *snapshot) *builder {
	next := &snapshot{
		works:    maps.Clone(base.works),
		postings: maps.Clone(base.postings),
		docCount: base.docCount,
		totalLen: base.totalLen,
	}
	return &builder{
		next:  next,
		works: make(map[string]bool),
		terms: make(map[string]bool),
		lists: make(map[termWork]bool),
	}
}

// work returns a writable copy of the chunks of work key.
func (b *builder) work(key string) *workDocs {
	if b.works[key] {
		return b.next.works[key]
	}
	w := &workDocs{tf: make(map[string]map[string]int), lengths: make(map[string]int)}
	if old, ok := b.next.works[key]; ok {
		w.tf = maps.Clone(old.tf)
		w.lengths = maps.Clone(old.lengths)
	}
	b.next.works[key] = w
	b.works[key] = true
	return w
}

// posting returns a writable chunk to frequency list of term within work key.
func (b *builder) posting(term, key string) map[string]int {
	byWork := b.next.postings[term]
	if !b.terms[term] {
		byWork = maps.Clone(byWork)
		if byWork == nil {
			byWork = make(map[string]map[string]int)
		}
		b.next.postings[term] = byWork
		b.terms[term] = true
	}
	tk := termWork{term, key}
	if b.lists[tk] {
		return byWork[key]
	}
	p := maps.Clone(byWork[key])
	if p == nil {
		p = make(map[string]int)
	}
	byWork[key] = p
	b.lists[tk] = true
	return p
}

func (b *builder) remove(id string) bool {
	key := workKeyOf(id)
	old, ok := b.next.works[key]
	if !ok {
		return false
	}
	tf, ok := old.tf[id]
	if !ok {
		return false
	}
	for term := range tf {
		p := b.posting(term, key)
		delete(p, id)
		if len(p) > 0 {
			continue
		}
		byWork := b.next.postings[term]
		delete(byWork, key)
		delete(b.lists, termWork{term, key})
		if len(byWork) == 0 {
			delete(b.next.postings, term)
			delete(b.terms, term)
		}
	}

	w := b.work(key)
	b.next.totalLen -= w.lengths[id]
	b.next.docCount--
	delete(w.tf, id)
	delete(w.lengths, id)
	if len(w.tf) == 0 {
		delete(b.next.works, key)
		delete(b.works, key)
	}
	return true
}

func (b *builder) add(id, text string) {
	key := workKeyOf(id)
	tf := analyzer.TermFrequencies(text)
	length := 0
	for term, n := range tf {
		b.posting(term, key)[id] = n
		length += n
	}
	w := b.work(key)
	w.tf[id] = tf
	w.lengths[id] = length
	b.next.docCount++
	b.next.totalLen += length
}

// Index is an in-memory BM25 index.
type Index struct {
	k1     float64
	b      float64
	mu     sync.Mutex
	snap   atomic.Pointer[snapshot]
	closed atomic.Bool
}

// Option configures the index.
type Option func(*Index)

// WithBM25 overrides the k1 and b parameters.
func WithBM25(k1, b float64) Option {
	return func(i *Index) {
		if k1 > 0 {
			i.k1 = k1
		}
		if b >= 0 && b <= 1 {
			i.b = b
		}
	}
}

// New creates an empty index.
func New(opts ...Option) *Index {
	idx := &Index{k1: DefaultK1, b: DefaultB}
	for _, opt := range opts {
		opt(idx)
	}
	idx.snap.Store(emptySnapshot())
	return idx
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int {
	return i.snap.Load().docCount
}

// Upsert adds or replaces the text indexed for chunkID.
func (i *Index) Upsert(ctx context.Context, chunkID, text string) error {
	return i.UpsertBatch(ctx, []driven.LexicalEntry{{ChunkID: chunkID, Text: text}})
}

// UpsertBatch applies all entries in one snapshot change.
func (i *Index) UpsertBatch(ctx context.Context, entries []driven.LexicalEntry) error {
	if i.closed.Load() {
		return domain.ErrIndexUnavailable
	}
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	b := newBuilder(i.snap.Load())
	for _, e := range entries {
		b.remove(e.ChunkID)
		b.add(e.ChunkID, e.Text)
	}
	i.snap.Store(b.next)
	return nil
}

// Delete removes chunks. Unknown IDs are ignored.
func (i *Index) Delete(ctx context.Context, chunkIDs ...string) error {
	if i.closed.Load() {
		return domain.ErrIndexUnavailable
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	b := newBuilder(i.snap.Load())
	removed := false
	for _, id := range chunkIDs {
		if b.remove(id) {
			removed = true
		}
	}
	if removed {
		i.snap.Store(b.next)
	}
	return nil
}

// Search scores chunks sharing at least one term with query.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]driven.LexicalHit, error) {
	if i.closed.Load() {
		return nil, domain.ErrIndexUnavailable
	}

	snap := i.snap.Load()
	n := snap.docCount
	if limit <= 0 || n == 0 || snap.totalLen == 0 {
		return []driven.LexicalHit{}, nil
	}

	terms := uniqueTerms(query)
	avgLen := float64(snap.totalLen) / float64(n)
	scores := make(map[string]float64)

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		byWork := snap.postings[term]
		df := 0
		for _, posting := range byWork {
			df += len(posting)
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for key, posting := range byWork {
			lengths := snap.works[key].lengths
			for id, tf := range posting {
				f := float64(tf)
				norm := f + i.k1*(1-i.b+i.b*float64(lengths[id])/avgLen)
				scores[id] += idf * f * (i.k1 + 1) / norm
			}
		}
	}

	hits := make([]driven.LexicalHit, 0, len(scores))
	for id, score := range scores {
		if score > 0 {
			hits = append(hits, driven.LexicalHit{ChunkID: id, Score: score})
		}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ChunkID < hits[b].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Close marks the index unavailable and drops its postings.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed.Store(true)
	i.snap.Store(emptySnapshot())
	return nil
}

func uniqueTerms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range analyzer.Terms(text) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
