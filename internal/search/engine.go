package search

import (
	"context"
	"fmt"
	"time"

	"github.com/opencode-dev/kernel/internal/embedder"
	"github.com/opencode-dev/kernel/internal/memindex"
)

// Store is the subset of *memindex.Store the query engine needs. Defined
// here (consumer side) so tests can fake it without a live database.
type Store interface {
	ListActive() ([]memindex.Memory, error)
	FTSSearch(query string, k int) ([]memindex.FTSHit, error)
	Neighbors(id int64, window int) ([]memindex.Memory, error)
	TrackAccess(id int64) error
	Trigger() *memindex.TriggerCache
}

// Engine wires the Memory Index (E) to the hybrid retrieval, fusion, and
// composite-scoring algorithms (spec §4.6) into one entry point, kept
// thin over the underlying store so both the CLI and the MCP tool
// surface can share it.
type Engine struct {
	store        Store
	embedder     embedder.Embedder
	halfLifeDays float64
	topK         int
	now          func() time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithHalfLife overrides the decay half-life (spec §4.6.5 default 30).
func WithHalfLife(days float64) Option {
	return func(e *Engine) { e.halfLifeDays = days }
}

// WithTopK overrides how many candidates each of the vector/FTS legs
// retrieves before fusion (default 50).
func WithTopK(k int) Option {
	return func(e *Engine) { e.topK = k }
}

// NewEngine constructs a query engine over store, embedding queries with
// emb (spec §7 EmbedUnavailable: callers may pass embedder.Unavailable{}
// to force FTS+trigger-only retrieval).
func NewEngine(store Store, emb embedder.Embedder, opts ...Option) *Engine {
	e := &Engine{store: store, embedder: emb, halfLifeDays: DefaultHalfLifeDays, topK: 50, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Query bundles a search request's parameters.
type Query struct {
	Prompt       string
	Filter       *Filter
	TokenBudget  int  // 0 means no truncation
	Contiguity   bool // apply the §4.6.7 boost
	ContiguityN  int  // top-n results to boost from; 0 boosts from every result
}

// Result is everything a caller needs to render or page through a
// completed search (spec §4.6.1-§4.6.7 composed end to end).
type Result struct {
	Results    []Scored
	Truncation TruncationSummary
}

// Search runs the full hybrid pipeline: vector search (degrading to
// FTS+trigger-only when the embedder is unavailable, spec §7), FTS5
// search, trigger matching, RRF fusion, composite scoring, optional
// contiguity boosting, filtering, and token-budget truncation.
func (e *Engine) Search(ctx context.Context, q Query) (Result, error) {
	active, err := e.store.ListActive()
	if err != nil {
		return Result{}, fmt.Errorf("search: list active memories: %w", err)
	}

	meta := make(map[int64]memindex.Memory, len(active))
	indexed := make(map[int64][]float32, len(active))
	for _, m := range active {
		meta[m.ID] = m
		if len(m.Embedding) > 0 {
			indexed[m.ID] = m.Embedding
		}
	}

	var vectorCandidates []Candidate
	if q.Prompt != "" {
		qVec, embErr := e.embedder.Embed(ctx, q.Prompt)
		if embErr == nil {
			vectorCandidates = VectorSearch(qVec, indexed, e.topK)
		}
		// embedder.ErrUnavailable (or any embed error) degrades to
		// FTS+trigger-only retrieval per spec §7 EmbedUnavailable.
	}

	var ftsCandidates []Candidate
	if q.Prompt != "" {
		hits, ftsErr := e.store.FTSSearch(ftsQuery(q.Prompt), e.topK)
		if ftsErr == nil {
			for _, h := range hits {
				ftsCandidates = append(ftsCandidates, Candidate{
					MemoryID: h.MemoryID,
					FTSRank:  h.Rank,
					FTSBM25:  h.BM25,
					Snippet:  h.Snippet,
				})
			}
		}
	}

	merged := MergeCandidatesByID(vectorCandidates, ftsCandidates)
	fused := FuseRankedLists(merged, DefaultVectorWeight, DefaultFTSWeight)

	triggerCounts := map[int64]int{}
	if q.Prompt != "" && e.store.Trigger() != nil {
		for _, tm := range e.store.Trigger().Match(q.Prompt) {
			triggerCounts[tm.MemoryID]++
		}
	}
	// Trigger-only hits (no vector/FTS signal) still enter the candidate
	// set: a memory can be surfaced by trigger phrase alone.
	present := make(map[int64]bool, len(fused))
	for _, c := range fused {
		present[c.MemoryID] = true
	}
	for id := range triggerCounts {
		if !present[id] {
			fused = append(fused, Candidate{MemoryID: id})
			present[id] = true
		}
	}

	full := hydrate(fused, meta, triggerCounts)
	scored := RankByComposite(full, e.now(), e.halfLifeDays)

	if q.Filter != nil {
		scored = filterScored(scored, *q.Filter)
	}

	if q.Contiguity {
		n := q.ContiguityN
		if n <= 0 {
			n = len(scored)
		}
		scored = ApplyContiguityBoost(scored, n, e.neighborLookup())
	}

	results, summary := TruncateToBudget(scored, q.TokenBudget)
	return Result{Results: results, Truncation: summary}, nil
}

// hydrate fills in each candidate's storage-backed metadata (title,
// spec folder, importance, popularity inputs, timestamps) ahead of
// composite scoring, and folds in the trigger match counts already
// computed by the caller.
func hydrate(candidates []Candidate, meta map[int64]memindex.Memory, triggerCounts map[int64]int) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		m, ok := meta[c.MemoryID]
		if !ok {
			continue // stale id (deleted between list and fuse); drop it
		}
		c.SpecFolder = m.SpecFolder
		c.Title = m.Title
		c.ContentLength = len(m.Content)
		c.ImportanceWeight = m.ImportanceWeight
		c.AccessCount = m.AccessCount
		c.CreatedAt = m.CreatedAt
		c.UpdatedAt = m.UpdatedAt
		c.Tags = m.Tags
		c.TriggerMatches = triggerCounts[c.MemoryID]
		if c.Snippet == "" {
			c.Snippet = snippetFrom(m.Content)
		}
		out = append(out, c)
	}
	return out
}

func snippetFrom(content string) string {
	const max = 160
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}

func filterScored(results []Scored, f Filter) []Scored {
	var out []Scored
	for _, r := range results {
		if f.Matches(r.SpecFolder, r.CreatedAt, r.Tags) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) neighborLookup() NeighborLookup {
	return func(memoryID int64, window int) []int64 {
		neighbors, err := e.store.Neighbors(memoryID, window)
		if err != nil {
			return nil
		}
		ids := make([]int64, 0, len(neighbors))
		for _, n := range neighbors {
			ids = append(ids, n.ID)
		}
		return ids
	}
}

// ftsQuery escapes a raw prompt for FTS5 MATCH by quoting it as a single
// phrase; the engine favors recall of the literal prompt text over
// FTS5's boolean operator syntax, which end users never type directly.
func ftsQuery(prompt string) string {
	return `"` + escapeFTSQuote(prompt) + `"`
}

func escapeFTSQuote(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' {
			out = append(out, '"', '"')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Load records access for a loaded memory (spec §4.5 track_access,
// invoked by the interactive search FSM's LOAD state).
func (e *Engine) Load(id int64) error {
	return e.store.TrackAccess(id)
}
