package search

import (
	"sort"

	"github.com/opencode-dev/kernel/internal/embedder"
)

// VectorSearch computes cosine similarity between q and every indexed
// vector, returning the top k by similarity (spec §4.6.1).
func VectorSearch(q []float32, indexed map[int64][]float32, k int) []Candidate {
	type scored struct {
		id  int64
		sim float64
	}
	all := make([]scored, 0, len(indexed))
	for id, v := range indexed {
		all = append(all, scored{id: id, sim: embedder.CosineSimilarity(q, v)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].sim > all[j].sim })
	if k > 0 && k < len(all) {
		all = all[:k]
	}

	out := make([]Candidate, len(all))
	for i, s := range all {
		out[i] = Candidate{MemoryID: s.id, RawSimilarity: s.sim, VectorRank: i + 1}
	}
	return out
}

// TriggerHit is one trigger-search result (spec §4.6.3): ranked by
// (match_count desc, importance desc), capped at limit.
type TriggerHit struct {
	MemoryID         int64
	MatchCount       int
	ImportanceWeight float64
}

// TriggerSearch ranks memories by how many cached trigger phrases
// matched the prompt, applying limit after sorting.
func TriggerSearch(matchCounts map[int64]int, importance map[int64]float64, limit int) []TriggerHit {
	hits := make([]TriggerHit, 0, len(matchCounts))
	for id, count := range matchCounts {
		hits = append(hits, TriggerHit{MemoryID: id, MatchCount: count, ImportanceWeight: importance[id]})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].MatchCount != hits[j].MatchCount {
			return hits[i].MatchCount > hits[j].MatchCount
		}
		return hits[i].ImportanceWeight > hits[j].ImportanceWeight
	})
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits
}

// MergeCandidatesByID combines a vector-ranked list and an FTS-ranked
// list into one candidate set keyed by memory id, preserving each
// side's rank and similarity/BM25 signal for fusion (spec §4.6.4).
func MergeCandidatesByID(vector, fts []Candidate) []Candidate {
	byID := map[int64]*Candidate{}
	var order []int64

	for _, c := range vector {
		cp := c
		byID[c.MemoryID] = &cp
		order = append(order, c.MemoryID)
	}
	for _, c := range fts {
		if existing, ok := byID[c.MemoryID]; ok {
			existing.FTSRank = c.FTSRank
			existing.FTSBM25 = c.FTSBM25
			if existing.Snippet == "" {
				existing.Snippet = c.Snippet
			}
			continue
		}
		cp := c
		byID[c.MemoryID] = &cp
		order = append(order, c.MemoryID)
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}
