package search

import (
	"math"
	"sort"
	"time"
)

// DefaultHalfLifeDays is the decay_factor half-life (spec §4.6.5).
const DefaultHalfLifeDays = 30.0

// DecayFactor implements the composite scoring recency decay (spec
// §4.6.5): max(0.1, exp(-ln(2) * age_days / half_life_days)).
func DecayFactor(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	decay := math.Exp(-math.Ln2 * ageDays / halfLifeDays)
	return math.Max(0.1, decay)
}

// Popularity implements min(1, ln(1+access_count) / ln(1+1000)) (spec
// §4.6.5).
func Popularity(accessCount int) float64 {
	p := math.Log(1+float64(accessCount)) / math.Log(1001)
	return math.Min(1, p)
}

// TriggerScore implements min(1, trigger_matches / 5) (spec §4.6.5).
func TriggerScore(matches int) float64 {
	return math.Min(1, float64(matches)/5.0)
}

// ScoreWeights are the composite formula's fixed coefficients (spec
// §4.6.5).
type ScoreWeights struct {
	Similarity float64
	Importance float64
	Decay      float64
	Popularity float64
	Trigger    float64
}

// DefaultScoreWeights is the spec's fixed weighting.
var DefaultScoreWeights = ScoreWeights{
	Similarity: 0.40,
	Importance: 0.20,
	Decay:      0.15,
	Popularity: 0.15,
	Trigger:    0.10,
}

// Composite computes a candidate's composite score as of "now" (spec
// §4.6.5).
func Composite(c Candidate, now time.Time, halfLifeDays float64, w ScoreWeights) float64 {
	ageDays := now.Sub(c.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := DecayFactor(ageDays, halfLifeDays)
	simDecayed := c.RawSimilarity * decay
	popularity := Popularity(c.AccessCount)
	triggerScore := TriggerScore(c.TriggerMatches)

	return w.Similarity*simDecayed +
		w.Importance*c.ImportanceWeight +
		w.Decay*decay +
		w.Popularity*popularity +
		w.Trigger*triggerScore
}

// RankByComposite scores every candidate and sorts descending by
// composite, breaking ties by updated_at descending then id ascending
// (spec §4.6.5).
func RankByComposite(candidates []Candidate, now time.Time, halfLifeDays float64) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Candidate: c, Composite: Composite(c, now, halfLifeDays, DefaultScoreWeights)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].MemoryID < out[j].MemoryID
	})
	return out
}

// TokensFor estimates a result's token cost as ceil(content_length / 3.5)
// (spec §4.6.6).
func TokensFor(contentLength int) int {
	return int(math.Ceil(float64(contentLength) / 3.5))
}

// TruncateToBudget appends results in rank order until the next result
// would exceed budget tokens, never reordering (spec §4.6.6). The first
// result is always kept, even when it alone exceeds the budget.
func TruncateToBudget(results []Scored, budget int) ([]Scored, TruncationSummary) {
	if budget <= 0 {
		return results, TruncationSummary{OriginalCount: len(results)}
	}

	var out []Scored
	total := 0
	for _, r := range results {
		cost := TokensFor(r.ContentLength)
		if total+cost > budget && len(out) > 0 {
			return out, TruncationSummary{Truncated: true, OriginalCount: len(results), TokenCount: total}
		}
		out = append(out, r)
		total += cost
	}
	return out, TruncationSummary{Truncated: false, OriginalCount: len(results), TokenCount: total}
}

// ContiguityBoostFactor is the multiplier applied to a neighbor already
// present in the candidate set (spec §4.6.7).
const ContiguityBoostFactor = 1.2

// DefaultContiguityWindow is the neighbor window used by contiguity
// boosting (spec §4.6.7).
const DefaultContiguityWindow = 2

// NeighborLookup resolves the temporal neighbor ids of a memory within
// its spec folder, letting ApplyContiguityBoost stay storage-agnostic.
type NeighborLookup func(memoryID int64, window int) []int64

// ApplyContiguityBoost multiplies by ContiguityBoostFactor the score of
// each temporal neighbor of a top-n result that also appears in the
// candidate set, once per top-n result it neighbors, then re-sorts (spec
// §4.6.7).
func ApplyContiguityBoost(results []Scored, topN int, neighbors NeighborLookup) []Scored {
	if topN > len(results) {
		topN = len(results)
	}

	present := make(map[int64]bool, len(results))
	for _, r := range results {
		present[r.MemoryID] = true
	}

	boosted := make([]Scored, len(results))
	copy(boosted, results)

	for i := 0; i < topN; i++ {
		ids := neighbors(boosted[i].MemoryID, DefaultContiguityWindow)
		for _, nid := range ids {
			if present[nid] {
				for j := range boosted {
					if boosted[j].MemoryID == nid {
						boosted[j].Composite *= ContiguityBoostFactor
					}
				}
			}
		}
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		if boosted[i].Composite != boosted[j].Composite {
			return boosted[i].Composite > boosted[j].Composite
		}
		if !boosted[i].UpdatedAt.Equal(boosted[j].UpdatedAt) {
			return boosted[i].UpdatedAt.After(boosted[j].UpdatedAt)
		}
		return boosted[i].MemoryID < boosted[j].MemoryID
	})
	return boosted
}
