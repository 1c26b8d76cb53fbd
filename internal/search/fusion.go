package search

import "sort"

// RRFConstant is the k in rrf_score(r) = 1/(k+r) (spec §4.6.4).
const RRFConstant = 60

// DefaultVectorWeight and DefaultFTSWeight are the default hybrid
// fusion weights (spec §4.6.4).
const (
	DefaultVectorWeight = 0.7
	DefaultFTSWeight    = 0.3
)

// rrf returns 1/(k+r) for a 1-based rank, or 0 when the item is absent
// (rank 0) from that list.
func rrf(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(RRFConstant+rank)
}

// normalize rescales values to [0,1] by dividing by the maximum; an
// all-zero input is returned unchanged.
func normalize(values []float64) []float64 {
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return values
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / max
	}
	return out
}

// FuseRankedLists combines candidates already carrying VectorRank and
// FTSRank into a single fused-score ordering using weighted,
// normalized RRF (spec §4.6.4).
func FuseRankedLists(candidates []Candidate, wVector, wFTS float64) []Candidate {
	if wVector == 0 && wFTS == 0 {
		wVector, wFTS = DefaultVectorWeight, DefaultFTSWeight
	}

	vecScores := make([]float64, len(candidates))
	ftsScores := make([]float64, len(candidates))
	for i, c := range candidates {
		vecScores[i] = rrf(c.VectorRank)
		ftsScores[i] = rrf(c.FTSRank)
	}
	vecScores = normalize(vecScores)
	ftsScores = normalize(ftsScores)

	type fused struct {
		candidate Candidate
		score     float64
	}
	fusedList := make([]fused, len(candidates))
	for i, c := range candidates {
		fusedList[i] = fused{candidate: c, score: wVector*vecScores[i] + wFTS*ftsScores[i]}
	}

	sort.SliceStable(fusedList, func(i, j int) bool {
		return fusedList[i].score > fusedList[j].score
	})

	out := make([]Candidate, len(fusedList))
	for i, f := range fusedList {
		out[i] = f.candidate
	}
	return out
}
