// Package search implements the Memory Query Engine (spec §4.6): hybrid
// vector+FTS+trigger retrieval, Reciprocal Rank Fusion, composite
// scoring, token-budget truncation, contiguity boosting, the interactive
// search state machine, and its session persistence.
package search

import "time"

// Candidate is one memory under consideration during ranking, carrying
// whatever signals (vector rank, FTS rank, trigger matches) contributed
// to it being retrieved.
type Candidate struct {
	MemoryID         int64
	SpecFolder       string
	Title            string
	Snippet          string
	ContentLength    int
	RawSimilarity    float64
	VectorRank       int // 1-based; 0 means absent from the vector list
	FTSRank          int // 1-based; 0 means absent from the FTS list
	FTSBM25          float64
	TriggerMatches   int
	ImportanceWeight float64
	AccessCount      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Tags             []string
}

// Scored is a Candidate carrying its computed composite score.
type Scored struct {
	Candidate
	Composite float64
}

// TruncationSummary describes how a result list was clipped to a token
// budget (spec §4.6.6).
type TruncationSummary struct {
	Truncated     bool `json:"truncated"`
	OriginalCount int  `json:"original_count"`
	TokenCount    int  `json:"token_count"`
}
