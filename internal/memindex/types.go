// Package memindex implements the Memory Index (spec §4.5): the
// persistent store of memory artifacts — vectors, content, triggers,
// access metadata, and history — backed by SQLite with an FTS5 full-text
// index, WAL mode, raw-SQL migrate(), and typed row structs.
package memindex

import "time"

// Importance tiers (spec §3.6).
const (
	ImportanceCritical = 1.0
	ImportanceHigh     = 0.8
	ImportanceNormal    = 0.5
	ImportanceLow       = 0.2
)

// AnchorCategory is one of the eight fixed section categories (spec
// §3.6), each carrying a fixed priority weight used by the content
// analyzer when a section could plausibly belong to more than one
// category.
type AnchorCategory string

const (
	CategoryDecision      AnchorCategory = "decision"
	CategoryImplementation AnchorCategory = "implementation"
	CategoryGuide          AnchorCategory = "guide"
	CategoryArchitecture    AnchorCategory = "architecture"
	CategoryDiscovery       AnchorCategory = "discovery"
	CategoryIntegration     AnchorCategory = "integration"
	CategoryFiles           AnchorCategory = "files"
	CategorySummary         AnchorCategory = "summary"
)

// CategoryPriority gives each category's fixed weight (spec §3.6),
// highest first. Used to break ties when a section's keywords could
// plausibly place it in more than one category.
var CategoryPriority = map[AnchorCategory]float64{
	CategoryDecision:       1.0,
	CategoryImplementation: 0.9,
	CategoryGuide:          0.85,
	CategoryArchitecture:   0.8,
	CategoryDiscovery:      0.7,
	CategoryIntegration:    0.65,
	CategoryFiles:          0.5,
	CategorySummary:        0.4,
}

// OffsetRange is a byte range within a memory file's content.
type OffsetRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Anchor is one named, category-tagged section inside a memory artifact
// (spec §3.6, §6.5).
type Anchor struct {
	ID          string         `json:"id"`
	Category    AnchorCategory `json:"category"`
	Title       string         `json:"title"`
	OffsetRange OffsetRange    `json:"offset_range"`
}

// Memory is the principal persistent entity (spec §3.6).
type Memory struct {
	ID               int64      `json:"id"`
	SpecFolder       string     `json:"spec_folder"`
	FilePath         string     `json:"file_path"`
	Title            string     `json:"title"`
	Content          string     `json:"-"` // cached raw markdown; not part of the wire struct
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Embedding        []float32  `json:"embedding"`
	ContentHash      string     `json:"content_hash"`
	TriggerPhrases   []string   `json:"trigger_phrases"`
	Tags             []string   `json:"tags"`
	ImportanceWeight float64    `json:"importance_weight"`
	AccessCount      int        `json:"access_count"`
	LastAccessedAt   *time.Time `json:"last_accessed_at,omitempty"`
	Anchors          []Anchor   `json:"anchors"`
}

// HistoryEventKind enumerates §3.7's event kinds.
type HistoryEventKind string

const (
	EventCreated           HistoryEventKind = "created"
	EventUpdated           HistoryEventKind = "updated"
	EventAccessed          HistoryEventKind = "accessed"
	EventDeleted           HistoryEventKind = "deleted"
	EventImportanceChanged HistoryEventKind = "importance_changed"
)

// HistoryEvent is one append-only audit entry for a memory (spec §3.7).
type HistoryEvent struct {
	ID        int64            `json:"id"`
	MemoryID  int64            `json:"memory_id"`
	Event     HistoryEventKind `json:"event"`
	Prev      string           `json:"prev,omitempty"`
	New       string           `json:"new,omitempty"`
	Actor     string           `json:"actor,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Input is the caller-supplied side of Index — everything derived at
// index time (id, content_hash, timestamps) is computed by the Store.
type Input struct {
	SpecFolder       string
	FilePath         string
	Title            string
	Content          string
	Embedding        []float32
	TriggerPhrases   []string
	Tags             []string
	ImportanceWeight float64
}

// Stats holds aggregate memory statistics (SPEC_FULL §3 supplement).
type Stats struct {
	TotalMemories      int            `json:"total_memories"`
	AverageImportance  float64        `json:"average_importance"`
	PerSpecFolderCount map[string]int `json:"per_spec_folder_count"`
}
