package memindex_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencode-dev/kernel/internal/memindex"
)

func newTestStore(t *testing.T) *memindex.Store {
	t.Helper()
	s, err := memindex.New(memindex.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewCreatesDBFile(t *testing.T) {
	dir := t.TempDir()
	s, err := memindex.New(memindex.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "index.db")); err != nil {
		t.Fatalf("expected index.db to exist: %v", err)
	}
}

func TestNewIdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := memindex.New(memindex.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	id, err := s1.Index(memindex.Input{
		SpecFolder: "feature-x",
		FilePath:   "specs/feature-x/memory/01.md",
		Title:      "decision log",
		Content:    "# Decision\nuse sqlite",
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	_ = s1.Close()

	s2, err := memindex.New(memindex.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(id)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Title != "decision log" {
		t.Errorf("expected title to survive reopen, got %q", got.Title)
	}
}

func TestIndexInsertsNewMemory(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Index(memindex.Input{
		SpecFolder:       "feature-x",
		FilePath:         "specs/feature-x/memory/01.md",
		Title:            "auth approach",
		Content:          "# Decision\nuse jwt",
		TriggerPhrases:   []string{"auth approach"},
		ImportanceWeight: memindex.ImportanceHigh,
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	m, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Title != "auth approach" || m.ImportanceWeight != memindex.ImportanceHigh {
		t.Errorf("unexpected memory: %+v", m)
	}
	if len(m.Anchors) == 0 {
		t.Error("expected anchors to be generated from content")
	}

	hist, err := s.History(id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Event != memindex.EventCreated {
		t.Errorf("expected single created event, got %+v", hist)
	}
}

func TestIndexUpsertsByFilePathAndRecordsUpdate(t *testing.T) {
	s := newTestStore(t)

	in := memindex.Input{
		SpecFolder: "feature-x",
		FilePath:   "specs/feature-x/memory/01.md",
		Title:      "v1",
		Content:    "# Decision\nv1 content",
	}
	id1, err := s.Index(in)
	if err != nil {
		t.Fatalf("first index: %v", err)
	}

	in.Title = "v2"
	in.Content = "# Decision\nv2 content, different"
	id2, err := s.Index(in)
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected upsert to reuse id, got %d then %d", id1, id2)
	}

	m, err := s.Get(id1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Title != "v2" {
		t.Errorf("expected title updated, got %q", m.Title)
	}

	hist, err := s.History(id1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[1].Event != memindex.EventUpdated {
		t.Errorf("expected created+updated events, got %+v", hist)
	}
}

func TestIndexNoOpOnUnchangedContent(t *testing.T) {
	s := newTestStore(t)

	in := memindex.Input{
		SpecFolder: "feature-x",
		FilePath:   "specs/feature-x/memory/01.md",
		Title:      "v1",
		Content:    "# Decision\nsame content",
	}
	id, err := s.Index(in)
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	in.Title = "v1 renamed"
	if _, err := s.Index(in); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	hist, err := s.History(id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("expected no history event on unchanged content, got %+v", hist)
	}

	m, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Title != "v1 renamed" {
		t.Errorf("expected metadata-only touch to still apply, got %q", m.Title)
	}
}

func TestDeleteSoftDeletesAndRecordsHistory(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Index(memindex.Input{
		SpecFolder: "feature-x",
		FilePath:   "specs/feature-x/memory/01.md",
		Title:      "t",
		Content:    "# Decision\nbody",
	})

	if err := s.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(id); err != memindex.ErrMemoryNotFound {
		t.Errorf("expected ErrMemoryNotFound after delete, got %v", err)
	}

	hist, err := s.History(id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[1].Event != memindex.EventDeleted {
		t.Errorf("expected created+deleted events, got %+v", hist)
	}

	if err := s.Delete(id); err != memindex.ErrMemoryNotFound {
		t.Errorf("expected ErrMemoryNotFound on double delete, got %v", err)
	}
}

func TestTrackAccessIncrementsCountAndHistory(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Index(memindex.Input{
		SpecFolder: "feature-x",
		FilePath:   "specs/feature-x/memory/01.md",
		Title:      "t",
		Content:    "# Decision\nbody",
	})

	if err := s.TrackAccess(id); err != nil {
		t.Fatalf("track access: %v", err)
	}
	if err := s.TrackAccess(id); err != nil {
		t.Fatalf("track access: %v", err)
	}

	m, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.AccessCount != 2 {
		t.Errorf("expected access_count 2, got %d", m.AccessCount)
	}
	if m.LastAccessedAt == nil {
		t.Error("expected last_accessed_at to be set")
	}
}

func TestNeighborsReturnsSameSpecFolderOrderedByProximity(t *testing.T) {
	s := newTestStore(t)

	idA, _ := s.Index(memindex.Input{SpecFolder: "f", FilePath: "a.md", Title: "a", Content: "# S\na"})
	idB, _ := s.Index(memindex.Input{SpecFolder: "f", FilePath: "b.md", Title: "b", Content: "# S\nb"})
	idC, _ := s.Index(memindex.Input{SpecFolder: "f", FilePath: "c.md", Title: "c", Content: "# S\nc"})
	_, _ = s.Index(memindex.Input{SpecFolder: "other", FilePath: "d.md", Title: "d", Content: "# S\nd"})

	neighbors, err := s.Neighbors(idB, 2)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors within window, got %d: %+v", len(neighbors), neighbors)
	}
	ids := map[int64]bool{neighbors[0].ID: true, neighbors[1].ID: true}
	if !ids[idA] || !ids[idC] {
		t.Errorf("expected neighbors to be a and c, got %+v", neighbors)
	}
}

func TestGetAnchorExactMatch(t *testing.T) {
	s := newTestStore(t)
	content := "<!-- anchor: decision-auth-1 -->\n# Decision\nuse jwt\n<!-- /anchor: decision-auth-1 -->\n"
	id, err := s.Index(memindex.Input{SpecFolder: "f", FilePath: "a.md", Title: "t", Content: content})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	section, ok, err := s.GetAnchor(id, "decision-auth-1")
	if err != nil {
		t.Fatalf("get anchor: %v", err)
	}
	if !ok || section != "use jwt" {
		t.Errorf("expected section %q, got %q (ok=%v)", "use jwt", section, ok)
	}

	if _, ok, _ := s.GetAnchor(id, "missing-anchor"); ok {
		t.Error("expected no match for missing anchor")
	}
}

func TestStatsAggregatesAcrossSpecFolders(t *testing.T) {
	s := newTestStore(t)

	_, _ = s.Index(memindex.Input{SpecFolder: "f1", FilePath: "a.md", Title: "a", Content: "# S\na", ImportanceWeight: 1.0})
	_, _ = s.Index(memindex.Input{SpecFolder: "f1", FilePath: "b.md", Title: "b", Content: "# S\nb", ImportanceWeight: 0.5})
	_, _ = s.Index(memindex.Input{SpecFolder: "f2", FilePath: "c.md", Title: "c", Content: "# S\nc", ImportanceWeight: 0.0})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMemories != 3 {
		t.Errorf("expected 3 memories, got %d", stats.TotalMemories)
	}
	if stats.PerSpecFolderCount["f1"] != 2 || stats.PerSpecFolderCount["f2"] != 1 {
		t.Errorf("unexpected per-folder counts: %+v", stats.PerSpecFolderCount)
	}
	wantAvg := (1.0 + 0.5 + 0.0) / 3
	if diff := stats.AverageImportance - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected average importance %v, got %v", wantAvg, stats.AverageImportance)
	}
}

func TestTriggerCacheWarmsFromExistingRowsAndMatches(t *testing.T) {
	dir := t.TempDir()
	s1, err := memindex.New(memindex.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s1.Index(memindex.Input{
		SpecFolder:     "f",
		FilePath:       "a.md",
		Title:          "t",
		Content:        "# S\nbody",
		TriggerPhrases: []string{"deploy pipeline"},
	}); err != nil {
		t.Fatalf("index: %v", err)
	}
	_ = s1.Close()

	s2, err := memindex.New(memindex.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	matches := s2.Trigger().Match("we need to fix the deploy pipeline today")
	if len(matches) != 1 || matches[0].Phrase != "deploy pipeline" {
		t.Errorf("expected one trigger match after warm, got %+v", matches)
	}

	if m := s2.Trigger().Match("deploypipeline concatenated"); len(m) != 0 {
		t.Errorf("expected concatenated words not to match, got %+v", m)
	}
}
