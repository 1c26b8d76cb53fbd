package search

import (
	"context"
	"testing"
	"time"

	"github.com/opencode-dev/kernel/internal/embedder"
	"github.com/opencode-dev/kernel/internal/memindex"
)

type fakeStore struct {
	memories  []memindex.Memory
	ftsHits   []memindex.FTSHit
	trigger   *memindex.TriggerCache
	neighbors map[int64][]memindex.Memory
	accessed  []int64
}

func (f *fakeStore) ListActive() ([]memindex.Memory, error) { return f.memories, nil }
func (f *fakeStore) FTSSearch(query string, k int) ([]memindex.FTSHit, error) {
	return f.ftsHits, nil
}
func (f *fakeStore) Neighbors(id int64, window int) ([]memindex.Memory, error) {
	return f.neighbors[id], nil
}
func (f *fakeStore) TrackAccess(id int64) error {
	f.accessed = append(f.accessed, id)
	return nil
}
func (f *fakeStore) Trigger() *memindex.TriggerCache { return f.trigger }

func TestEngineSearchRanksByComposite(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		memories: []memindex.Memory{
			{ID: 1, SpecFolder: "auth", Title: "Old low-importance memory", Content: "stale notes", ImportanceWeight: 0.2, CreatedAt: now.Add(-90 * 24 * time.Hour), UpdatedAt: now.Add(-90 * 24 * time.Hour), Embedding: []float32{1, 0}},
			{ID: 2, SpecFolder: "auth", Title: "Fresh critical memory", Content: "jwt refresh token decision", ImportanceWeight: 1.0, CreatedAt: now, UpdatedAt: now, Embedding: []float32{1, 0}},
		},
		trigger: memindex.NewTriggerCache(),
	}
	eng := NewEngine(store, embedder.NewStub(2))
	eng.now = func() time.Time { return now }

	res, err := eng.Search(context.Background(), Query{Prompt: "jwt refresh"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Results))
	}
	if res.Results[0].MemoryID != 2 {
		t.Errorf("expected fresher, higher-importance memory ranked first, got id=%d", res.Results[0].MemoryID)
	}
}

func TestEngineSearchDegradesWithoutEmbedder(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		memories: []memindex.Memory{
			{ID: 1, SpecFolder: "auth", Title: "Memory", Content: "content", CreatedAt: now, UpdatedAt: now},
		},
		ftsHits: []memindex.FTSHit{{MemoryID: 1, Rank: 1, BM25: -1.5, Snippet: ">>>content<<<"}},
		trigger: memindex.NewTriggerCache(),
	}
	eng := NewEngine(store, embedder.Unavailable{})

	res, err := eng.Search(context.Background(), Query{Prompt: "content"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].MemoryID != 1 {
		t.Fatalf("expected FTS-only fallback to surface memory 1, got %+v", res.Results)
	}
}

func TestEngineLoadTracksAccess(t *testing.T) {
	store := &fakeStore{trigger: memindex.NewTriggerCache()}
	eng := NewEngine(store, embedder.NewStub(4))
	if err := eng.Load(42); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(store.accessed) != 1 || store.accessed[0] != 42 {
		t.Fatalf("expected TrackAccess(42), got %v", store.accessed)
	}
}
