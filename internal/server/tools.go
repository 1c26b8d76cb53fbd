package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/opencode-dev/kernel/internal/memindex"
	"github.com/opencode-dev/kernel/internal/search"
)

// registerMemoryTools registers the memory-subsystem MCP tools: each tool
// is a small struct holding its dependencies, with Definition()/Handle()
// methods.
func registerMemoryTools(s *mcpserver.MCPServer, idx *memindex.Store, engine *search.Engine, sessions *search.SessionStore) {
	searchTool := &memorySearchTool{engine: engine}
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	previewTool := &memoryPreviewTool{engine: engine}
	s.AddTool(previewTool.Definition(), previewTool.Handle)

	loadTool := &memoryLoadTool{idx: idx, engine: engine}
	s.AddTool(loadTool.Definition(), loadTool.Handle)

	statsTool := &memoryStatsTool{idx: idx}
	s.AddTool(statsTool.Definition(), statsTool.Handle)
}

// memorySearchTool handles memory_search: hybrid vector+FTS+trigger
// retrieval over the memory index (spec §4.6).
type memorySearchTool struct {
	engine *search.Engine
}

func (t *memorySearchTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription(
			"Search persisted memory artifacts across spec folders using hybrid "+
				"vector, full-text, and trigger-phrase retrieval. Returns ranked "+
				"results with composite relevance scores.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — natural language or keywords"),
		),
		mcp.WithString("filter",
			mcp.Description("Optional filter expression: folder:<name> tag:<name> date:<YYYY-MM-DD|>YYYY-MM-DD|<YYYY-MM-DD|YYYY-MM-DD..YYYY-MM-DD>, space-separated and AND-composed"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results to return (default 10)"),
		),
		mcp.WithNumber("token_budget",
			mcp.Description("Optional token budget to truncate the result list to"),
		),
		mcp.WithString("detail_level",
			mcp.Description("Level of detail: 'summary', 'standard' (default), or 'full'"),
			mcp.Enum(search.DetailLevelValues()...),
		),
	)
}

func (t *memorySearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	q := search.Query{Prompt: query, TokenBudget: intArg(req, "token_budget", 0)}
	if expr := req.GetString("filter", ""); expr != "" {
		f, err := search.ParseFilterExpression(expr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid filter: %v", err)), nil
		}
		q.Filter = &f
	}

	result, err := t.engine.Search(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	limit := intArg(req, "limit", 10)
	results := result.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No memories found matching your query."), nil
	}

	level := search.ParseDetailLevel(req.GetString("detail_level", ""))
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] #%d (%s) score=%.3f\n    %s\n    %s\n\n",
			i+1, r.MemoryID, r.SpecFolder, r.Composite, search.RenderDetail(r, level),
			memoryResourceURI(r.SpecFolder, r.MemoryID, ""))
	}
	if result.Truncation.Truncated {
		fmt.Fprintf(&b, "(truncated to token budget: %d/%d results shown)\n",
			len(results), result.Truncation.OriginalCount)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// memoryPreviewTool handles memory_preview: renders one search result at
// full detail without advancing access tracking (spec §4.6.9 PREVIEW state).
type memoryPreviewTool struct {
	engine *search.Engine
}

func (t *memoryPreviewTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_preview",
		mcp.WithDescription("Preview the full snippet of one result from a memory_search query, by its position in the result list."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The same query used in memory_search"),
		),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("1-based position of the result to preview"),
		),
	)
}

func (t *memoryPreviewTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	index := intArg(req, "index", 0)
	if index < 1 {
		return mcp.NewToolResultError("'index' must be >= 1"), nil
	}

	result, err := t.engine.Search(ctx, search.Query{Prompt: query})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if index > len(result.Results) {
		return mcp.NewToolResultError(fmt.Sprintf("index %d out of range (%d results)", index, len(result.Results))), nil
	}

	r := result.Results[index-1]
	return mcp.NewToolResultText(fmt.Sprintf("#%d (%s)\n%s", r.MemoryID, r.SpecFolder, search.RenderDetail(r, search.DetailFull))), nil
}

// memoryLoadTool handles memory_load: retrieves one memory's full content
// by id and records an access (spec §4.6.9 LOAD state, §4.5 track_access).
type memoryLoadTool struct {
	idx    *memindex.Store
	engine *search.Engine
}

func (t *memoryLoadTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_load",
		mcp.WithDescription("Load the full content of a memory artifact by id, recording an access."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The memory id"),
		),
	)
}

func (t *memoryLoadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr := req.GetString("id", "")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid id %q: %v", idStr, err)), nil
	}

	m, err := t.idx.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("memory %d not found: %v", id, err)), nil
	}
	if err := t.engine.Load(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tracking access: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("# %s\nspec_folder: %s\nfile_path: %s\nresource: %s\n\n%s",
		m.Title, m.SpecFolder, m.FilePath, memoryResourceURI(m.SpecFolder, m.ID, ""), m.Content)), nil
}

// memoryStatsTool handles memory_stats: aggregate counts over the memory
// index.
type memoryStatsTool struct {
	idx *memindex.Store
}

func (t *memoryStatsTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_stats",
		mcp.WithDescription("Show memory index statistics: total memories, average importance, and per-folder counts."),
	)
}

func (t *memoryStatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.idx.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString("## Memory Index Statistics\n\n")
	fmt.Fprintf(&b, "- **Total memories**: %d\n", stats.TotalMemories)
	fmt.Fprintf(&b, "- **Average importance**: %.2f\n", stats.AverageImportance)
	if len(stats.PerSpecFolderCount) == 0 {
		b.WriteString("- **Spec folders**: none\n")
	} else {
		b.WriteString("- **Per spec folder**:\n")
		for folder, count := range stats.PerSpecFolderCount {
			fmt.Fprintf(&b, "  - %s: %d\n", folder, count)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are
// float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
