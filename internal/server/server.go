// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the tools that depend on abstractions. No business
// logic lives here — only wiring.
package server

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-dev/kernel/internal/config"
	"github.com/opencode-dev/kernel/internal/embedder"
	"github.com/opencode-dev/kernel/internal/memindex"
	"github.com/opencode-dev/kernel/internal/search"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with the memory subsystem's
// tools registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the memory index's database
// connection and must be called on shutdown (typically via defer). It is
// always non-nil and safe to call even if memory init failed.
func New(cfg config.Kernel) (*server.MCPServer, func(), error) {
	s := server.NewMCPServer(
		"opencode-kernel",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register the memory subsystem ---
	//
	// Memory is an independent subsystem from the hook dispatcher: if it
	// fails to initialize, the MCP server still starts, just without the
	// memory tools registered. We log a warning and continue.

	cleanup := noop
	idx, err := memindex.New(memindex.Config{DataDir: cfg.MemoryDataDir})
	if err != nil {
		log.Printf("WARNING: memory subsystem disabled: %v", err)
		return s, cleanup, nil
	}
	cleanup = func() {
		if err := idx.Close(); err != nil {
			log.Printf("WARNING: memory index close: %v", err)
		}
	}

	emb := embedder.NewStub(cfg.EmbeddingDimension)
	engine := search.NewEngine(idx, emb)

	sessions, err := search.NewSessionStore(cfg.SearchSessionDir)
	if err != nil {
		log.Printf("WARNING: search session persistence disabled: %v", err)
	}

	registerMemoryTools(s, idx, engine, sessions)
	registerMemoryResource(s, idx)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used as the default when memory hasn't
// been initialized yet.
func noop() {}

// serverInstructions returns the system instructions that tell the AI how
// to use the memory tools effectively.
func serverInstructions() string {
	return `This server exposes persistent memory tools backed by a hook-driven
instrumentation layer. Memory artifacts are markdown files written under
specs/<folder>/memory/ and indexed with vector embeddings, full-text search,
and trigger phrases.

## Tools

- memory_search(query, filter, limit, token_budget, detail_level): hybrid
  vector+FTS+trigger search across all indexed memory, ranked by a
  composite score blending similarity, importance, recency decay, and
  popularity.
- memory_preview(query, index): render one result from a prior search at
  full detail, without recording an access.
- memory_load(id): load a memory's full content by id and record an
  access for recency/popularity scoring.
- memory_stats(): aggregate counts — total memories, average importance,
  and per-spec-folder breakdown.

## When to search memory

- At the start of a session, to recover context from prior work in the
  same spec folder.
- Before making an architectural decision, to check whether a prior
  decision already covers it.
- When a prompt references something from a previous session.

Use filter expressions to narrow results: folder:<name>, tag:<name>,
date:<YYYY-MM-DD>, date:>YYYY-MM-DD, date:<YYYY-MM-DD, or an inclusive
date:YYYY-MM-DD..YYYY-MM-DD range. Atoms are space-separated and AND-composed.`
}
