// Kernel: Hook Dispatch Kernel and Semantic Memory Subsystem
//
// A single static binary that doubles as the per-event hook entrypoint an
// AI coding assistant invokes at each lifecycle point, and as a long-lived
// MCP server exposing the memory subsystem's interactive search tools.
//
// Usage:
//
//	kernel hook <lifecycle-point>   # read one event from stdin, dispatch, exit
//	kernel serve                    # start the MCP server (stdio transport)
//	kernel version                  # print version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-dev/kernel/internal/config"
	"github.com/opencode-dev/kernel/internal/dispatch"
	"github.com/opencode-dev/kernel/internal/embedder"
	"github.com/opencode-dev/kernel/internal/hookio"
	"github.com/opencode-dev/kernel/internal/kernellog"
	"github.com/opencode-dev/kernel/internal/memindex"
	"github.com/opencode-dev/kernel/internal/question"
	kernelserver "github.com/opencode-dev/kernel/internal/server"
	"github.com/opencode-dev/kernel/internal/signal"
	"github.com/opencode-dev/kernel/internal/state"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "hook":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: hook requires a lifecycle point argument")
			os.Exit(1)
		}
		os.Exit(runHook(hookio.Point(os.Args[2])))
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("kernel v%s\n", kernelserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runServe starts the MCP stdio server exposing the memory subsystem.
func runServe() error {
	cfg := config.DefaultKernel()
	s, cleanup, err := kernelserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	return server.ServeStdio(s)
}

// runHook reads one event from stdin, runs the Dispatcher for point,
// writes the verdict's control records to stdout, and returns the host's
// expected status code (spec §0, §4.2): 0 allow, 1 block, 4
// skip-remaining; warning composition is already folded into the
// Dispatcher's Verdict.
func runHook(point hookio.Point) int {
	cfg := config.DefaultKernel()

	var event hookio.Event
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		kernellog.Error("hook %s: read stdin: %v", point, err)
		return int(hookio.ExitBlock)
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		kernellog.Error("hook %s: decode event: %v", point, err)
		return int(hookio.ExitBlock)
	}

	stateStore, err := state.New(cfg.StateRoot)
	if err != nil {
		kernellog.Error("hook %s: open state store: %v", point, err)
		return int(hookio.ExitBlock)
	}

	reg, regErr := config.LoadRegistration(cfg.RegistrationPath)

	registry := dispatch.NewRegistry(
		question.NewGate(stateStore),
		dispatch.ValidateBash,
		dispatch.EnforceMarkdownPre,
	)
	dispatcher := dispatch.New(registry)

	if point == hookio.PromptSubmit {
		handlePromptSubmit(stateStore, event)
	}
	if point == hookio.PreCompact {
		runPreCompact(cfg, event)
	}

	verdict := dispatcher.Run(context.Background(), point, reg, regErr, event)

	for _, msg := range verdict.SystemMessages {
		if line, err := signal.EncodeSystemMessage(msg); err == nil {
			os.Stdout.Write(line)
		}
	}
	if verdict.ContextText != "" {
		fmt.Println(verdict.ContextText)
	}

	if !verdict.Allow {
		if line, err := signal.EncodeBlock(verdict.BlockReason); err == nil {
			os.Stdout.Write(line)
		}
		return int(hookio.ExitBlock)
	}
	if verdict.SkippedRemaining {
		return int(hookio.ExitSkipRemaining)
	}
	return int(hookio.ExitAllow)
}

// handlePromptSubmit runs the task-change divergence check ahead of the
// Dispatcher's hook set (spec §4.4, §9 scenario walkthroughs): if the
// session carries a marker and the incoming prompt diverges from it past
// the ask threshold, a mandatory TASK_CHANGE question is emitted.
func handlePromptSubmit(store *state.Store, event hookio.Event) {
	namespace := state.SanitizeSessionID(event.SessionID)

	marker, ok := question.ReadMarker(store, namespace)
	if !ok {
		return
	}

	decision := question.EvaluateTaskChange(marker.Keywords, event.Prompt)
	if !decision.ShouldAsk {
		if decision.LogOnly {
			kernellog.Info("prompt_submit: task-change divergence %.2f for session %s (logged, not asked)",
				decision.Divergence, event.SessionID)
		}
		return
	}

	text := fmt.Sprintf("this prompt diverges from the current task (divergence %.2f) — continue the current task or start a new one?",
		decision.Divergence)
	if _, err := question.EmitQuestion(store, namespace, hookio.QuestionTaskChange, text, nil); err != nil {
		kernellog.Warn("prompt_submit: emit task-change question: %v", err)
	}
}

// runPreCompact indexes every memory artifact under the session's
// specs/*/memory/ directories into the Memory Index (spec §4.5
// index(memory) -> id; memory-save indexing is "invoked at memory-save
// time, typically once per session in pre_compact"). Failures are
// logged and treated as warnings — memory indexing never blocks compaction.
func runPreCompact(cfg config.Kernel, event hookio.Event) {
	idx, err := memindex.New(memindex.Config{DataDir: cfg.MemoryDataDir})
	if err != nil {
		kernellog.Warn("pre_compact: open memory index: %v", err)
		return
	}
	defer idx.Close()

	inputs, err := collectMemoryArtifacts(event.CWD)
	if err != nil {
		kernellog.Warn("pre_compact: collect memory artifacts: %v", err)
		return
	}

	emb := embedder.NewStub(cfg.EmbeddingDimension)
	for _, in := range inputs {
		if vec, err := emb.Embed(context.Background(), in.Content); err != nil {
			kernellog.Warn("pre_compact: embed %s: %v", in.FilePath, err)
		} else {
			in.Embedding = vec
		}
		if _, err := idx.Index(in); err != nil {
			kernellog.Warn("pre_compact: index %s: %v", in.FilePath, err)
		}
	}
}

// collectMemoryArtifacts globs every markdown file under
// <cwd>/specs/*/memory/*.md and builds one Index input per file: spec
// folder from the grandparent directory name, title from the first "# "
// heading (filename fallback), trigger phrases via the same keyword
// extraction the task-change divergence check uses, and tags from any
// leading YAML frontmatter block.
func collectMemoryArtifacts(cwd string) ([]memindex.Input, error) {
	if cwd == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(cwd, "specs", "*", "memory", "*.md"))
	if err != nil {
		return nil, err
	}

	var out []memindex.Input
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			kernellog.Warn("pre_compact: read %s: %v", path, err)
			continue
		}
		tags, body := memindex.StripFrontmatter(string(raw))

		out = append(out, memindex.Input{
			SpecFolder:       filepath.Base(filepath.Dir(filepath.Dir(path))),
			FilePath:         path,
			Title:            titleFromMemoryContent(body, path),
			Content:          body,
			TriggerPhrases:   question.Keywordize(body),
			Tags:             tags,
			ImportanceWeight: memindex.ImportanceNormal,
		})
	}
	return out, nil
}

// titleFromMemoryContent takes the first "# " heading line, falling
// back to the filename (extension stripped) when none is present.
func titleFromMemoryContent(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Kernel v%s — Hook Dispatch Kernel and Semantic Memory Subsystem

Usage:
  kernel hook <lifecycle-point>   Dispatch one event read from stdin
  kernel serve                    Start the MCP server (stdio transport)
  kernel version                  Print the version
  kernel help                     Show this message

Lifecycle points:
  prompt_submit, pre_tool, post_tool, subagent_stop,
  pre_compact, pre_session_start, post_session_end

Configuration:
  Add to your AI tool's hook config, once per lifecycle point:

  {
    "hooks": {
      "pre_tool": [{"command": "kernel hook pre_tool"}]
    }
  }
`, kernelserver.Version)
}
