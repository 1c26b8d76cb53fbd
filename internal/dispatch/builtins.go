package dispatch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/opencode-dev/kernel/internal/hookio"
)

// toolInput is the subset of §6.1's tool_input this package inspects.
type toolInput struct {
	Command  string `json:"command"`
	FilePath string `json:"file_path"`
}

func decodeToolInput(event hookio.Event) toolInput {
	var in toolInput
	if len(event.ToolInput) > 0 {
		_ = json.Unmarshal(event.ToolInput, &in)
	}
	return in
}

// dangerousBashPatterns are command substrings a bash validator refuses
// to allow unreviewed. This is a minimal, conservative set — the full
// ruleset is an external collaborator (spec §1); the kernel only needs
// one concrete fail_closed example to exercise the protocol.
var dangerousBashPatterns = []string{
	"rm -rf /",
	"rm -rf ~",
	"rm -rf *",
	":(){:|:&};:",
	"mkfs",
	"> /dev/sda",
	"dd if=/dev/zero",
	"chmod -r 777 /",
}

// ValidateBash is the built-in validate_bash hook (spec §4.3, §4.4): it
// is flagged fail_closed, so a crash or timeout here blocks the tool
// rather than falling through to allow.
func ValidateBash(_ context.Context, event hookio.Event) (Outcome, error) {
	if event.ToolName != "Bash" {
		return Outcome{ExitCode: hookio.ExitAllow}, nil
	}

	in := decodeToolInput(event)
	lower := strings.ToLower(in.Command)
	for _, pattern := range dangerousBashPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return Outcome{
				ExitCode: hookio.ExitBlock,
				Records: []hookio.ControlRecord{{
					Decision: "block",
					Reason:   "command matches a destructive pattern: " + pattern,
				}},
			}, nil
		}
	}
	return Outcome{ExitCode: hookio.ExitAllow}, nil
}

// EnforceMarkdownPre is the built-in enforce_markdown_pre hook: memory
// artifacts (spec §6.4) must be written under specs/<folder>/memory/ and
// carry a .md extension, since the anchor markup (§6.5) and the content
// analyzer that generates it only ever run against markdown files.
func EnforceMarkdownPre(_ context.Context, event hookio.Event) (Outcome, error) {
	if event.ToolName != "Write" && event.ToolName != "Edit" {
		return Outcome{ExitCode: hookio.ExitAllow}, nil
	}

	in := decodeToolInput(event)
	if in.FilePath == "" {
		return Outcome{ExitCode: hookio.ExitAllow}, nil
	}

	if !strings.Contains(filepath.ToSlash(in.FilePath), "/memory/") {
		return Outcome{ExitCode: hookio.ExitAllow}, nil
	}

	if strings.ToLower(filepath.Ext(in.FilePath)) != ".md" {
		return Outcome{
			ExitCode: hookio.ExitBlock,
			Records: []hookio.ControlRecord{{
				Decision: "block",
				Reason:   "memory artifacts must be markdown (.md): " + in.FilePath,
			}},
		}, nil
	}
	return Outcome{ExitCode: hookio.ExitAllow}, nil
}
