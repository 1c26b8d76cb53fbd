package search

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// SupportsColor reports whether the current process should emit ANSI
// color codes: a TTY, NO_COLOR unset, and TERM not "dumb" (spec
// §4.6.9 Preview).
func SupportsColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

const (
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// NarrowWidth is the column threshold below which preview cards render
// in the compact 2-line layout (spec §4.6.9 Preview).
const NarrowWidth = 60

// RenderCard renders one result as a 3-line card (header, metadata,
// snippet) in normal/wide layouts, or 2-line when width < NarrowWidth
// (spec §4.6.9 Preview). rank is 1-based.
func RenderCard(rank int, r Scored, width int, color bool) string {
	header := fmt.Sprintf("%d. [%.2f] %s", rank, r.Composite, r.Title)
	meta := fmt.Sprintf("%s | %s (%s) | %s", r.SpecFolder, r.CreatedAt.Format("2006-01-02"), humanize.Time(r.CreatedAt), tagsLabel(r.Tags))
	snippet := fmt.Sprintf("%q", truncate(r.Snippet, width))

	if color {
		header = ansiBold + header + ansiReset
		meta = ansiDim + meta + ansiReset
	}

	if width > 0 && width < NarrowWidth {
		return header + "\n" + snippet
	}
	return header + "\n" + meta + "\n" + snippet
}

func tagsLabel(tags []string) string {
	if len(tags) == 0 {
		return "no tags"
	}
	return strings.Join(tags, ", ")
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

// ActionsBar renders the "Actions:" bar with the primary key letter of
// each action underlined (spec §4.6.9 Preview); underlining is
// represented with ANSI underline when color is enabled, brackets
// otherwise.
func ActionsBar(labels []string, color bool) string {
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		if label == "" {
			continue
		}
		key := label[:1]
		rest := label[1:]
		if color {
			parts = append(parts, "\x1b[4m"+key+"\x1b[0m"+rest)
		} else {
			parts = append(parts, "["+key+"]"+rest)
		}
	}
	return "Actions: " + strings.Join(parts, "  ")
}
