package search

import (
	"regexp"
	"strings"

	"github.com/opencode-dev/kernel/internal/memindex"
)

// headerAliasTable maps normalized header strings to a canonical anchor
// category, used by the extract() fallback chain's final stage (spec
// §4.6.8).
var headerAliasTable = map[string]memindex.AnchorCategory{
	"overview":     memindex.CategorySummary,
	"summary":      memindex.CategorySummary,
	"key decisions": memindex.CategoryDecision,
	"decisions":    memindex.CategoryDecision,
	"implementation": memindex.CategoryImplementation,
	"architecture": memindex.CategoryArchitecture,
	"guide":        memindex.CategoryGuide,
	"discovery":    memindex.CategoryDiscovery,
	"integration":  memindex.CategoryIntegration,
	"files":        memindex.CategoryFiles,
}

// ExtractResult is the outcome of Extract: either a matched section
// body, or a miss carrying the anchors that were available (spec
// §4.6.8).
type ExtractResult struct {
	Found     bool
	Section   string
	Available []memindex.Anchor
}

// Extract implements the anchor extraction fallback chain (spec
// §4.6.8): exact anchor-id match, then canonical-id substring match
// (e.g. "decisions" -> any anchor whose id contains "decision"), then
// header-string mapping via headerAliasTable.
func Extract(m memindex.Memory, anchor string) ExtractResult {
	if section, ok := memindex.ExtractByExactID(m.Content, anchor); ok {
		return ExtractResult{Found: true, Section: section}
	}

	canonical := canonicalize(anchor)
	for _, a := range m.Anchors {
		if strings.Contains(a.ID, canonical) {
			if section, ok := memindex.ExtractByExactID(m.Content, a.ID); ok {
				return ExtractResult{Found: true, Section: section}
			}
		}
	}

	if category, ok := headerAliasTable[strings.ToLower(strings.TrimSpace(anchor))]; ok {
		for _, a := range m.Anchors {
			if a.Category == category {
				if section, ok := memindex.ExtractByExactID(m.Content, a.ID); ok {
					return ExtractResult{Found: true, Section: section}
				}
			}
		}
	}

	return ExtractResult{Found: false, Available: m.Anchors}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// canonicalize strips a user-supplied anchor reference down to its
// alphanumeric core for the canonical-id substring match stage, then
// drops one trailing "s" (e.g. "decisions" -> "decision"), whether or
// not the result is a known category keyword.
func canonicalize(s string) string {
	lower := nonAlnum.ReplaceAllString(strings.ToLower(s), "")
	lower = strings.TrimSuffix(lower, "s")
	return lower
}
