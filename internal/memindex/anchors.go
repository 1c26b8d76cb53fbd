package memindex

import (
	"fmt"
	"regexp"
	"strings"
)

// categoryKeywords is the heuristic the content analyzer uses to assign
// a section to one of the eight fixed categories (spec §3.6). When a
// section's header/body keywords match more than one category, the
// highest-priority match wins (CategoryPriority, spec §3.6).
var categoryKeywords = map[AnchorCategory][]string{
	CategoryDecision:       {"decision", "decided", "chose", "tradeoff", "rationale"},
	CategoryImplementation: {"implementation", "implement", "code", "function", "algorithm"},
	CategoryGuide:          {"guide", "how to", "usage", "walkthrough", "tutorial"},
	CategoryArchitecture:   {"architecture", "design", "component", "system", "layer"},
	CategoryDiscovery:      {"discovery", "found", "learned", "investigation", "root cause"},
	CategoryIntegration:    {"integration", "api", "external", "third-party", "webhook"},
	CategoryFiles:          {"files", "file list", "touched", "changed files"},
	CategorySummary:        {"summary", "overview", "recap", "tl;dr"},
}

// classifySection returns the best-matching category for a section's
// header and body text, defaulting to CategorySummary when nothing
// matches — the lowest-priority, most general category.
func classifySection(header, body string) AnchorCategory {
	lower := strings.ToLower(header + "\n" + body)

	best := CategorySummary
	bestPriority := -1.0
	for cat, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				if p := CategoryPriority[cat]; p > bestPriority {
					bestPriority = p
					best = cat
				}
				break
			}
		}
	}
	return best
}

var headingPattern = regexp.MustCompile(`(?m)^(#{1,2})\s+(.+?)\s*$`)

type rawSection struct {
	title string
	start int // byte offset of the heading line
	end   int // byte offset where the section's content ends
}

func splitSections(content string) []rawSection {
	locs := headingPattern.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}

	sections := make([]rawSection, 0, len(locs))
	for i, loc := range locs {
		titleStart, titleEnd := loc[4], loc[5]
		sectionStart := loc[0]
		sectionEnd := len(content)
		if i+1 < len(locs) {
			sectionEnd = locs[i+1][0]
		}
		sections = append(sections, rawSection{
			title: content[titleStart:titleEnd],
			start: sectionStart,
			end:   sectionEnd,
		})
	}
	return sections
}

var slugStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "for": true,
	"to": true, "in": true, "on": true, "with": true, "how": true, "is": true,
}

var slugWordPattern = regexp.MustCompile(`[a-z0-9]+`)

// slugify picks the top 3 non-stop-word keywords from title and joins
// them with '-' (spec §4.5 anchor generation).
func slugify(title string) string {
	words := slugWordPattern.FindAllString(strings.ToLower(title), -1)
	var kept []string
	for _, w := range words {
		if len(w) < 2 || slugStopWords[w] {
			continue
		}
		kept = append(kept, w)
		if len(kept) == 3 {
			break
		}
	}
	if len(kept) == 0 {
		return "section"
	}
	return strings.Join(kept, "-")
}

// GenerateAnchors runs the content analyzer over a memory's markdown,
// producing one Anchor per H1/H2 section with a unique id and de-duped
// slug (spec §4.5 anchor generation, §3.6 invariant "anchor.id unique
// within an artifact").
func GenerateAnchors(content string) []Anchor {
	sections := splitSections(content)
	anchors := make([]Anchor, 0, len(sections))
	seen := map[string]int{}

	for i, sec := range sections {
		header := strings.TrimLeft(sec.title, "# ")
		category := classifySection(header, content[sec.start:sec.end])
		slug := slugify(header)
		id := fmt.Sprintf("%s-%s-%d", category, slug, i+1)

		if n, ok := seen[id]; ok {
			n++
			seen[id] = n
			id = fmt.Sprintf("%s-%d", id, n)
		} else {
			seen[id] = 1
		}

		anchors = append(anchors, Anchor{
			ID:       id,
			Category: category,
			Title:    header,
			OffsetRange: OffsetRange{
				Start: sec.start,
				End:   sec.end,
			},
		})
	}
	return anchors
}

// anchorCommentOpen/anchorCommentClose render the HTML comment pair a
// memory file's anchors are delimited by (spec §6.5).
func anchorCommentOpen(id string) string  { return fmt.Sprintf("<!-- anchor: %s -->", id) }
func anchorCommentClose(id string) string { return fmt.Sprintf("<!-- /anchor: %s -->", id) }

// RenderAnchorMarkup wraps a section body in its comment pair, ready to
// be written into a memory markdown file (spec §6.5).
func RenderAnchorMarkup(a Anchor, headerLine, body string) string {
	var b strings.Builder
	b.WriteString(anchorCommentOpen(a.ID))
	b.WriteByte('\n')
	b.WriteString(headerLine)
	b.WriteByte('\n')
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(anchorCommentClose(a.ID))
	b.WriteByte('\n')
	return b.String()
}

// AnnotateAnchors wraps every H1/H2 section of content in its anchor
// comment pair, preserving any preamble text before the first heading
// (spec §6.5). Content that already carries anchor markers is returned
// unchanged, so re-indexing an already-annotated file is a no-op rather
// than nesting comment pairs.
func AnnotateAnchors(content string) string {
	if strings.Contains(content, "<!-- anchor: ") {
		return content
	}
	sections := splitSections(content)
	if len(sections) == 0 {
		return content
	}
	anchors := GenerateAnchors(content)

	var b strings.Builder
	b.WriteString(content[:sections[0].start])
	for i, sec := range sections {
		body := content[sec.start:sec.end]
		headerLine, rest := body, ""
		if idx := strings.IndexByte(body, '\n'); idx != -1 {
			headerLine, rest = body[:idx], body[idx+1:]
		}
		b.WriteString(RenderAnchorMarkup(anchors[i], headerLine, rest))
	}
	return b.String()
}

var htmlCommentPattern = regexp.MustCompile(`<!--.*?-->`)

// ExtractByExactID locates the anchor comment pair with the given id,
// strips HTML comments, drops the leading header line, and returns the
// section body (spec §4.6.8 "exact anchor-id match"; §3.6 invariant
// "anchor round-trip").
func ExtractByExactID(content, anchorID string) (string, bool) {
	open := anchorCommentOpen(anchorID)
	closeTag := anchorCommentClose(anchorID)

	start := strings.Index(content, open)
	if start == -1 {
		return "", false
	}
	start += len(open)
	end := strings.Index(content[start:], closeTag)
	if end == -1 {
		return "", false
	}
	section := content[start : start+end]
	section = strings.TrimLeft(section, "\n")

	// Drop the leading header line.
	if idx := strings.IndexByte(section, '\n'); idx != -1 {
		section = section[idx+1:]
	} else {
		section = ""
	}

	section = htmlCommentPattern.ReplaceAllString(section, "")
	return strings.Trim(section, "\n"), true
}
