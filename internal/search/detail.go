package search

// DetailLevel controls how much of a result is rendered, shared
// between the interactive terminal preview (§4.6.9) and the MCP tool
// surface (SPEC_FULL §3 progressive disclosure supplement).
type DetailLevel string

const (
	DetailSummary  DetailLevel = "summary"
	DetailStandard DetailLevel = "standard"
	DetailFull     DetailLevel = "full"
)

// DetailLevelValues lists the enum values for MCP tool definitions.
func DetailLevelValues() []string {
	return []string{string(DetailSummary), string(DetailStandard), string(DetailFull)}
}

// ParseDetailLevel normalizes a detail_level string, defaulting to
// DetailStandard for empty or unrecognized values.
func ParseDetailLevel(s string) DetailLevel {
	switch DetailLevel(s) {
	case DetailSummary, DetailFull:
		return DetailLevel(s)
	default:
		return DetailStandard
	}
}

// RenderDetail renders a single result at the given detail level:
// summary is the title only, standard truncates the snippet, full
// includes the entire snippet untouched.
func RenderDetail(r Scored, level DetailLevel) string {
	switch level {
	case DetailSummary:
		return r.Title
	case DetailFull:
		return r.Title + "\n" + r.Snippet
	default:
		return r.Title + "\n" + truncate(r.Snippet, 200)
	}
}
