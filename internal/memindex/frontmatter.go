package memindex

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the optional YAML header a memory markdown file may
// lead with, used to attach tags (spec §4.6.9 "tag:<string>" filter
// atom; §8 filter-parsing example expects tags to be a real attribute).
type frontmatter struct {
	Tags []string `yaml:"tags"`
}

// StripFrontmatter splits content into its declared tags (if any) and
// the body with the leading "---"-delimited frontmatter block removed.
// Content with no frontmatter block is returned unchanged with a nil
// tag list.
func StripFrontmatter(content string) ([]string, string) {
	const delim = "---"
	if !strings.HasPrefix(content, delim) {
		return nil, content
	}
	rest := content[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end == -1 {
		return nil, content
	}
	block := strings.TrimPrefix(rest[:end], "\n")
	body := strings.TrimPrefix(rest[end+1+len(delim):], "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, content
	}
	return fm.Tags, body
}
