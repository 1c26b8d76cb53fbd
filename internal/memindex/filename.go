package memindex

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

var topicSanitizer = regexp.MustCompile(`[^a-z0-9_-]+`)

// SlugifyTopic normalizes a memory's title into the filesystem-safe
// <topic> segment of its filename (spec §6.4).
func SlugifyTopic(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	lower = strings.ReplaceAll(lower, " ", "_")
	slug := topicSanitizer.ReplaceAllString(lower, "")
	slug = strings.Trim(slug, "_-")
	if slug == "" {
		slug = "memory"
	}
	return slug
}

// ArtifactFilename renders a memory file's name in the fixed
// DD-MM-YY_HH-MM__<topic>.md pattern (spec §6.4), using go-strftime for
// the date portion since Go's time package has no strftime-style
// directives and the pattern is not expressible with time.Format's
// reference-date syntax without a lookup table.
func ArtifactFilename(createdAt time.Time, title string) string {
	stamp := strftime.Format("%d-%m-%y_%H-%M", createdAt.UTC())
	return stamp + "__" + SlugifyTopic(title) + ".md"
}

// ArtifactPath returns the absolute path a memory for specFolder with
// the given creation time and title would be written to (spec §6.4:
// specs/<spec_folder>/memory/<filename>).
func ArtifactPath(specsRoot, specFolder string, createdAt time.Time, title string) string {
	return filepath.Join(specsRoot, specFolder, "memory", ArtifactFilename(createdAt, title))
}
