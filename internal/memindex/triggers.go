package memindex

import (
	"regexp"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TriggerCache is the in-memory phrase -> memory-id index described in
// spec §4.5 ("triggers are stored both as a JSON list on the row and as
// a separate in-memory cache keyed by phrase for O(1) trigger lookup").
// It uses an ordered map so cache rebuilds are deterministic and the
// phrase set stays an ordered set, matching §3.6's
// "trigger_phrases (ordered set of strings)".
type TriggerCache struct {
	mu    sync.RWMutex
	byPhrase *orderedmap.OrderedMap[string, []int64]
}

// NewTriggerCache returns an empty cache.
func NewTriggerCache() *TriggerCache {
	return &TriggerCache{byPhrase: orderedmap.New[string, []int64]()}
}

// Rebuild replaces the cache's contents from the given rows, in
// ascending memory-id order. Rebuilds are idempotent: rebuilding from the same rows
// twice produces the same cache (spec §4.5 invariant).
func (c *TriggerCache) Rebuild(rows map[int64][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPhrase = orderedmap.New[string, []int64]()

	// Iterate memory ids in ascending order so phrase insertion order
	// is stable across rebuilds regardless of map iteration order.
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sortInt64s(ids)

	for _, id := range ids {
		for _, phrase := range rows[id] {
			key := strings.ToLower(phrase)
			existing, ok := c.byPhrase.Get(key)
			if !ok {
				c.byPhrase.Set(key, []int64{id})
			} else {
				c.byPhrase.Set(key, append(existing, id))
			}
		}
	}
}

func sortInt64s(xs []int64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// Phrases returns the full ordered set of cached phrases.
func (c *TriggerCache) Phrases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, c.byPhrase.Len())
	for pair := c.byPhrase.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// TriggerMatch is one matched trigger phrase and the memory it belongs to.
type TriggerMatch struct {
	MemoryID int64
	Phrase   string
}

func wordBoundaryPattern(phrase string) *regexp.Regexp {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	// A single intervening whitespace character joins multi-word phrases;
	// concatenated words (no whitespace) must not match (spec §4.6.3).
	pattern := `(?i)\b` + strings.Join(words, `\s`) + `\b`
	return regexp.MustCompile(pattern)
}

// Match scans prompt for every cached trigger phrase using
// case-insensitive word-boundary matching (spec §4.6.3): multi-word
// phrases require the exact sequence with single intervening
// whitespace; concatenated words must not match.
func (c *TriggerCache) Match(prompt string) []TriggerMatch {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []TriggerMatch
	for pair := c.byPhrase.Oldest(); pair != nil; pair = pair.Next() {
		re := wordBoundaryPattern(pair.Key)
		if re.MatchString(prompt) {
			for _, id := range pair.Value {
				matches = append(matches, TriggerMatch{MemoryID: id, Phrase: pair.Key})
			}
		}
	}
	return matches
}
