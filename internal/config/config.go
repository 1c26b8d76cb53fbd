// Package config loads the kernel's two configuration surfaces: the hook
// registration document (spec §6.3) that tells the Dispatcher which
// executables to run at each lifecycle point, and the kernel-wide runtime
// configuration (state root, memory database path, search session
// directory).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/opencode-dev/kernel/internal/hookio"
)

// HookSpec describes one registered hook (spec §6.3).
type HookSpec struct {
	Name       string        `yaml:"name"`
	Path       string        `yaml:"path"`
	BudgetMS   int           `yaml:"budget_ms"`
	FailClosed bool          `yaml:"fail_closed"`
	Enabled    bool          `yaml:"enabled"`
}

// Budget returns the hook's declared wall-clock budget as a duration,
// defaulting to 200ms when unset (the upper bound the spec gives for
// validator-class hooks, §4.3).
func (h HookSpec) Budget() time.Duration {
	if h.BudgetMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(h.BudgetMS) * time.Millisecond
}

// Registration is the ordered hook set for every lifecycle point, decoded
// from a single YAML document. Order within each point's list is
// significant (spec §4.3).
type Registration struct {
	Points map[hookio.Point][]HookSpec `yaml:"points"`
}

// HooksFor returns the ordered, enabled hook set for a lifecycle point.
func (r Registration) HooksFor(point hookio.Point) []HookSpec {
	all := r.Points[point]
	out := make([]HookSpec, 0, len(all))
	for _, h := range all {
		if h.Enabled {
			out = append(out, h)
		}
	}
	return out
}

// LoadRegistration reads and decodes a hook registration document from path.
func LoadRegistration(path string) (Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Registration{}, fmt.Errorf("config: read registration %q: %w", path, err)
	}
	var reg Registration
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return Registration{}, fmt.Errorf("config: parse registration %q: %w", path, err)
	}
	return reg, nil
}

// Kernel holds the runtime configuration shared by the Dispatcher, the
// State Store, and the Memory subsystem.
type Kernel struct {
	StateRoot          string
	MemoryDataDir      string
	SearchSessionDir   string
	EmbeddingDimension int
	RegistrationPath   string
}

// DefaultKernel returns the default configuration, rooted under the
// user's home directory (spec §6.4).
func DefaultKernel() Kernel {
	home, _ := os.UserHomeDir()
	root := filepath.Join(home, ".opencode")
	return Kernel{
		StateRoot:          filepath.Join(root, "state"),
		MemoryDataDir:      filepath.Join(root, "memory"),
		SearchSessionDir:   filepath.Join(root, "search-sessions"),
		EmbeddingDimension: 1536,
		RegistrationPath:   filepath.Join(root, "hooks.yaml"),
	}
}

// IntFromEnv reads an environment variable as an int using lenient
// coercion, falling back to def when unset or unparseable. Used for the
// small number of runtime knobs that are convenient to flip without
// rewriting the YAML document (e.g. OPENCODE_SEARCH_PAGE_SIZE in tests).
func IntFromEnv(name string, def int) int {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return def
	}
	return v
}

// BoolFromEnv mirrors IntFromEnv for boolean runtime knobs.
func BoolFromEnv(name string, def bool) bool {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return def
	}
	return v
}
