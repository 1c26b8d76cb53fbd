package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencode-dev/kernel/internal/hookio"
)

func TestLoadRegistrationOrderingPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.yaml")
	doc := `
points:
  pre_tool:
    - name: pending_question_gate
      path: builtin://pending_question_gate
      budget_ms: 50
      fail_closed: true
      enabled: true
    - name: validate_bash
      path: builtin://validate_bash
      budget_ms: 100
      fail_closed: true
      enabled: true
    - name: scope_growth
      path: /hooks/scope_growth.sh
      budget_ms: 150
      fail_closed: false
      enabled: false
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg, err := LoadRegistration(path)
	if err != nil {
		t.Fatalf("LoadRegistration: %v", err)
	}

	hooks := reg.HooksFor(hookio.PreTool)
	if len(hooks) != 2 {
		t.Fatalf("expected 2 enabled hooks, got %d: %+v", len(hooks), hooks)
	}
	if hooks[0].Name != "pending_question_gate" || hooks[1].Name != "validate_bash" {
		t.Errorf("order not preserved: %+v", hooks)
	}
	if !hooks[0].FailClosed {
		t.Errorf("expected pending_question_gate to be fail_closed")
	}
}

func TestHookSpecBudgetDefault(t *testing.T) {
	h := HookSpec{}
	if h.Budget() != 200*time.Millisecond {
		t.Errorf("Budget() = %v, want 200ms default", h.Budget())
	}
	h.BudgetMS = 50
	if h.Budget() != 50*time.Millisecond {
		t.Errorf("Budget() = %v, want 50ms", h.Budget())
	}
}

func TestDefaultKernelRootsUnderHome(t *testing.T) {
	cfg := DefaultKernel()
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".opencode", "state")
	if cfg.StateRoot != want {
		t.Errorf("StateRoot = %q, want %q", cfg.StateRoot, want)
	}
}

func TestIntFromEnv(t *testing.T) {
	t.Setenv("KERNEL_TEST_INT", "42")
	if got := IntFromEnv("KERNEL_TEST_INT", 7); got != 42 {
		t.Errorf("IntFromEnv = %d, want 42", got)
	}
	if got := IntFromEnv("KERNEL_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("IntFromEnv default = %d, want 7", got)
	}
}

func TestBoolFromEnv(t *testing.T) {
	t.Setenv("KERNEL_TEST_BOOL", "true")
	if got := BoolFromEnv("KERNEL_TEST_BOOL", false); !got {
		t.Errorf("BoolFromEnv = %v, want true", got)
	}
}
