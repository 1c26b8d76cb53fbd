// Package dispatch implements the Hook Dispatcher (spec §4.3): the
// lifecycle-point router that loads a point's ordered hook set, invokes
// each hook within its declared wall-clock budget, and composes their
// outcomes into a single verdict returned to the host.
package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opencode-dev/kernel/internal/config"
	"github.com/opencode-dev/kernel/internal/hookio"
	"github.com/opencode-dev/kernel/internal/kernellog"
	"github.com/opencode-dev/kernel/internal/signal"
)

// Outcome is what a single hook invocation produced.
type Outcome struct {
	ExitCode hookio.ExitCode
	Records  []hookio.ControlRecord
	Context  string // plain stdout, meaningful only at prompt_submit
	Warning  bool   // crashed, timed out, or emitted an invalid signal
	Slow     bool
}

// Builtin is a hook implemented in-process rather than as an external
// executable, resolved from a "builtin://<name>" hook path.
type Builtin func(ctx context.Context, event hookio.Event) (Outcome, error)

// Registry resolves builtin hook names to their implementations, and
// external hook specs to an exec.Cmd-backed runner.
type Registry struct {
	Builtins map[string]Builtin
}

// NewRegistry returns a Registry pre-populated with the kernel's built-in
// pre_tool hooks (spec §4.3, §4.4): pending_question_gate,
// validate_bash, enforce_markdown_pre.
func NewRegistry(gate Builtin, validateBash Builtin, enforceMarkdown Builtin) *Registry {
	return &Registry{Builtins: map[string]Builtin{
		"pending_question_gate": gate,
		"validate_bash":         validateBash,
		"enforce_markdown_pre":  enforceMarkdown,
	}}
}

const builtinScheme = "builtin://"

func (r *Registry) resolve(spec config.HookSpec) (Builtin, bool) {
	if !strings.HasPrefix(spec.Path, builtinScheme) {
		return nil, false
	}
	name := strings.TrimPrefix(spec.Path, builtinScheme)
	fn, ok := r.Builtins[name]
	return fn, ok
}

// Dispatcher routes lifecycle events to their registered hook sets.
type Dispatcher struct {
	registry *Registry
}

// New creates a Dispatcher backed by registry.
func New(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Verdict is the combined result of running every hook at a lifecycle
// point, as returned to the host.
type Verdict struct {
	Allow            bool
	BlockReason      string
	SystemMessages   []string
	ContextText      string
	SkippedRemaining bool
}

// RegistrationUnavailable is returned by Run when the hook set for a
// point could not be loaded at all (config read/parse failure). Per
// spec §7 the Dispatcher then proceeds as if no hooks were registered,
// EXCEPT at pre_tool, where it fails closed.
type RegistrationUnavailable struct {
	Point hookio.Point
	Cause error
}

func (e *RegistrationUnavailable) Error() string {
	return fmt.Sprintf("dispatch: hook registration unavailable for %s: %v", e.Point, e.Cause)
}

func (e *RegistrationUnavailable) Unwrap() error { return e.Cause }

// Run loads the ordered hook set for point from reg, invokes each hook
// against event, and composes the combined verdict (spec §4.3 steps 1-5).
// regErr, when non-nil, signals that hook-set loading itself failed
// (distinct from an empty-but-valid hook set).
func (d *Dispatcher) Run(ctx context.Context, point hookio.Point, reg config.Registration, regErr error, event hookio.Event) Verdict {
	if regErr != nil {
		kernellog.Error("dispatch: registration unavailable for %s: %v", point, regErr)
		if point == hookio.PreTool {
			return Verdict{Allow: false, BlockReason: "hook registration unavailable; failing closed for pre_tool"}
		}
		return Verdict{Allow: true}
	}

	hooks := reg.HooksFor(point)
	if point == hookio.PreTool {
		hooks = gateFirst(hooks)
	}

	verdict := Verdict{Allow: true}
	for _, spec := range hooks {
		outcome, err := d.invoke(ctx, spec, event)
		if err != nil {
			kernellog.Warn("dispatch: hook %q at %s failed: %v", spec.Name, point, err)
			if point == hookio.PreTool && spec.FailClosed {
				verdict.Allow = false
				verdict.BlockReason = fmt.Sprintf("hook %q failed and is fail_closed: %v", spec.Name, err)
				return verdict
			}
			continue // treated as warning: allow, proceed to next hook
		}

		for _, rec := range outcome.Records {
			if rec.SystemMessage != "" {
				verdict.SystemMessages = append(verdict.SystemMessages, rec.SystemMessage)
			}
		}
		if outcome.Context != "" && point == hookio.PromptSubmit {
			verdict.ContextText += outcome.Context
		}

		switch {
		case outcome.ExitCode == hookio.ExitBlock || hasBlockDecision(outcome.Records):
			if point == hookio.PostTool || point == hookio.PreSessionStart || point == hookio.PostSessionEnd || point == hookio.PreCompact {
				// These points are advisory-only or non-blocking by design;
				// a block decision is logged but cannot veto anything.
				kernellog.Warn("dispatch: hook %q emitted a block decision at non-blocking point %s; ignored", spec.Name, point)
				continue
			}
			verdict.Allow = false
			verdict.BlockReason = blockReason(outcome.Records, spec.Name)
			return verdict

		case outcome.ExitCode == hookio.ExitSkipRemaining:
			verdict.SkippedRemaining = true
			return verdict

		case outcome.ExitCode == hookio.ExitWarning:
			kernellog.Warn("dispatch: hook %q returned warning", spec.Name)
		}
	}

	return verdict
}

const gateBuiltinPath = builtinScheme + "pending_question_gate"

// gateFirst moves the pending_question_gate hook to the front of
// pre_tool's hook set, if registered, so it runs first and
// unconditionally regardless of how hooks.yaml orders the list (spec
// §4.4: the gate "runs first and unconditionally").
func gateFirst(hooks []config.HookSpec) []config.HookSpec {
	for i, h := range hooks {
		if h.Path != gateBuiltinPath {
			continue
		}
		if i == 0 {
			return hooks
		}
		out := make([]config.HookSpec, 0, len(hooks))
		out = append(out, h)
		out = append(out, hooks[:i]...)
		out = append(out, hooks[i+1:]...)
		return out
	}
	return hooks
}

func hasBlockDecision(records []hookio.ControlRecord) bool {
	for _, r := range records {
		if r.IsBlock() {
			return true
		}
	}
	return false
}

func blockReason(records []hookio.ControlRecord, hookName string) string {
	for _, r := range records {
		if r.IsBlock() && r.Reason != "" {
			return r.Reason
		}
	}
	return fmt.Sprintf("blocked by %q", hookName)
}

// invoke runs a single hook (builtin or external) within its declared
// budget, returning an error for any failure the caller must decide how
// to treat (crash, timeout, invalid signal).
func (d *Dispatcher) invoke(ctx context.Context, spec config.HookSpec, event hookio.Event) (Outcome, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, spec.Budget())
	defer cancel()

	if fn, ok := d.registry.resolve(spec); ok {
		return d.invokeBuiltin(budgetCtx, fn, event, spec.Budget())
	}
	return d.invokeExternal(budgetCtx, spec, event)
}

func (d *Dispatcher) invokeBuiltin(ctx context.Context, fn Builtin, event hookio.Event, budget time.Duration) (Outcome, error) {
	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := fn(ctx, event)
		done <- result{o, err}
	}()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-ctx.Done():
		return Outcome{Warning: true, Slow: true}, fmt.Errorf("budget exceeded (%s): %w", humanize.RelTime(time.Now().Add(-budget), time.Now(), "ago", "from now"), ctx.Err())
	}
}

func (d *Dispatcher) invokeExternal(ctx context.Context, spec config.HookSpec, event hookio.Event) (Outcome, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal event for hook %q: %w", spec.Name, err)
	}

	cmd := exec.CommandContext(ctx, spec.Path)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return Outcome{Warning: true, Slow: true}, fmt.Errorf("hook %q exceeded its budget", spec.Name)
	}

	exitCode := hookio.ExitAllow
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = hookio.ExitCode(exitErr.ExitCode())
		} else {
			return Outcome{Warning: true}, fmt.Errorf("hook %q crashed: %w", spec.Name, runErr)
		}
	}

	outcome := Outcome{ExitCode: exitCode}
	scanner := bufio.NewScanner(&stdout)
	var plain []string
	for scanner.Scan() {
		line := scanner.Bytes()
		rec, kind, err := signal.Decode(line)
		if err != nil {
			kernellog.Warn("dispatch: hook %q emitted invalid signal: %v", spec.Name, err)
			continue
		}
		if kind == signal.KindNone {
			plain = append(plain, string(line))
			continue
		}
		outcome.Records = append(outcome.Records, rec)
	}
	outcome.Context = strings.Join(plain, "\n")

	if exitCode >= 2 && exitCode != hookio.ExitWarning && exitCode != hookio.ExitSkipRemaining {
		return outcome, fmt.Errorf("hook %q exited with host-visible error code %d", spec.Name, exitCode)
	}

	return outcome, nil
}
