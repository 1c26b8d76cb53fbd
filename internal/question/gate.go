package question

import (
	"context"
	"fmt"

	"github.com/opencode-dev/kernel/internal/dispatch"
	"github.com/opencode-dev/kernel/internal/hookio"
	"github.com/opencode-dev/kernel/internal/state"
)

// NewGate returns the built-in pending_question_gate hook (spec §4.4):
// on every pre_tool invocation before the user has answered, it blocks
// every tool except QuestionAnsweringTool while a fresh pending question
// exists.
func NewGate(store *state.Store) dispatch.Builtin {
	return func(_ context.Context, event hookio.Event) (dispatch.Outcome, error) {
		namespace := state.SanitizeSessionID(event.SessionID)

		pending, ok := ReadPending(store, namespace)
		if !ok {
			return dispatch.Outcome{ExitCode: hookio.ExitAllow}, nil
		}
		if event.ToolName == QuestionAnsweringTool {
			return dispatch.Outcome{ExitCode: hookio.ExitAllow}, nil
		}

		reason := fmt.Sprintf("a mandatory question (%s) is pending and must be answered before any other tool runs: %q",
			pending.Type, pending.Text)
		return dispatch.Outcome{
			ExitCode: hookio.ExitBlock,
			Records: []hookio.ControlRecord{{
				Decision: "block",
				Reason:   reason,
			}},
		}, nil
	}
}
