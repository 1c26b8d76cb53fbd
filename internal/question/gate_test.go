package question

import (
	"context"
	"strings"
	"testing"

	"github.com/opencode-dev/kernel/internal/hookio"
)

func TestGateBlocksWhilePendingThenAllowsAnswerTool(t *testing.T) {
	s := newTestStore(t)
	gate := NewGate(s)

	_, err := EmitQuestion(s, "sess-1", hookio.QuestionTaskChange, "diverged a lot", nil)
	if err != nil {
		t.Fatalf("EmitQuestion: %v", err)
	}

	out, err := gate(context.Background(), hookio.Event{SessionID: "sess-1", ToolName: "Read"})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if out.ExitCode != hookio.ExitBlock {
		t.Fatalf("expected block, got %+v", out)
	}
	if len(out.Records) != 1 || !strings.Contains(out.Records[0].Reason, "TASK_CHANGE") {
		t.Errorf("expected reason to mention TASK_CHANGE, got %+v", out.Records)
	}

	out, err = gate(context.Background(), hookio.Event{SessionID: "sess-1", ToolName: QuestionAnsweringTool})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if out.ExitCode != hookio.ExitAllow {
		t.Errorf("expected allow for question-answering tool, got %+v", out)
	}
}

func TestGateAllowsWhenNoPendingQuestion(t *testing.T) {
	s := newTestStore(t)
	gate := NewGate(s)

	out, err := gate(context.Background(), hookio.Event{SessionID: "sess-1", ToolName: "Read"})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if out.ExitCode != hookio.ExitAllow {
		t.Errorf("expected allow, got %+v", out)
	}
}

func TestGateReleasesAfterTTLExpiry(t *testing.T) {
	s := newTestStore(t)
	gate := NewGate(s)

	_, _ = EmitQuestion(s, "sess-1", hookio.QuestionTaskChange, "diverged", nil)
	// Simulate TTL lapse by clearing directly, mirroring the "withdrawn,
	// not answered" semantics of spec §4.4 cancellation.
	_ = ClearPending(s, "sess-1")

	out, err := gate(context.Background(), hookio.Event{SessionID: "sess-1", ToolName: "Read"})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if out.ExitCode != hookio.ExitAllow {
		t.Errorf("expected allow once pending question withdrawn, got %+v", out)
	}
}
