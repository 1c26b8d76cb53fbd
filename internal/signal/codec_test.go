package signal

import (
	"testing"

	"github.com/opencode-dev/kernel/internal/hookio"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"system message", `{"systemMessage":"hi"}`, KindSystemMessage},
		{"decision", `{"decision":"block","reason":"no"}`, KindDecision},
		{"question", `{"signal":"MANDATORY_QUESTION","type":"TASK_CHANGE"}`, KindMandatoryQuestion},
		{"blank", "", KindNone},
		{"plain text", "just some context text", KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify([]byte(tt.line)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	line, err := EncodeBlock("TASK_CHANGE detected")
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	rec, kind, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindDecision {
		t.Errorf("kind = %v, want KindDecision", kind)
	}
	if !rec.IsBlock() {
		t.Errorf("expected IsBlock() true")
	}
	if rec.Reason != "TASK_CHANGE detected" {
		t.Errorf("reason = %q", rec.Reason)
	}
}

func TestDecodeInvalidSignal(t *testing.T) {
	_, _, err := Decode([]byte(`{"decision": not json}`))
	if err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
	var invalid *InvalidSignal
	if !errorsAs(err, &invalid) {
		t.Errorf("expected *InvalidSignal, got %T", err)
	}
}

func errorsAs(err error, target **InvalidSignal) bool {
	if e, ok := err.(*InvalidSignal); ok {
		*target = e
		return true
	}
	return false
}

func TestDecodeBlankLine(t *testing.T) {
	rec, kind, err := Decode([]byte("   \n"))
	if err != nil || kind != KindNone || rec != (hookio.ControlRecord{}) {
		t.Errorf("blank line should decode to zero value, got %+v kind=%v err=%v", rec, kind, err)
	}
}

func TestEncodeMandatoryQuestionEscapesDynamicText(t *testing.T) {
	line, err := EncodeMandatoryQuestion(hookio.QuestionTaskChange, `quote " and newline`+"\n", []hookio.QuestionOption{
		{ID: "continue", Label: "Continue"},
	})
	if err != nil {
		t.Fatalf("EncodeMandatoryQuestion: %v", err)
	}
	rec, kind, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindMandatoryQuestion || !rec.IsMandatoryQuestion() {
		t.Errorf("expected mandatory question, got kind=%v rec=%+v", kind, rec)
	}
	if rec.Question != `quote " and newline`+"\n" {
		t.Errorf("question text corrupted: %q", rec.Question)
	}
}
