// Package signal implements the Signal Codec (spec §4.2): encoding and
// decoding of the structured control records a hook prints on its
// designated stdout slot, plus the exit-code side channel.
//
// Decoding uses a fast jsonparser pre-scan to classify which of the three
// shapes a line carries before committing to a full json.Unmarshal — the
// Dispatcher processes one line per hook per event and the classification
// step is on the hot path of every tool call.
package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/opencode-dev/kernel/internal/hookio"
)

// Kind classifies a decoded control record.
type Kind int

const (
	KindNone Kind = iota
	KindSystemMessage
	KindDecision
	KindMandatoryQuestion
)

// InvalidSignal is returned when a line cannot be classified or decoded
// (spec §7); callers should log it and fall back to honoring the hook's
// exit code alone.
type InvalidSignal struct {
	Line  string
	Cause error
}

func (e *InvalidSignal) Error() string {
	return fmt.Sprintf("signal: invalid control record %q: %v", e.Line, e.Cause)
}

func (e *InvalidSignal) Unwrap() error { return e.Cause }

// Classify inspects one line of stdout and reports which control-record
// shape it carries, without fully decoding it. A line that parses as JSON
// but has none of the three recognized top-level keys yields KindNone. A
// recognized key whose value is malformed still classifies by that key,
// so Decode reports the line as an *InvalidSignal.
func Classify(line []byte) Kind {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return KindNone
	}
	if _, _, _, err := jsonparser.Get(line, "signal"); err != jsonparser.KeyPathNotFoundError {
		return KindMandatoryQuestion
	}
	if _, _, _, err := jsonparser.Get(line, "decision"); err != jsonparser.KeyPathNotFoundError {
		return KindDecision
	}
	if _, _, _, err := jsonparser.Get(line, "systemMessage"); err != jsonparser.KeyPathNotFoundError {
		return KindSystemMessage
	}
	return KindNone
}

// Decode fully parses one line into a ControlRecord. It returns
// (zero, KindNone, nil) for a blank line (no signal emitted), and an
// *InvalidSignal error for malformed JSON.
func Decode(line []byte) (hookio.ControlRecord, Kind, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return hookio.ControlRecord{}, KindNone, nil
	}

	kind := Classify(trimmed)
	if kind == KindNone {
		// Not JSON, or JSON without a recognized key: plain free text,
		// which is not this codec's concern (context injection, §4.2(3)).
		return hookio.ControlRecord{}, KindNone, nil
	}

	var rec hookio.ControlRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return hookio.ControlRecord{}, KindNone, &InvalidSignal{Line: string(trimmed), Cause: err}
	}
	return rec, kind, nil
}

// EncodeSystemMessage renders a JSON-safe {"systemMessage": "..."} line.
// Callers must never hand-interpolate dynamic text into a signal line;
// always route it through one of the Encode* functions so control
// characters and quotes are escaped by the JSON encoder, not by hand.
func EncodeSystemMessage(msg string) ([]byte, error) {
	return marshalLine(hookio.ControlRecord{SystemMessage: msg})
}

// EncodeBlock renders a JSON-safe {"decision":"block","reason":"..."} line.
func EncodeBlock(reason string) ([]byte, error) {
	return marshalLine(hookio.ControlRecord{Decision: "block", Reason: reason})
}

// EncodeMandatoryQuestion renders a JSON-safe MANDATORY_QUESTION signal line.
func EncodeMandatoryQuestion(qType hookio.QuestionType, question string, options []hookio.QuestionOption) ([]byte, error) {
	return marshalLine(hookio.ControlRecord{
		Signal:   "MANDATORY_QUESTION",
		Type:     qType,
		Question: question,
		Options:  options,
		Blocking: true,
	})
}

func marshalLine(rec hookio.ControlRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("signal: encode control record: %w", err)
	}
	return append(data, '\n'), nil
}
