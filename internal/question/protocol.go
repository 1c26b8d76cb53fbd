// Package question implements the Question Protocol (spec §4.4): the
// multi-stage blocking state machine that spans a mandatory question's
// emission, the pre_tool gate that enforces it, and the host's eventual
// answer.
package question

import (
	"errors"
	"strings"
	"time"

	"github.com/opencode-dev/kernel/internal/hookio"
	"github.com/opencode-dev/kernel/internal/signal"
	"github.com/opencode-dev/kernel/internal/state"
)

// contentionBackoff is the single retry delay applied when a write hits
// lock contention (spec §7: "retried once with 100 ms backoff; second
// failure logged; hook treated as warning").
const contentionBackoff = 100 * time.Millisecond

// writeWithRetry writes once and, on *state.StateContention, retries a
// single time after contentionBackoff before giving up.
func writeWithRetry(store *state.Store, namespace, key string, value any, ttl time.Duration) error {
	err := store.Write(namespace, key, value, ttl)
	var contended *state.StateContention
	if errors.As(err, &contended) {
		time.Sleep(contentionBackoff)
		err = store.Write(namespace, key, value, ttl)
	}
	return err
}

// PendingQuestionTTL is the TTL of the single-slot pending-question
// record (spec §3.3).
const PendingQuestionTTL = 300 * time.Second

// SessionMarkerTTL is the auto-expiry of a session marker (spec §3.2).
const SessionMarkerTTL = 24 * time.Hour

// PendingQuestionKey is the State Store key the pending question is
// written under, always within a session namespace.
const PendingQuestionKey = "pending_question"

// SessionMarkerKey is the State Store key the session marker is written
// under.
const SessionMarkerKey = "session_marker"

// QuestionAnsweringTool is the one tool name exempt from the
// pending_question_gate (spec §4.4).
const QuestionAnsweringTool = "AnswerQuestion"

// Stage names the question protocol's progression (spec §4.4).
type Stage string

const (
	StageInitial        Stage = "initial"
	StageSpecFolder      Stage = "spec_folder"
	StageMemoryLoad      Stage = "memory_load"
	StageTaskChange      Stage = "task_change"
	StageDispatchChoice  Stage = "dispatch_choice"
	StageComplete        Stage = "complete"
)

var stageOrder = []Stage{
	StageInitial, StageSpecFolder, StageMemoryLoad, StageTaskChange, StageDispatchChoice, StageComplete,
}

// NextStage returns the stage that follows cur, or StageComplete if cur
// is already terminal or unrecognized.
func NextStage(cur Stage) Stage {
	for i, s := range stageOrder {
		if s == cur && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return StageComplete
}

// Pending is the persisted shape of §3.3.
type Pending struct {
	Type       hookio.QuestionType    `json:"type"`
	Text       string                 `json:"text"`
	Options    []hookio.QuestionOption `json:"options"`
	EmittedAt  time.Time              `json:"emitted_at"`
}

// Marker is the persisted shape of §3.2.
type Marker struct {
	SpecFolder string    `json:"spec_folder"`
	Keywords   []string  `json:"keywords"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmitQuestion performs both halves of emission (spec §4.4): it writes
// the pending-question record to the State Store (TTL 300s, at most one
// per session — a second emit overwrites per §3.3) and returns the
// encoded MANDATORY_QUESTION signal line the hook should print on its
// designated stdout slot.
func EmitQuestion(store *state.Store, sessionNamespace string, qType hookio.QuestionType, text string, options []hookio.QuestionOption) ([]byte, error) {
	p := Pending{Type: qType, Text: text, Options: options, EmittedAt: time.Now().UTC()}
	if err := writeWithRetry(store, sessionNamespace, PendingQuestionKey, p, PendingQuestionTTL); err != nil {
		return nil, err
	}
	return signal.EncodeMandatoryQuestion(qType, text, options)
}

// ReadPending returns the fresh pending question for a session, if any.
func ReadPending(store *state.Store, sessionNamespace string) (Pending, bool) {
	var p Pending
	ok, err := store.Read(sessionNamespace, PendingQuestionKey, 0, &p)
	if err != nil || !ok {
		return Pending{}, false
	}
	return p, true
}

// ClearPending removes the pending-question record (spec §4.4 "Clearing").
func ClearPending(store *state.Store, sessionNamespace string) error {
	return store.Clear(sessionNamespace, PendingQuestionKey)
}

// stageAnswerKey is the session-scoped key an answer to a given stage is
// recorded under.
func stageAnswerKey(stage Stage) string {
	return "stage_answer:" + string(stage)
}

// RecordAnswer records the user's choice for stage and clears the
// pending question — the only action that can clear the gate (spec
// §4.4 "Clearing").
func RecordAnswer(store *state.Store, sessionNamespace string, stage Stage, optionID string) error {
	if err := writeWithRetry(store, sessionNamespace, stageAnswerKey(stage), optionID, 0); err != nil {
		return err
	}
	return ClearPending(store, sessionNamespace)
}

// ReadAnswer returns the recorded answer for stage, if any.
func ReadAnswer(store *state.Store, sessionNamespace string, stage Stage) (string, bool) {
	var answer string
	ok, err := store.Read(sessionNamespace, stageAnswerKey(stage), 0, &answer)
	if err != nil {
		return "", false
	}
	return answer, ok
}

// ─── Session marker ──────────────────────────────────────────────────────

// WriteMarker creates or replaces the session marker.
func WriteMarker(store *state.Store, sessionNamespace string, m Marker) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return writeWithRetry(store, sessionNamespace, SessionMarkerKey, m, SessionMarkerTTL)
}

// ReadMarker returns the session marker if present and not auto-expired.
func ReadMarker(store *state.Store, sessionNamespace string) (Marker, bool) {
	var m Marker
	ok, err := store.Read(sessionNamespace, SessionMarkerKey, 0, &m)
	if err != nil || !ok {
		return Marker{}, false
	}
	return m, true
}

// ClearMarker removes the session marker (called at session end, spec §3.2).
func ClearMarker(store *state.Store, sessionNamespace string) error {
	return store.Clear(sessionNamespace, SessionMarkerKey)
}

// ─── Task-change divergence detection (spec §4.4) ───────────────────────

// explicitTriggers is the fixed list of unambiguous task-change phrases
// (spec §9 Open Questions resolution). Interrogative prompts never match,
// even if they contain one of these phrases, and a trailing "?" always
// cancels a match.
var explicitTriggers = []string{
	"new task", "switch to", "different task", "new feature", "new bug",
	"reset spec", "start fresh", "clear context", "work on something else",
	"different feature",
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "had": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "day": true, "get": true, "has": true,
	"him": true, "his": true, "how": true, "man": true, "new": true, "now": true,
	"old": true, "see": true, "two": true, "way": true, "who": true, "boy": true,
	"did": true, "its": true, "let": true, "put": true, "say": true, "she": true,
	"too": true, "use": true, "with": true, "this": true, "that": true, "have": true,
	"from": true, "they": true, "will": true, "would": true, "there": true, "their": true,
	"what": true, "about": true, "which": true, "when": true, "make": true, "like": true,
	"time": true, "just": true, "know": true, "take": true, "into": true, "your": true,
	"some": true, "could": true, "them": true, "than": true, "then": true, "were": true,
}

// Keywordize extracts up to 10 stop-word-filtered 3+ character tokens
// from text, preserving first-seen order with no duplicates.
func Keywordize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == 10 {
			break
		}
	}
	return out
}

// Jaccard computes 1 - |A∩B|/|A∪B| — the divergence measure of §4.4.
// Two empty sets are defined as fully divergent (no shared context).
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	union := make(map[string]bool, len(setA)+len(setB))
	for k := range setA {
		union[k] = true
	}
	for k := range setB {
		union[k] = true
	}
	if len(union) == 0 {
		return 1.0
	}

	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}

	return 1.0 - float64(intersection)/float64(len(union))
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

// Divergence thresholds (spec §4.4).
const (
	DivergenceSilent = 0.40
	DivergenceLog    = 0.60
)

// Divergence reports how much a new prompt's keyword set diverges from
// the session marker's stored keywords.
func Divergence(markerKeywords, promptKeywords []string) float64 {
	return Jaccard(markerKeywords, promptKeywords)
}

// isInterrogative reports whether prompt opens with an interrogative
// token followed by whitespace (spec §9: fixes the "is" / "issue:" bug
// by requiring the token be followed by whitespace, not just a prefix
// match).
func isInterrogative(prompt string) bool {
	trimmed := strings.TrimSpace(prompt)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(fields[0])
	switch first {
	case "is", "are", "was", "were", "do", "does", "did", "can", "could",
		"will", "would", "should", "what", "why", "how", "when", "where", "who":
		return true
	}
	return false
}

// ExplicitTaskChange reports whether prompt unambiguously signals a task
// change: it contains one of the fixed trigger phrases, is not
// interrogative, and does not end in "?" (spec §4.4, §9).
func ExplicitTaskChange(prompt string) bool {
	trimmed := strings.TrimSpace(prompt)
	if strings.HasSuffix(trimmed, "?") {
		return false
	}
	if isInterrogative(trimmed) {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range explicitTriggers {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// TaskChangeDecision is the outcome of evaluating one new prompt against
// the session marker (spec §4.4).
type TaskChangeDecision struct {
	Divergence float64
	Explicit   bool
	ShouldAsk  bool
	LogOnly    bool
}

// EvaluateTaskChange applies the §4.4 threshold table: explicit triggers
// bypass thresholds and always ask; otherwise divergence <= 0.40
// continues silently, 0.41-0.60 logs only, and > 0.60 asks.
func EvaluateTaskChange(markerKeywords []string, prompt string) TaskChangeDecision {
	if ExplicitTaskChange(prompt) {
		return TaskChangeDecision{Explicit: true, ShouldAsk: true, Divergence: 1.0}
	}

	promptKeywords := Keywordize(prompt)
	d := Divergence(markerKeywords, promptKeywords)

	switch {
	case d <= DivergenceSilent:
		return TaskChangeDecision{Divergence: d}
	case d <= DivergenceLog:
		return TaskChangeDecision{Divergence: d, LogOnly: true}
	default:
		return TaskChangeDecision{Divergence: d, ShouldAsk: true}
	}
}
