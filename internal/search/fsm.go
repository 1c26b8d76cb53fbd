package search

import (
	"errors"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// State is one of the interactive search state machine's states (spec
// §4.6.9).
type State string

const (
	StateIdle      State = "IDLE"
	StateResults   State = "RESULTS"
	StatePreview   State = "PREVIEW"
	StateFiltered  State = "FILTERED"
	StateClustered State = "CLUSTERED"
	StateLoad      State = "LOAD"
	StateExit      State = "EXIT"
)

// PageSize is the default results-per-page (spec §4.6.9).
const PageSize = 10

// ErrInvalidTransition is returned when an action is not permitted from
// the session's current state.
var ErrInvalidTransition = errors.New("search: invalid state transition")

// Session is the interactive search FSM's full mutable state (spec
// §3.8, §4.6.9).
type Session struct {
	ID         string
	State      State
	Query      string
	Results    []Scored // full, unfiltered, in rank order
	View       []Scored // currently visible (post-filter/cluster) results
	Page       int       // 0-based
	Filter     *Filter
	Clusters   []Cluster
	PreviewIdx int // index within View currently previewed
	LoadedIdx  int
}

// Cluster is one spec-folder bucket of results (spec §4.6.9
// Clustering).
type Cluster struct {
	Folder  string
	Results []Scored
}

// Action is a parsed action-line command (spec §4.6.9).
type Action struct {
	Kind string // "view","open","load","cluster","uncluster","filter","clear","next","prev","back","help","quit"
	N    int
	Expr string
}

// ParseAction parses a raw action line per spec §4.6.9's grammar:
// v N | o N | l N | c | u | f <expr> | clear | n | p | b | ? | q.
func ParseAction(raw string) (Action, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "clear":
		return Action{Kind: "clear"}, nil
	case lower == "c":
		return Action{Kind: "cluster"}, nil
	case lower == "u":
		return Action{Kind: "uncluster"}, nil
	case lower == "n":
		return Action{Kind: "next"}, nil
	case lower == "p":
		return Action{Kind: "prev"}, nil
	case lower == "b":
		return Action{Kind: "back"}, nil
	case lower == "?":
		return Action{Kind: "help"}, nil
	case lower == "q":
		return Action{Kind: "quit"}, nil
	case strings.HasPrefix(lower, "f "):
		return Action{Kind: "filter", Expr: strings.TrimSpace(trimmed[2:])}, nil
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 2 {
		n, err := cast.ToIntE(fields[1])
		if err != nil {
			return Action{}, ErrInvalidTransition
		}
		switch strings.ToLower(fields[0]) {
		case "v":
			return Action{Kind: "view", N: n}, nil
		case "o":
			return Action{Kind: "open", N: n}, nil
		case "l":
			return Action{Kind: "load", N: n}, nil
		}
	}
	return Action{}, ErrInvalidTransition
}

// transitions enumerates the permitted State -> action-kind -> State
// moves (spec §4.6.9). FILTERED/CLUSTERED delegate view/load/quit to
// RESULTS' behavior, handled in Apply.
var transitions = map[State]map[string]State{
	StateIdle:    {"search": StateResults},
	StateResults: {"view": StatePreview, "filter": StateFiltered, "cluster": StateClustered, "load": StateLoad, "quit": StateExit},
	StatePreview: {"back": StateResults, "load": StateLoad},
	StateFiltered: {
		"back": StateResults, "clear": StateResults,
		"view": StatePreview, "load": StateLoad, "quit": StateExit,
	},
	StateClustered: {
		"uncluster": StateResults,
		"view":      StatePreview, "load": StateLoad, "quit": StateExit,
	},
	StateLoad: {"done": StateExit, "back": StateResults},
}

// Apply executes action against the session, mutating it in place and
// returning the new state, or ErrInvalidTransition if the action is not
// permitted from the current state.
func (s *Session) Apply(action Action) (State, error) {
	allowed, ok := transitions[s.State]
	if !ok {
		return s.State, ErrInvalidTransition
	}
	next, ok := allowed[action.Kind]
	if !ok {
		return s.State, ErrInvalidTransition
	}

	switch action.Kind {
	case "view":
		s.PreviewIdx = action.N - 1
	case "open", "load":
		s.LoadedIdx = action.N - 1
	case "filter":
		f, err := ParseFilterExpression(action.Expr)
		if err != nil {
			return s.State, err
		}
		s.Filter = &f
		s.View = filterResults(s.Results, f)
		s.Page = 0
	case "clear":
		s.Filter = nil
		s.View = s.Results
		s.Page = 0
	case "cluster":
		s.Clusters = ClusterByFolder(s.View)
	case "uncluster":
		s.Clusters = nil
	}

	s.State = next
	return s.State, nil
}

func filterResults(results []Scored, f Filter) []Scored {
	var out []Scored
	for _, r := range results {
		if f.Matches(r.SpecFolder, r.CreatedAt, r.Tags) {
			out = append(out, r)
		}
	}
	return out
}

// ClusterByFolder buckets results by spec folder, sorted by count desc
// then name, preserving each cluster's internal rank order (spec
// §4.6.9 Clustering).
func ClusterByFolder(results []Scored) []Cluster {
	byFolder := map[string][]Scored{}
	var order []string
	for _, r := range results {
		if _, ok := byFolder[r.SpecFolder]; !ok {
			order = append(order, r.SpecFolder)
		}
		byFolder[r.SpecFolder] = append(byFolder[r.SpecFolder], r)
	}

	clusters := make([]Cluster, 0, len(order))
	for _, folder := range order {
		clusters = append(clusters, Cluster{Folder: folder, Results: byFolder[folder]})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i].Results) != len(clusters[j].Results) {
			return len(clusters[i].Results) > len(clusters[j].Results)
		}
		return clusters[i].Folder < clusters[j].Folder
	})
	return clusters
}

// ErrNoMoreResults and ErrAlreadyFirstPage are the pagination
// edge-case messages (spec §4.6.9 Pagination).
var (
	ErrNoMoreResults    = errors.New("No more results")
	ErrAlreadyFirstPage = errors.New("Already on first page")
)

// NextPage advances the session's page within View, or returns
// ErrNoMoreResults at the end.
func (s *Session) NextPage() error {
	maxPage := (len(s.View) - 1) / PageSize
	if s.Page >= maxPage {
		return ErrNoMoreResults
	}
	s.Page++
	return nil
}

// PrevPage retreats the session's page, or returns ErrAlreadyFirstPage.
func (s *Session) PrevPage() error {
	if s.Page == 0 {
		return ErrAlreadyFirstPage
	}
	s.Page--
	return nil
}

// CurrentPage returns the slice of View visible on the current page.
func (s *Session) CurrentPage() []Scored {
	start := s.Page * PageSize
	if start >= len(s.View) {
		return nil
	}
	end := start + PageSize
	if end > len(s.View) {
		end = len(s.View)
	}
	return s.View[start:end]
}
