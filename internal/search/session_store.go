package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SessionTTL is how long a persisted search session remains valid
// before it is treated as absent (spec §4.6.10).
const SessionTTL = time.Hour

// ErrSessionExpired is returned by Load when the session file exists
// but is past its TTL; the caller should treat the session as absent.
var ErrSessionExpired = errors.New("search: session expired")

// persistedSession is the on-disk shape of Session (spec §3.8),
// separate from Session itself so unexported fields and derived state
// (clusters, current view) are not duplicated on disk beyond what
// restoration needs.
type persistedSession struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Query     string    `json:"query"`
	Results   []Scored  `json:"results"`
	Page      int       `json:"page"`
	Filter    *Filter   `json:"filter,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// SessionStore persists interactive search sessions under
// ~/.opencode/search-sessions (spec §4.6.10), following the State
// Store's temp-file-then-rename atomic write idiom.
type SessionStore struct {
	dir string
	now func() time.Time
}

// NewSessionStore returns a SessionStore rooted at dir (0700), creating
// it if necessary.
func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("search: create session dir: %w", err)
	}
	return &SessionStore{dir: dir, now: time.Now}, nil
}

// NewSessionID generates a fresh session id (spec §4.6.10).
func NewSessionID() string {
	return uuid.NewString()
}

func (s *SessionStore) path(id string) string {
	return filepath.Join(s.dir, "session-"+id+".json")
}

// Save atomically persists sess under its own id with 0600 permissions
// (spec §4.6.10), called on every mutation.
func (s *SessionStore) Save(sess *Session) error {
	rec := persistedSession{
		ID:      sess.ID,
		State:   sess.State,
		Query:   sess.Query,
		Results: sess.Results,
		Page:    sess.Page,
		Filter:  sess.Filter,
		SavedAt: s.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("search: marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("search: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("search: write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("search: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("search: chmod session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(sess.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("search: rename session file: %w", err)
	}
	return nil
}

// Load restores a session by id, re-applying its stored filter and
// pagination (spec §4.6.10). A session past SessionTTL is deleted and
// ErrSessionExpired is returned.
func (s *SessionStore) Load(id string) (*Session, error) {
	path := s.path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec persistedSession
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("search: unmarshal session: %w", err)
	}

	if s.now().Sub(rec.SavedAt) > SessionTTL {
		_ = os.Remove(path)
		return nil, ErrSessionExpired
	}

	sess := &Session{
		ID:      rec.ID,
		State:   rec.State,
		Query:   rec.Query,
		Results: rec.Results,
		Page:    rec.Page,
		Filter:  rec.Filter,
	}
	if rec.Filter != nil {
		sess.View = filterResults(sess.Results, *rec.Filter)
	} else {
		sess.View = sess.Results
	}
	return sess, nil
}

// Delete removes a persisted session, ignoring a not-found error.
func (s *SessionStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
