package memindex

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var timeNow = time.Now

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory index configuration (spec §6: the store lives
// under the kernel's data root, one file per installation).
type Config struct {
	DataDir string
}

// DefaultConfig returns the default configuration for the memory index.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".opencode", "memory")}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent memory index backed by SQLite + FTS5 (spec
// §4.5), with DI hooks over exec/query/tx so tests can inject failures
// without a live database.
type Store struct {
	db      *sql.DB
	cfg     Config
	hooks   storeHooks
	trigger *TriggerCache
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	query   func(db queryer, query string, args ...any) (*sql.Rows, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(db execer, query string, args ...any) (sql.Result, error) {
			return db.Exec(query, args...)
		},
		query: func(db queryer, query string, args ...any) (*sql.Rows, error) {
			return db.Query(query, args...)
		},
		beginTx: func(db *sql.DB) (*sql.Tx, error) {
			return db.Begin()
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryHook(db queryer, query string, args ...any) (*sql.Rows, error) {
	if s.hooks.query != nil {
		return s.hooks.query(db, query, args...)
	}
	return db.Query(query, args...)
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a new Store, opening SQLite in WAL mode and running
// migrations, then warms the in-memory trigger cache from existing rows.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memindex: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "index.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memindex: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("memindex: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, hooks: defaultStoreHooks(), trigger: NewTriggerCache()}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memindex: migration: %w", err)
	}
	if err := s.warmTriggerCache(); err != nil {
		return nil, fmt.Errorf("memindex: warm trigger cache: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id                TEXT PRIMARY KEY,
			spec_folder       TEXT NOT NULL,
			file_path         TEXT NOT NULL UNIQUE,
			title             TEXT NOT NULL,
			content           TEXT NOT NULL,
			content_hash      TEXT NOT NULL,
			embedding         BLOB,
			trigger_phrases   TEXT NOT NULL DEFAULT '[]',
			tags              TEXT NOT NULL DEFAULT '[]',
			importance_weight REAL NOT NULL DEFAULT 0.5,
			access_count      INTEGER NOT NULL DEFAULT 0,
			last_accessed_at  TEXT,
			created_at        TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at        TEXT NOT NULL DEFAULT (datetime('now')),
			deleted_at        TEXT
		);

		CREATE TABLE IF NOT EXISTS anchors (
			id         TEXT NOT NULL,
			memory_id  TEXT NOT NULL,
			category   TEXT NOT NULL,
			title      TEXT NOT NULL,
			offset_start INTEGER NOT NULL,
			offset_end   INTEGER NOT NULL,
			PRIMARY KEY (memory_id, id)
		);

		CREATE TABLE IF NOT EXISTS history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id  TEXT NOT NULL,
			event      TEXT NOT NULL,
			prev       TEXT,
			new        TEXT,
			actor      TEXT,
			timestamp  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			title, content, content='memories', content_rowid='rowid'
		);
	`
	if _, err := s.execHook(s.db, schema); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	triggers := `
		CREATE TRIGGER IF NOT EXISTS mem_fts_insert AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
		END;
		CREATE TRIGGER IF NOT EXISTS mem_fts_delete AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
		END;
		CREATE TRIGGER IF NOT EXISTS mem_fts_update AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
			INSERT INTO memories_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
		END;
	`
	if _, err := s.execHook(s.db, triggers); err != nil {
		return fmt.Errorf("fts triggers: %w", err)
	}

	_, err := s.execHook(s.db, `CREATE INDEX IF NOT EXISTS idx_memories_spec_folder ON memories(spec_folder)`)
	return err
}

func (s *Store) warmTriggerCache() error {
	rows, err := s.queryHook(s.db, `SELECT rowid, trigger_phrases FROM memories WHERE deleted_at IS NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := map[int64][]string{}
	for rows.Next() {
		var rowid int64
		var raw string
		if err := rows.Scan(&rowid, &raw); err != nil {
			return err
		}
		var phrases []string
		if err := json.Unmarshal([]byte(raw), &phrases); err != nil {
			continue
		}
		byID[rowid] = phrases
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.trigger.Rebuild(byID)
	return nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ─── Index ───────────────────────────────────────────────────────────────────

// Index inserts a new memory or, when file_path already exists,
// upserts it: content is replaced, embedding is recomputed by the
// caller only when content_hash changed, and an "updated" history event
// is recorded (spec §4.5 index(memory) -> id).
func (s *Store) Index(in Input) (int64, error) {
	in.Content = AnnotateAnchors(in.Content)
	hash := contentHash(in.Content)
	now := timeNow().UTC().Format(time.RFC3339)

	var existingID int64
	var existingHash string
	err := s.db.QueryRow(`SELECT rowid, content_hash FROM memories WHERE file_path = ?`, in.FilePath).
		Scan(&existingID, &existingHash)

	triggersJSON, merr := json.Marshal(in.TriggerPhrases)
	if merr != nil {
		return 0, fmt.Errorf("memindex: marshal triggers: %w", merr)
	}
	tagsJSON, merr := json.Marshal(in.Tags)
	if merr != nil {
		return 0, fmt.Errorf("memindex: marshal tags: %w", merr)
	}
	embedding, merr := marshalEmbedding(in.Embedding)
	if merr != nil {
		return 0, fmt.Errorf("memindex: marshal embedding: %w", merr)
	}

	switch {
	case err == sql.ErrNoRows:
		res, err := s.execHook(s.db, `
			INSERT INTO memories (id, spec_folder, file_path, title, content, content_hash,
				embedding, trigger_phrases, tags, importance_weight, created_at, updated_at)
			VALUES (lower(hex(randomblob(16))), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, in.SpecFolder, in.FilePath, in.Title, in.Content, hash, embedding, string(triggersJSON), string(tagsJSON), in.ImportanceWeight, now, now)
		if err != nil {
			return 0, fmt.Errorf("memindex: insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("memindex: last insert id: %w", err)
		}
		if err := s.recordHistory(id, EventCreated, "", "", ""); err != nil {
			return 0, err
		}
		s.refreshTriggerEntry(id, in.TriggerPhrases)
		return id, nil

	case err != nil:
		return 0, fmt.Errorf("memindex: lookup file_path: %w", err)

	default:
		if hash == existingHash {
			// Content unchanged: metadata-only touch, no re-embed,
			// no history event (spec §4.5 invariant "no-op on
			// unchanged content").
			_, err := s.execHook(s.db, `
				UPDATE memories SET title = ?, trigger_phrases = ?, tags = ?, importance_weight = ?
				WHERE rowid = ?
			`, in.Title, string(triggersJSON), string(tagsJSON), in.ImportanceWeight, existingID)
			if err != nil {
				return 0, fmt.Errorf("memindex: touch: %w", err)
			}
			s.refreshTriggerEntry(existingID, in.TriggerPhrases)
			return existingID, nil
		}

		_, err := s.execHook(s.db, `
			UPDATE memories SET title = ?, content = ?, content_hash = ?, embedding = ?,
				trigger_phrases = ?, tags = ?, importance_weight = ?, updated_at = ?
			WHERE rowid = ?
		`, in.Title, in.Content, hash, embedding, string(triggersJSON), string(tagsJSON), in.ImportanceWeight, now, existingID)
		if err != nil {
			return 0, fmt.Errorf("memindex: update: %w", err)
		}
		if err := s.recordHistory(existingID, EventUpdated, existingHash, hash, ""); err != nil {
			return 0, err
		}
		s.refreshTriggerEntry(existingID, in.TriggerPhrases)
		return existingID, nil
	}
}

func (s *Store) refreshTriggerEntry(id int64, phrases []string) {
	all := s.loadAllTriggers()
	all[id] = phrases
	s.trigger.Rebuild(all)
}

func (s *Store) loadAllTriggers() map[int64][]string {
	rows, err := s.queryHook(s.db, `SELECT rowid, trigger_phrases FROM memories WHERE deleted_at IS NULL`)
	if err != nil {
		return map[int64][]string{}
	}
	defer rows.Close()

	out := map[int64][]string{}
	for rows.Next() {
		var rowid int64
		var raw string
		if err := rows.Scan(&rowid, &raw); err != nil {
			continue
		}
		var phrases []string
		_ = json.Unmarshal([]byte(raw), &phrases)
		out[rowid] = phrases
	}
	return out
}

// Trigger returns the store's live trigger cache for use by the search
// engine (spec §4.6.3 trigger matching).
func (s *Store) Trigger() *TriggerCache { return s.trigger }

// ─── Delete ──────────────────────────────────────────────────────────────────

// Delete soft-deletes a memory and records a "deleted" history event
// (spec §4.5 delete(id) -> ()).
func (s *Store) Delete(id int64) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := s.execHook(s.db, `UPDATE memories SET deleted_at = ? WHERE rowid = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("memindex: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMemoryNotFound
	}
	if err := s.recordHistory(id, EventDeleted, "", "", ""); err != nil {
		return err
	}
	all := s.loadAllTriggers()
	delete(all, id)
	s.trigger.Rebuild(all)
	return nil
}

// ─── Access tracking ─────────────────────────────────────────────────────────

// TrackAccess increments access_count, updates last_accessed_at, and
// records an "accessed" history event (spec §4.5 track_access(id) -> ()).
func (s *Store) TrackAccess(id int64) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := s.execHook(s.db, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?
		WHERE rowid = ? AND deleted_at IS NULL
	`, now, id)
	if err != nil {
		return fmt.Errorf("memindex: track access: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMemoryNotFound
	}
	return s.recordHistory(id, EventAccessed, "", "", "")
}

func (s *Store) recordHistory(id int64, event HistoryEventKind, prev, next, actor string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	_, err := s.execHook(s.db, `
		INSERT INTO history (memory_id, event, prev, new, actor, timestamp) VALUES (?, ?, ?, ?, ?, ?)
	`, id, string(event), prev, next, actor, now)
	if err != nil {
		return fmt.Errorf("memindex: record history: %w", err)
	}
	return nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Get loads a memory (not soft-deleted) by row id.
func (s *Store) Get(id int64) (Memory, error) {
	row := s.db.QueryRow(`
		SELECT rowid, spec_folder, file_path, title, content, content_hash, embedding,
			trigger_phrases, tags, importance_weight, access_count, last_accessed_at, created_at, updated_at
		FROM memories WHERE rowid = ? AND deleted_at IS NULL
	`, id)
	return scanMemory(row)
}

type rowScannable interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScannable) (Memory, error) {
	var m Memory
	var embeddingRaw []byte
	var triggersRaw, tagsRaw string
	var lastAccessed sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &m.SpecFolder, &m.FilePath, &m.Title, &m.Content, &m.ContentHash,
		&embeddingRaw, &triggersRaw, &tagsRaw, &m.ImportanceWeight, &m.AccessCount, &lastAccessed, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Memory{}, ErrMemoryNotFound
	}
	if err != nil {
		return Memory{}, fmt.Errorf("memindex: scan: %w", err)
	}

	m.Embedding, err = unmarshalEmbedding(embeddingRaw)
	if err != nil {
		return Memory{}, fmt.Errorf("memindex: unmarshal embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(triggersRaw), &m.TriggerPhrases); err != nil {
		return Memory{}, fmt.Errorf("memindex: unmarshal triggers: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsRaw), &m.Tags); err != nil {
		return Memory{}, fmt.Errorf("memindex: unmarshal tags: %w", err)
	}
	if lastAccessed.Valid {
		t, err := time.Parse(time.RFC3339, lastAccessed.String)
		if err == nil {
			m.LastAccessedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		m.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		m.UpdatedAt = t
	}
	m.Anchors = GenerateAnchors(m.Content)
	return m, nil
}

// Neighbors returns up to window memories in total from the same spec
// folder as the given memory, nearest in created_at first. The window is
// a total, not a count on each side: the result may hold only earlier,
// only later, or a mix of memories (spec §4.5 neighbors(id, window) ->
// [memory], "temporal proximity" per SPEC_FULL supplement).
func (s *Store) Neighbors(id int64, window int) ([]Memory, error) {
	center, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	rows, err := s.queryHook(s.db, `
		SELECT rowid, spec_folder, file_path, title, content, content_hash, embedding,
			trigger_phrases, tags, importance_weight, access_count, last_accessed_at, created_at, updated_at
		FROM memories
		WHERE spec_folder = ? AND rowid != ? AND deleted_at IS NULL
		ORDER BY ABS(strftime('%s', created_at) - strftime('%s', ?)) ASC
		LIMIT ?
	`, center.SpecFolder, id, center.CreatedAt.UTC().Format(time.RFC3339), window)
	if err != nil {
		return nil, fmt.Errorf("memindex: neighbors: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetAnchor returns the section body for anchorIDOrCanonical within the
// given memory, or false if no match (spec §4.5 get_anchor(id,
// anchor_id_or_canonical) -> Option<section>). Only exact anchor-id
// matching is performed here; the fallback chain (canonical substring,
// header mapping) lives in the search engine, per SPEC_FULL §0.
func (s *Store) GetAnchor(id int64, anchorIDOrCanonical string) (string, bool, error) {
	m, err := s.Get(id)
	if err != nil {
		return "", false, err
	}
	section, ok := ExtractByExactID(m.Content, anchorIDOrCanonical)
	return section, ok, nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats computes aggregate statistics across all live memories
// (SPEC_FULL §3 supplement).
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(AVG(importance_weight), 0) FROM memories WHERE deleted_at IS NULL`)
	if err := row.Scan(&stats.TotalMemories, &stats.AverageImportance); err != nil {
		return Stats{}, fmt.Errorf("memindex: stats: %w", err)
	}

	rows, err := s.queryHook(s.db, `
		SELECT spec_folder, COUNT(*) FROM memories WHERE deleted_at IS NULL GROUP BY spec_folder
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("memindex: stats per folder: %w", err)
	}
	defer rows.Close()

	stats.PerSpecFolderCount = map[string]int{}
	for rows.Next() {
		var folder string
		var count int
		if err := rows.Scan(&folder, &count); err != nil {
			return Stats{}, err
		}
		stats.PerSpecFolderCount[folder] = count
	}
	return stats, rows.Err()
}

// ─── Bulk reads for the query engine ─────────────────────────────────────────

// ListActive returns every non-deleted memory, used by the query engine
// as the base candidate set for vector search (spec §4.6.1) and for
// assembling composite-scoring metadata (spec §4.6.5).
func (s *Store) ListActive() ([]Memory, error) {
	rows, err := s.queryHook(s.db, `
		SELECT rowid, spec_folder, file_path, title, content, content_hash, embedding,
			trigger_phrases, tags, importance_weight, access_count, last_accessed_at, created_at, updated_at
		FROM memories WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("memindex: list active: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FTSHit is one result of an FTS5 full-text query (spec §4.6.2): a
// memory id, its 1-based rank in the result list, its raw BM25 score,
// and an extracted snippet.
type FTSHit struct {
	MemoryID int64
	Rank     int
	BM25     float64
	Snippet  string
}

// FTSSearch executes query against the title+content FTS5 index,
// returning up to k hits ordered by BM25 rank with an extracted snippet
// (spec §4.6.2). SQLite's bm25() is more negative for a better match, so
// results are ordered ascending on it and then re-expressed as a
// positive, 1-based rank.
func (s *Store) FTSSearch(query string, k int) ([]FTSHit, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	rows, err := s.queryHook(s.db, `
		SELECT rowid, bm25(memories_fts) AS rank,
			snippet(memories_fts, -1, '>>>', '<<<', '...', 12) AS snip
		FROM memories_fts
		WHERE memories_fts MATCH ?
		ORDER BY rank ASC
		LIMIT ?
	`, query, k)
	if err != nil {
		return nil, fmt.Errorf("memindex: fts search: %w", err)
	}
	defer rows.Close()

	var out []FTSHit
	for rows.Next() {
		var id int64
		var bm25 float64
		var snip string
		if err := rows.Scan(&id, &bm25, &snip); err != nil {
			return nil, err
		}
		out = append(out, FTSHit{MemoryID: id, Rank: len(out) + 1, BM25: bm25, Snippet: snip})
	}
	return out, rows.Err()
}

// History returns the append-only audit trail for a memory, oldest first.
func (s *Store) History(id int64) ([]HistoryEvent, error) {
	rows, err := s.queryHook(s.db, `
		SELECT id, memory_id, event, prev, new, actor, timestamp
		FROM history WHERE memory_id = ? ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("memindex: history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEvent
	for rows.Next() {
		var h HistoryEvent
		var prev, next, actor sql.NullString
		var ts string
		if err := rows.Scan(&h.ID, &h.MemoryID, &h.Event, &prev, &next, &actor, &ts); err != nil {
			return nil, err
		}
		h.Prev, h.New, h.Actor = prev.String, next.String, actor.String
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			h.Timestamp = t
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
