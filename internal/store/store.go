// Package store implements distill's per-session storage engine: a SQLite
// database holding entries, a standalone full-text index over them, entry
// links, and a small session-state scratchpad.
//
// The full-text table is deliberately NOT content-synced to the entries
// table (FTS5's external-content mode reindexes automatically but cannot
// have individual rows mutated in place without risking corruption). Instead
// an explicit fts_map table pairs each FTS rowid with its entry id, and
// annotation rewrites both the entries row and the FTS row inside one
// transaction — see AnnotateEntry.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"
)

// Entry type constants.
const (
	TypeFileChange = "file_change"
	TypeResearch   = "research"
	TypeCommand    = "command"
	TypeWeb        = "web"
	TypeSummary    = "summary"
)

// Annotation status constants.
const (
	StatusPending    = "pending"
	StatusAnnotating = "annotating"
	StatusAnnotated  = "annotated"
	StatusFailed     = "failed"
)

// Link type constants.
const (
	LinkDependsOn = "depends_on"
	LinkExtends   = "extends"
	LinkReverts   = "reverts"
	LinkRelated   = "related"
)

// ToolCall is a compact summary of one buffered tool invocation, as produced
// by the grouper and persisted verbatim as JSON in the entries.tool_calls
// column.
type ToolCall struct {
	Tool  string            `json:"tool"`
	Key   string             `json:"key,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

// Entry is one logical unit of recorded activity.
type Entry struct {
	ID                int64
	PromptIndex       int
	FilePath          string
	EntryType         string
	ToolCalls         []ToolCall
	Description       string
	Tags              string
	RelatedFiles       []string
	SemanticGroup     string
	Confidence        float64
	LowRelevance      bool
	AnnotationStatus  string
	CreatedAt         int64
}

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeSessionID replaces every non-alphanumeric character in id with
// an underscore, so a session id is always safe to use as a filename.
func SanitizeSessionID(id string) string {
	return sanitizeRe.ReplaceAllString(id, "_")
}

// Store is a handle to one session's SQLite database.
type Store struct {
	db        *sql.DB
	sessionID string
}

// Open opens (creating on first use) the database for the given session id
// inside dbDir. Schema creation is idempotent.
func Open(sessionID, dbDir string) (*Store, error) {
	sanitized := SanitizeSessionID(sessionID)
	if err := os.MkdirAll(dbDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session db dir: %w", err)
	}
	path := filepath.Join(dbDir, sanitized+".db")

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging session database: %w", err)
	}

	s := &Store{db: db, sessionID: sanitized}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying *sql.DB for queries not covered by Store's
// typed methods (used by the internal/annotate tests).
func (s *Store) DB() *sql.DB { return s.db }

// ListSessions returns the sanitized session ids for every database file
// found in dbDir, for the operator `sessions` subcommand.
func ListSessions(dbDir string) ([]string, error) {
	entries, err := os.ReadDir(dbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sessions dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".db" {
			ids = append(ids, name[:len(name)-len(".db")])
		}
	}
	return ids, nil
}

// Close closes the database, checkpointing the WAL first.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	prompt_index       INTEGER NOT NULL,
	file_path          TEXT NOT NULL DEFAULT '',
	entry_type         TEXT NOT NULL,
	tool_calls         TEXT NOT NULL DEFAULT '[]',
	description        TEXT NOT NULL DEFAULT '',
	tags               TEXT NOT NULL DEFAULT '',
	related_files      TEXT NOT NULL DEFAULT '[]',
	semantic_group     TEXT NOT NULL DEFAULT '',
	confidence         REAL NOT NULL DEFAULT 0,
	low_relevance      INTEGER NOT NULL DEFAULT 0,
	annotation_status  TEXT NOT NULL DEFAULT 'pending',
	created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_prompt ON entries(prompt_index);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(annotation_status);
CREATE INDEX IF NOT EXISTS idx_entries_group ON entries(semantic_group);

CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
	file_path, description, tags, semantic_group,
	tokenize = 'porter unicode61'
);

CREATE TABLE IF NOT EXISTS fts_map (
	fts_rowid INTEGER PRIMARY KEY,
	entry_id  INTEGER NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS entry_links (
	source_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	link_type TEXT NOT NULL,
	UNIQUE(source_id, target_id, link_type)
);

CREATE TABLE IF NOT EXISTS session_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
