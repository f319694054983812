// Package store mirrors investigation session summaries into a sqlite
// database for cross-session queries the per-session JSON files under
// InvestigationsDir can't answer cheaply: "which sessions are still
// unconfirmed", "what did we conclude about checkout-api last week". The
// JSON file InvestigationMemory writes after every mutation stays the
// canonical record; this index is a queryable, rebuildable projection of
// it, the same relationship a namespace graph cache has to the Kubernetes
// API it mirrors.
package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"

	"github.com/moolen/invagent/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	outcome      TEXT NOT NULL DEFAULT '',
	root_cause   TEXT NOT NULL DEFAULT '',
	iteration    INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);
`

// SessionRecord is one row of the sessions index.
type SessionRecord struct {
	SessionID string    `db:"session_id"`
	Query     string    `db:"query"`
	Outcome   string    `db:"outcome"`
	RootCause string    `db:"root_cause"`
	Iteration int       `db:"iteration"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store is a sqlite-backed index of investigation sessions.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// Open creates or opens the sqlite database at path and ensures the
// sessions table exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening session index %s: %w", path, err)
	}
	// sqlite allows only one writer at a time; the index is written to
	// far less often than the canonical JSON file, so a single
	// connection avoids SQLITE_BUSY without a WAL/retry layer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating session index schema: %w", err)
	}

	return &Store{db: db, logger: logging.GetLogger("store")}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSession inserts or replaces the row for rec.SessionID.
func (s *Store) UpsertSession(rec SessionRecord) error {
	_, err := s.db.NamedExec(`
		INSERT INTO sessions (session_id, query, outcome, root_cause, iteration, created_at, updated_at)
		VALUES (:session_id, :query, :outcome, :root_cause, :iteration, :created_at, :updated_at)
		ON CONFLICT(session_id) DO UPDATE SET
			outcome = excluded.outcome,
			root_cause = excluded.root_cause,
			iteration = excluded.iteration,
			updated_at = excluded.updated_at
	`, rec)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", rec.SessionID, err)
	}
	return nil
}

// GetSession returns the indexed record for sessionID, or an error if no
// such session has been indexed.
func (s *Store) GetSession(sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	if err := s.db.Get(&rec, `SELECT * FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// ListByOutcome returns sessions with the given outcome, most recently
// updated first. An empty outcome matches every session.
func (s *Store) ListByOutcome(outcome string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []SessionRecord
	query := `SELECT * FROM sessions WHERE (? = '' OR outcome = ?) ORDER BY updated_at DESC LIMIT ?`
	if err := s.db.Select(&recs, query, outcome, outcome, limit); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return recs, nil
}
