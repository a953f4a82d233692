package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database. It is the
// local/dev backend; production deployments use PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the local history database.
// It resolves to ~/.bookqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".bookqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and applies
// the schema. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist. This mirrors the
// Postgres migrations in migrations/, translated to SQLite types.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id   TEXT PRIMARY KEY,
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    last_active  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    timestamp    INTEGER NOT NULL,
    query        TEXT    NOT NULL,
    response     TEXT    NOT NULL,
    sources      TEXT    NOT NULL DEFAULT '[]',
    metadata     TEXT    NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_conversations_session_timestamp
    ON conversations (session_id, timestamp);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// GetOrCreateSession returns the session, creating it on first use and
// bumping last_active on every subsequent call.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, id uuid.UUID) (Session, error) {
	now := time.Now().Unix()
	const q = `
INSERT INTO sessions (session_id, created_at, last_active) VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET last_active = excluded.last_active
RETURNING created_at, last_active`

	var created, active int64
	if err := s.db.QueryRowContext(ctx, q, id.String(), now, now).Scan(&created, &active); err != nil {
		return Session{}, fmt.Errorf("store: get or create session: %w", err)
	}
	return Session{ID: id, CreatedAt: time.Unix(created, 0), LastActive: time.Unix(active, 0)}, nil
}

// GetSession returns the session or ErrSessionNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	const q = `SELECT created_at, last_active FROM sessions WHERE session_id = ?`

	var created, active int64
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&created, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("store: get session: %w", err)
	}
	return Session{ID: id, CreatedAt: time.Unix(created, 0), LastActive: time.Unix(active, 0)}, nil
}

// SaveConversation appends one exchange to the session.
func (s *SQLiteStore) SaveConversation(ctx context.Context, sessionID uuid.UUID, query, response string, sources, metadata json.RawMessage) error {
	sources, metadata = normalizeJSON(sources, metadata)
	const q = `INSERT INTO conversations (session_id, timestamp, query, response, sources, metadata) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sessionID.String(), time.Now().Unix(), query, response, string(sources), string(metadata)); err != nil {
		return fmt.Errorf("store: save conversation: %w", err)
	}
	return nil
}

// History returns up to limit exchanges for the session, oldest first.
func (s *SQLiteStore) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]HistoryEntry, error) {
	const q = `
SELECT timestamp, query, response, sources
FROM   conversations
WHERE  session_id = ?
ORDER  BY timestamp ASC, id ASC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, sessionID.String(), clampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts int64
		var sources string
		if err := rows.Scan(&ts, &e.Query, &e.Response, &sources); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Sources = json.RawMessage(sources)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return entries, nil
}

// RecentContext returns the last n exchanges in chronological order. Uses a
// subquery to select the tail then re-order for injection.
func (s *SQLiteStore) RecentContext(ctx context.Context, sessionID uuid.UUID, n int) ([]Exchange, error) {
	const q = `
SELECT query, response FROM (
    SELECT id, timestamp, query, response
    FROM   conversations
    WHERE  session_id = ?
    ORDER  BY timestamp DESC, id DESC
    LIMIT  ?
) ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID.String(), n)
	if err != nil {
		return nil, fmt.Errorf("store: recent context: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.Query, &e.Response); err != nil {
			return nil, fmt.Errorf("store: recent context scan: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent context rows: %w", err)
	}
	return exchanges, nil
}

// Ping verifies the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
