package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // register postgres migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // register "postgres" driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is a Store backed by PostgreSQL. Schema changes live in
// migrations/ and are applied on open.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to Postgres using a lib/pq DSN or postgres:// URL,
// verifies connectivity, and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: postgres unreachable: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

// runMigrations applies the embedded migrations, treating an already
// up-to-date schema as success.
func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("store: init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// GetOrCreateSession returns the session, creating it on first use. Existing
// sessions get last_active bumped; concurrent bumps resolve last-writer-wins.
func (s *PostgresStore) GetOrCreateSession(ctx context.Context, id uuid.UUID) (Session, error) {
	const q = `
INSERT INTO sessions (session_id) VALUES ($1)
ON CONFLICT (session_id) DO UPDATE SET last_active = NOW()
RETURNING created_at, last_active`

	var sess Session
	sess.ID = id
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&sess.CreatedAt, &sess.LastActive); err != nil {
		return Session{}, fmt.Errorf("store: get or create session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session or ErrSessionNotFound.
func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	const q = `SELECT created_at, last_active FROM sessions WHERE session_id = $1`

	var sess Session
	sess.ID = id
	err := s.db.QueryRowContext(ctx, q, id).Scan(&sess.CreatedAt, &sess.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("store: get session: %w", err)
	}
	return sess, nil
}

// SaveConversation appends one exchange to the session.
func (s *PostgresStore) SaveConversation(ctx context.Context, sessionID uuid.UUID, query, response string, sources, metadata json.RawMessage) error {
	sources, metadata = normalizeJSON(sources, metadata)
	const q = `
INSERT INTO conversations (session_id, query, response, sources, metadata)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, sessionID, query, response, []byte(sources), []byte(metadata)); err != nil {
		return fmt.Errorf("store: save conversation: %w", err)
	}
	return nil
}

// History returns up to limit exchanges for the session, oldest first.
func (s *PostgresStore) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]HistoryEntry, error) {
	const q = `
SELECT timestamp, query, response, sources
FROM   conversations
WHERE  session_id = $1
ORDER  BY timestamp ASC, id ASC
LIMIT  $2`

	rows, err := s.db.QueryContext(ctx, q, sessionID, clampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var sources []byte
		if err := rows.Scan(&e.Timestamp, &e.Query, &e.Response, &sources); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		e.Sources = json.RawMessage(sources)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return entries, nil
}

// RecentContext returns the last n exchanges in chronological order.
func (s *PostgresStore) RecentContext(ctx context.Context, sessionID uuid.UUID, n int) ([]Exchange, error) {
	const q = `
SELECT query, response FROM (
    SELECT id, timestamp, query, response
    FROM   conversations
    WHERE  session_id = $1
    ORDER  BY timestamp DESC, id DESC
    LIMIT  $2
) tail ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, n)
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

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
