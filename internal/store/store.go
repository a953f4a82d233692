// Package store persists chat sessions and conversation history. Postgres
// (lib/pq with embedded migrations) is the deployment backend; SQLite
// (modernc, no cgo) serves local development and tests behind the same
// interface. Persistence is best-effort from the API's point of view: a
// failed save must never fail the chat request.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/roboverse/bookqa-go/internal/apperr"
)

// History limits. Callers outside this package validate their own inputs;
// the store clamps defensively so a bad limit can never become an unbounded
// query.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// ErrSessionNotFound is returned when the referenced session does not exist.
var ErrSessionNotFound = apperr.New(apperr.KindNotFound, apperr.CodeSessionNotFound, "session not found")

// Session is one chat session.
type Session struct {
	ID         uuid.UUID `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// HistoryEntry is one persisted query/response exchange.
type HistoryEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Query     string          `json:"query"`
	Response  string          `json:"response"`
	Sources   json.RawMessage `json:"sources"`
}

// Exchange is one query/response pair used for agent context injection.
type Exchange struct {
	Query    string
	Response string
}

// Store persists sessions and conversation exchanges. Implementations must
// be safe for concurrent use.
type Store interface {
	// GetOrCreateSession returns the session with the given ID, creating it
	// if it does not exist. Existing sessions get their last_active bumped
	// (last writer wins under concurrency).
	GetOrCreateSession(ctx context.Context, id uuid.UUID) (Session, error)

	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)

	// SaveConversation appends one exchange to the session. sources and
	// metadata are stored verbatim as JSON.
	SaveConversation(ctx context.Context, sessionID uuid.UUID, query, response string, sources, metadata json.RawMessage) error

	// History returns up to limit exchanges for the session, oldest first.
	// A non-positive limit means DefaultHistoryLimit; limits above
	// MaxHistoryLimit are clamped.
	History(ctx context.Context, sessionID uuid.UUID, limit int) ([]HistoryEntry, error)

	// RecentContext returns the last n exchanges in chronological order,
	// for injection into the agent's message window.
	RecentContext(ctx context.Context, sessionID uuid.UUID, n int) ([]Exchange, error)

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// clampHistoryLimit applies the default and maximum history limits.
func clampHistoryLimit(n int) int {
	if n <= 0 {
		return DefaultHistoryLimit
	}
	if n > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return n
}

// normalizeJSON substitutes the JSON zero values for nil payloads so the
// database never stores SQL NULLs in the JSON columns.
func normalizeJSON(sources, metadata json.RawMessage) (json.RawMessage, json.RawMessage) {
	if len(sources) == 0 {
		sources = json.RawMessage("[]")
	}
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	return sources, metadata
}
