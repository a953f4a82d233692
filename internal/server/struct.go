package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roboverse/bookqa-go/internal/agent"
	"github.com/roboverse/bookqa-go/internal/auth"
	"github.com/roboverse/bookqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Verifier validates bearer tokens on the chat and history routes.
	// If nil, authentication is disabled (development mode).
	Verifier TokenVerifier
	// Checks is the ordered list of dependency probes run by GET /health.
	Checks []Pinger
	// MaxConcurrentChats bounds in-flight chat requests across both chat
	// endpoints. Defaults to 10 if zero.
	MaxConcurrentChats int
	// RateLimit is the sustained request rate allowed per IP on all API
	// routes (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// Registry receives the server's Prometheus metrics and backs GET
	// /metrics. If nil a private registry is created (keeps tests hermetic).
	Registry *prometheus.Registry
}

// Answerer is the slice of the generation agent the server needs.
// *agent.Agent satisfies it; tests inject a fake.
type Answerer interface {
	Answer(ctx context.Context, req agent.Request) *agent.Result
	AnswerStream(ctx context.Context, req agent.Request) <-chan agent.StreamEvent
	Thresholds() agent.Thresholds
}

// TokenVerifier validates a bearer token and returns the authenticated user.
// *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.User, error)
}

// Server is the HTTP server exposing the book Q&A API.
type Server struct {
	// agent answers chat requests.
	agent Answerer
	// store persists sessions and conversation history (best-effort).
	store store.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds the Prometheus instruments owned by this instance.
	metrics *serverMetrics
	// slots bounds concurrent in-flight chat requests.
	slots *slotCounter
	// checks is the ordered list of dependency probes for GET /health.
	checks []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /chat and POST /chat/stream.
type chatRequest struct {
	// Query is the user's question (1-32000 chars after trimming).
	Query string `json:"query"`
	// SelectedText, when present, switches the request to selected-text mode.
	SelectedText string `json:"selected_text,omitempty"`
	// SessionID groups exchanges into a conversation. Optional; the server
	// generates one when absent.
	SessionID string `json:"session_id,omitempty"`
	// Filters optionally restricts retrieval to part of the corpus.
	Filters *chatFilters `json:"filters,omitempty"`
}

// chatFilters restricts retrieval to part of the corpus.
type chatFilters struct {
	SourceURLPrefix string `json:"source_url_prefix,omitempty"`
	Section         string `json:"section,omitempty"`
}

// responseMetadata describes how one answer was produced.
type responseMetadata struct {
	ElapsedMS      float64 `json:"elapsed_ms"`
	RetrievalCount int     `json:"retrieval_count"`
	Mode           string  `json:"mode"`
	LowConfidence  bool    `json:"low_confidence"`
	RequestID      string  `json:"request_id"`
}

// chatResponse is the JSON body for POST /chat. Answer is null when
// generation failed; FallbackMessage is present exactly when the answer's
// confidence or availability requires it.
type chatResponse struct {
	Answer          *string          `json:"answer"`
	FallbackMessage string           `json:"fallback_message,omitempty"`
	Sources         any              `json:"sources"`
	Metadata        responseMetadata `json:"metadata"`
	SessionID       string           `json:"session_id"`
}

// historyResponse is the JSON body for GET /history/{session_id}.
type historyResponse struct {
	SessionID string               `json:"session_id"`
	Exchanges []store.HistoryEntry `json:"exchanges"`
	Count     int                  `json:"count"`
}

// errorResponse is the JSON body of every error response.
type errorResponse struct {
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Details   json.RawMessage `json:"details,omitempty"`
}
