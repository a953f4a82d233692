package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/roboverse/bookqa-go/internal/apperr"
	"github.com/roboverse/bookqa-go/internal/rag"
)

// maxSelectedTextChars is the request-level ceiling on selected text. The
// agent further truncates what it injects into the prompt.
const maxSelectedTextChars = 64000

// validatedChat is a chatRequest after validation, with the session ID
// resolved (echoed or freshly generated).
type validatedChat struct {
	Query           string
	SelectedText    string
	SessionID       uuid.UUID
	SourceURLPrefix string
	Section         string

	// GeneratedSession is true when the server minted the session ID.
	GeneratedSession bool
}

// parseChatRequest decodes and validates the body of a chat request. All
// failures are classified apperr values ready for writeError.
func parseChatRequest(r *http.Request) (*validatedChat, error) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalidParameter, apperr.CodeInvalidParameter, "request body is not valid JSON")
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.New(apperr.KindInvalidQuery, apperr.CodeEmptyQuery, "query must not be empty")
	}
	if len(query) > rag.MaxQueryChars {
		return nil, apperr.Newf(apperr.KindInvalidQuery, apperr.CodeQueryTooLong,
			"query exceeds %d characters", rag.MaxQueryChars)
	}
	if len(req.SelectedText) > maxSelectedTextChars {
		return nil, apperr.Newf(apperr.KindInvalidParameter, apperr.CodeSelectionTooLong,
			"selected_text exceeds %d characters", maxSelectedTextChars)
	}

	out := &validatedChat{
		Query:        query,
		SelectedText: req.SelectedText,
	}
	if req.Filters != nil {
		out.SourceURLPrefix = req.Filters.SourceURLPrefix
		out.Section = req.Filters.Section
	}

	if req.SessionID == "" {
		out.SessionID = uuid.New()
		out.GeneratedSession = true
		return out, nil
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalidParameter, apperr.CodeInvalidParameter,
			fmt.Sprintf("session_id %q is not a valid UUID", req.SessionID))
	}
	out.SessionID = id
	return out, nil
}

// parseHistoryLimit reads the optional ?limit= query parameter for the
// history endpoint. Zero means "use the store default".
func parseHistoryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	var limit int
	if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
		return 0, apperr.Wrap(err, apperr.KindInvalidParameter, apperr.CodeInvalidParameter, "limit must be an integer")
	}
	if limit < 1 || limit > 100 {
		return 0, apperr.New(apperr.KindInvalidParameter, apperr.CodeInvalidParameter, "limit must be between 1 and 100")
	}
	return limit, nil
}
