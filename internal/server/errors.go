package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/roboverse/bookqa-go/internal/apperr"
	"github.com/roboverse/bookqa-go/internal/logging"
)

// writeError maps a classified error to a structured JSON error response.
// Unclassified errors never leak detail to the caller: they become a generic
// internal error, logged with the request ID for correlation.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())
	reqID := requestIDFromContext(r.Context())

	kind := apperr.KindOf(err)
	code := apperr.CodeOf(err)

	var status int
	message := err.Error()
	switch kind {
	case apperr.KindInvalidQuery, apperr.KindInvalidParameter:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
		w.Header().Set("WWW-Authenticate", `Bearer realm="bookqa"`)
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindTimeout, apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "10")
	default:
		status = http.StatusInternalServerError
		code = apperr.CodeInternal
		message = "internal server error"
		log.Error("unclassified error at API boundary",
			slog.String("request_id", reqID),
			slog.Any("error", err),
		)
	}

	writeJSON(w, status, errorResponse{
		ErrorCode: code,
		Message:   message,
		RequestID: reqID,
	})
}

// writeRateLimited rejects a request that found no free chat slot.
func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	log.Warn("chat slots exhausted", slog.String("path", r.URL.Path))

	w.Header().Set("Retry-After", chatRetryAfter)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		ErrorCode: apperr.CodeRateLimited,
		Message:   "too many concurrent requests, retry shortly",
		RequestID: requestIDFromContext(r.Context()),
	})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
