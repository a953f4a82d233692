package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roboverse/bookqa-go/internal/apperr"
	"github.com/roboverse/bookqa-go/internal/logging"
)

// authMiddleware returns an HTTP middleware that enforces JWT bearer
// authentication before any retrieval or generation work begins. If verifier
// is nil the middleware is a no-op — auth is disabled and a warning is logged
// at server startup (not per-request).
//
// Protected routes must supply:
//
//	Authorization: Bearer <jwt>
//
// Expired and malformed tokens are distinguished by error code for client UX
// (TOKEN_EXPIRED vs INVALID_TOKEN); both are refused with 401. The token
// value itself is never logged.
func authMiddleware(verifier TokenVerifier, next http.Handler) http.Handler {
	if verifier == nil {
		// Auth disabled — pass all requests through unchanged.
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing bearer token", slog.String("path", r.URL.Path))
			writeError(w, r, apperr.New(apperr.KindUnauthorized, apperr.CodeInvalidToken, "authorization required"))
			return
		}

		user, err := verifier.Verify(r.Context(), token)
		if err != nil {
			log.Warn("auth: token rejected",
				slog.String("path", r.URL.Path),
				slog.String("code", apperr.CodeOf(err)),
			)
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
