package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roboverse/bookqa-go/internal/apperr"
	"github.com/roboverse/bookqa-go/internal/auth"
)

// newAuthedRequest builds a minimal valid chat request carrying the given
// Authorization header.
func newAuthedRequest(t *testing.T, authHeader string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// fakeVerifier implements TokenVerifier with a single accepted token.
type fakeVerifier struct {
	accept string
	err    error
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (auth.User, error) {
	if f.err != nil {
		return auth.User{}, f.err
	}
	if token != f.accept {
		return auth.User{}, apperr.New(apperr.KindUnauthorized, apperr.CodeInvalidToken, "invalid token")
	}
	return auth.User{ID: "user-1", Email: "reader@example.com"}, nil
}

func newAuthTestServer(t *testing.T, v TokenVerifier) *Server {
	t.Helper()
	return newTestServer(t, &fakeAnswerer{}, newFakeStore(), func(cfg *Config) {
		cfg.Verifier = v
	})
}

func TestAuth_MissingToken(t *testing.T) {
	t.Parallel()

	s := newAuthTestServer(t, &fakeVerifier{accept: "good"})
	w := doJSON(t, s, http.MethodPost, "/chat", `{"query":"q"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if errResp := decodeError(t, w); errResp.ErrorCode != apperr.CodeInvalidToken {
		t.Errorf("error_code = %q", errResp.ErrorCode)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate challenge")
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	t.Parallel()

	s := newAuthTestServer(t, &fakeVerifier{accept: "good"})

	req := newAuthedRequest(t, "Bearer wrong")
	w := serve(s, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ExpiredTokenCode(t *testing.T) {
	t.Parallel()

	s := newAuthTestServer(t, &fakeVerifier{
		err: apperr.New(apperr.KindUnauthorized, apperr.CodeTokenExpired, "token expired"),
	})

	req := newAuthedRequest(t, "Bearer stale")
	w := serve(s, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if errResp := decodeError(t, w); errResp.ErrorCode != apperr.CodeTokenExpired {
		t.Errorf("error_code = %q, want TOKEN_EXPIRED", errResp.ErrorCode)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	t.Parallel()

	s := newAuthTestServer(t, &fakeVerifier{accept: "good"})

	req := newAuthedRequest(t, "Bearer good")
	w := serve(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuth_DisabledWhenNoVerifier(t *testing.T) {
	t.Parallel()

	s := newAuthTestServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/chat", `{"query":"q"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", w.Code)
	}
}

func TestAuth_HealthStaysOpen(t *testing.T) {
	t.Parallel()

	s := newAuthTestServer(t, &fakeVerifier{accept: "good"})
	w := doJSON(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unauthenticated /health, got %d", w.Code)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}

	for _, tc := range cases {
		req := newAuthedRequest(t, tc.header)
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}
