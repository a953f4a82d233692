package audit

import (
	"os"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key   string
		value string
		want  string
	}{
		{"COHERE_API_KEY", "co-abc123", "set"},
		{"COHERE_API_KEY", "", "unset"},
		// Connection strings carry credentials and must never be echoed.
		{"DATABASE_URL", "postgres://user:pw@host/db", "set"},
		{"MODEL_PROVIDER", "gemini", "gemini"},
		{"MODEL_PROVIDER", "", "unset"},
		{"QDRANT_COLLECTION", "rag_embedding", "rag_embedding"},
	}
	for _, tc := range cases {
		if got := SanitiseKey(tc.key, tc.value); got != tc.want {
			t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestEverySecretKeyRedacts(t *testing.T) {
	t.Parallel()
	for key := range secretEnvKeys {
		if got := SanitiseKey(key, "hunter2"); got != "set" {
			t.Errorf("SanitiseKey(%q, ...) = %q, leaked a secret value", key, got)
		}
	}
}

func TestAuditKeysSecretFlagsMatch(t *testing.T) {
	t.Parallel()
	// Every audited key flagged secret must also be in the redaction set, so
	// the two tables cannot drift apart.
	for _, e := range auditKeys {
		if e.secret != secretEnvKeys[e.key] {
			t.Errorf("auditKeys entry %q: secret=%v disagrees with secretEnvKeys", e.key, e.secret)
		}
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("empty path: got %q, want \"none\"", got)
	}
	if got := sanitiseConfigPath("/etc/bookqa/config.yaml"); got != "/etc/bookqa/config.yaml" {
		t.Errorf("absolute path rewritten: got %q", got)
	}
	if home, err := os.UserHomeDir(); err == nil {
		got := sanitiseConfigPath(home + "/.bookqa/config.yaml")
		if got != "~/.bookqa/config.yaml" {
			t.Errorf("home-relative path: got %q, want ~/.bookqa/config.yaml", got)
		}
	}
}
