// Package audit logs the environment a CLI command starts with, so an
// operator can reconstruct which provider, store, and collection a run used.
// Secret-bearing variables are reported as present or absent only; their
// values never reach the log stream.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditedVars is the ordered env surface recorded on every command start.
// The secret flag redacts the value down to set/unset.
var auditedVars = []struct {
	key    string
	secret bool
}{
	{"MODEL_PROVIDER", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"COHERE_API_KEY", true},
	{"EMBEDDING_API_KEY", true},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"AUTH_JWKS_URL", false},
	{"DATABASE_URL", true}, // DSNs embed credentials
	{"BOOKQA_HISTORY_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secretEnvKeys is derived from auditedVars so SanitiseKey and the audit
// entry can never disagree about what is secret.
var secretEnvKeys = func() map[string]bool {
	m := make(map[string]bool, len(auditedVars))
	for _, v := range auditedVars {
		if v.secret {
			m[v.key] = true
		}
	}
	return m
}()

// auditKeys aliases auditedVars for tests that cross-check the two tables.
var auditKeys = auditedVars

// LogCommandStart emits one structured entry naming the command, the config
// file it resolved, and the sanitised environment.
func LogCommandStart(log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditedVars)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)))

	for _, v := range auditedVars {
		attrs = append(attrs, slog.String(v.key, SanitiseKey(v.key, os.Getenv(v.key))))
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey renders an env value for logging: secret keys collapse to
// "set"/"unset", everything else logs its value or "unset" when empty.
func SanitiseKey(key, value string) string {
	if value == "" {
		return "unset"
	}
	if secretEnvKeys[key] {
		return "set"
	}
	return value
}

// sanitiseConfigPath hides the home directory prefix and renders the empty
// path as "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(p, home) {
		return "~" + strings.TrimPrefix(p, home)
	}
	return p
}
