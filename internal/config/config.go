// Package config layers YAML file configuration under environment variables.
// Precedence is defaults → YAML → env: values from the file are exported into
// the environment only for variables the operator has not already set, so
// env-only deployments keep working untouched.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. BOOKQA_CONFIG environment variable
//  3. ~/.bookqa/config.yaml
//  4. ./bookqa.yaml
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file layout. yaml tags follow the same lowercase
// underscored names the env vars use.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ModelConfig selects and configures the chat model backend.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // gemini, openai, azure, ollama, ark
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ollama OllamaConfig `yaml:"ollama"`
	Ark    ArkConfig    `yaml:"ark"`
}

// API keys may live in the YAML file for convenience, but env vars are the
// recommended place for them.

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

type ArkConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig configures the retrieval-side embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // cohere, openai, azure, ollama
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
}

// QdrantConfig configures the vector store connection.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"` // gRPC port
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`
	TLS        bool   `yaml:"tls"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	MaxConcurrentChats int     `yaml:"max_concurrent_chats"`
	RateLimit          float64 `yaml:"rate_limit"` // per-IP requests/second
	RateBurst          int     `yaml:"rate_burst"`
}

// AuthConfig configures JWT verification. An empty JWKS URL disables auth.
type AuthConfig struct {
	JWKSURL string `yaml:"jwks_url"`
}

// DatabaseConfig configures conversation history persistence. Postgres is
// used when URL is set; SQLitePath is the local fallback database.
type DatabaseConfig struct {
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ChatConfig carries the answer-confidence cut points.
type ChatConfig struct {
	HighThreshold float32 `yaml:"high_threshold"`
	LowThreshold  float32 `yaml:"low_threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// overlay flattens the parsed file into env var assignments. Zero values
// never appear in the result, so they cannot mask a default downstream.
func (c *Config) overlay() []envPair {
	var pairs []envPair
	add := func(key, val string) {
		if val != "" {
			pairs = append(pairs, envPair{key, val})
		}
	}

	add("MODEL_PROVIDER", c.Model.Provider)
	add("MODEL_MAX_TOKENS", numStr(c.Model.MaxTokens))
	add("MODEL_TEMPERATURE", fltStr(float64(c.Model.Temperature)))
	add("GOOGLE_API_KEY", c.Model.Gemini.APIKey)
	add("GEMINI_MODEL", c.Model.Gemini.Model)
	add("OPENAI_API_KEY", c.Model.OpenAI.APIKey)
	add("OPENAI_MODEL", c.Model.OpenAI.Model)
	add("AZURE_OPENAI_API_KEY", c.Model.Azure.APIKey)
	add("AZURE_OPENAI_ENDPOINT", c.Model.Azure.Endpoint)
	add("AZURE_OPENAI_DEPLOYMENT", c.Model.Azure.Deployment)
	add("AZURE_OPENAI_API_VERSION", c.Model.Azure.APIVersion)
	add("OLLAMA_HOST", c.Model.Ollama.Host)
	add("OLLAMA_MODEL", c.Model.Ollama.Model)
	add("ARK_API_KEY", c.Model.Ark.APIKey)
	add("ARK_MODEL", c.Model.Ark.Model)
	add("ARK_BASE_URL", c.Model.Ark.BaseURL)
	add("EMBEDDING_PROVIDER", c.Embedding.Provider)
	add("EMBEDDING_MODEL", c.Embedding.Model)
	add("EMBEDDING_DIMENSIONS", numStr(c.Embedding.Dimensions))
	add("EMBEDDING_API_KEY", c.Embedding.APIKey)
	add("EMBEDDING_ENDPOINT", c.Embedding.Endpoint)
	add("QDRANT_HOST", c.Qdrant.Host)
	add("QDRANT_PORT", numStr(c.Qdrant.Port))
	add("QDRANT_COLLECTION", c.Qdrant.Collection)
	add("QDRANT_API_KEY", c.Qdrant.APIKey)
	add("QDRANT_TLS", flagStr(c.Qdrant.TLS))
	add("SERVER_HOST", c.Server.Host)
	add("SERVER_PORT", numStr(c.Server.Port))
	add("MAX_CONCURRENT_CHATS", numStr(c.Server.MaxConcurrentChats))
	add("RATE_LIMIT_RPS", fltStr(c.Server.RateLimit))
	add("RATE_LIMIT_BURST", numStr(c.Server.RateBurst))
	add("AUTH_JWKS_URL", c.Auth.JWKSURL)
	add("DATABASE_URL", c.Database.URL)
	add("BOOKQA_HISTORY_DB", c.Database.SQLitePath)
	add("CONFIDENCE_HIGH_THRESHOLD", fltStr(float64(c.Chat.HighThreshold)))
	add("CONFIDENCE_LOW_THRESHOLD", fltStr(float64(c.Chat.LowThreshold)))
	add("LOG_LEVEL", c.Logging.Level)
	add("LOG_FORMAT", c.Logging.Format)
	add("LANGFUSE_PUBLIC_KEY", c.Tracing.PublicKey)
	add("LANGFUSE_SECRET_KEY", c.Tracing.SecretKey)
	add("LANGFUSE_HOST", c.Tracing.Host)

	return pairs
}

type envPair struct {
	key string
	val string
}

// Load resolves and parses the YAML config file, then exports its values as
// env vars wherever the environment does not already define them. It returns
// the path that was loaded; an empty path means env-only operation.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML file found, running from env vars")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, p := range cfg.overlay() {
		if os.Getenv(p.key) != "" {
			continue // env wins
		}
		os.Setenv(p.key, p.val)
		applied++
	}

	log.Info("config: loaded YAML file",
		slog.String("path", path),
		slog.Int("keys_applied", applied))
	return path, nil
}

// resolveConfigPath returns the first existing candidate. An explicit path
// that does not exist is treated as "no file" rather than an error, matching
// how a missing default location behaves.
func resolveConfigPath(explicit string) string {
	var candidates []string
	if explicit != "" {
		candidates = []string{explicit}
	} else {
		if p := os.Getenv("BOOKQA_CONFIG"); p != "" {
			candidates = append(candidates, p)
		}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".bookqa", "config.yaml"))
		}
		candidates = append(candidates, "bookqa.yaml")
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func numStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func fltStr(v float64) string {
	if v == 0 {
		return ""
	}
	s := strconv.FormatFloat(v, 'f', 4, 64)
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

func flagStr(v bool) string {
	if v {
		return "true"
	}
	return ""
}
