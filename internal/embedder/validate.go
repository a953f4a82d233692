package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments are name fragments of chat/completion models. A value
// of EMBEDDING_MODEL matching one of these is almost certainly a
// misconfiguration, since chat models cannot produce usable embeddings.
var chatModelFragments = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "gemini", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen", "solar",
	"vicuna", "falcon", "yi-",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, frag := range chatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// requiredEnv describes one credential a backend cannot run without, with
// the env var alternatives that can satisfy it.
type requiredEnv struct {
	what string
	keys []string
}

var backendRequirements = map[string][]requiredEnv{
	"cohere": {
		{"Cohere API key", []string{"COHERE_API_KEY", "EMBEDDING_API_KEY"}},
	},
	"openai": {
		{"OpenAI API key", []string{"OPENAI_API_KEY", "EMBEDDING_API_KEY"}},
	},
	"azure": {
		{"Azure API key", []string{"AZURE_OPENAI_API_KEY", "EMBEDDING_API_KEY"}},
		{"Azure endpoint", []string{"AZURE_OPENAI_ENDPOINT", "EMBEDDING_ENDPOINT"}},
	},
	// ollama needs no credentials
}

// ValidatePreflight checks the embedding env configuration before any
// dependency is constructed, so a broken setup fails at startup with a
// message naming the missing variable instead of during the first embed
// call. Suspicious but workable configurations log warnings.
func ValidatePreflight(log *slog.Logger) error {
	backend := envOrDefault("EMBEDDING_PROVIDER", "cohere")

	for _, req := range backendRequirements[backend] {
		if firstEnv(req.keys...) == "" {
			return fmt.Errorf("embedder: no %s found — set %s", req.what, strings.Join(req.keys, " or "))
		}
	}

	// The collection only matches queries embedded by the same backend the
	// corpus was ingested with.
	if backend != "cohere" {
		log.Warn("embedder: non-default embedding backend selected — "+
			"queries will only match if the corpus was ingested with the same backend",
			slog.String("backend", backend))
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model — "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. embed-english-v3.0, text-embedding-3-small"))
	}

	return nil
}
