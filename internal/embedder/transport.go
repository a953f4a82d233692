package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// responseBody is implemented by each provider's response type so the shared
// transport can surface the upstream error message on non-2xx statuses.
type responseBody interface {
	apiMessage() string
}

// postEmbed sends a JSON embedding request and decodes the response into out.
// Non-2xx statuses become *apiError values carrying the upstream status so
// the retry layer can tell throttling from hard rejection.
func postEmbed(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, in any, out responseBody) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s embedder: marshal request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s embedder: create request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s embedder: request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	// Error bodies do not always decode cleanly; only a failed decode of a
	// successful response is fatal.
	decodeErr := json.NewDecoder(resp.Body).Decode(out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{provider: provider, status: resp.StatusCode, message: out.apiMessage()}
	}
	if decodeErr != nil {
		return fmt.Errorf("%s embedder: decode response: %w", provider, decodeErr)
	}
	return nil
}

// apiError is an embedding API failure carrying the upstream HTTP status.
type apiError struct {
	provider string
	status   int
	message  string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s embedder: HTTP %d: %s", e.provider, e.status, e.message)
	}
	return fmt.Sprintf("%s embedder: HTTP %d", e.provider, e.status)
}

// StatusCode returns the upstream HTTP status.
func (e *apiError) StatusCode() int { return e.status }
