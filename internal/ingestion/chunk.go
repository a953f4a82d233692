package ingestion

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// separators are tried in priority order when looking for a chunk boundary.
// Heading markers first, then paragraph breaks, then any whitespace.
var separators = []string{"\n## ", "\n### ", "\n#### ", "\n\n", "\n", " "}

// Chunk is one slice of a page's text, ready for embedding.
type Chunk struct {
	// ID is the deterministic point ID derived from the source URL and
	// chunk position. Re-running ingestion overwrites rather than duplicates.
	ID string

	// Text is the chunk content.
	Text string

	// Position is the zero-based index of the chunk within its page.
	Position int
}

// chunkText splits text into overlapping chunks of at most size characters,
// preferring to break at markdown headings or paragraph boundaries. Positions
// are assigned only to non-empty chunks, so IDs stay stable across re-runs.
func chunkText(text, sourceURL string, size, overlap int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []Chunk
	position := 0
	start := 0

	for start < len(text) {
		end := start + size
		if end < len(text) {
			end = splitPoint(text, start, end)
		} else {
			end = len(text)
		}

		content := strings.TrimSpace(text[start:end])
		if content != "" {
			chunks = append(chunks, Chunk{
				ID:       chunkID(sourceURL, position),
				Text:     content,
				Position: position,
			})
			position++
		}

		if end >= len(text) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}

	return chunks
}

// splitPoint finds the best boundary in text[start:limit], preferring the
// last occurrence of the highest-priority separator. Falls back to a hard
// cut at limit when no separator is found.
func splitPoint(text string, start, limit int) int {
	window := text[start:limit]
	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return start + idx + len(sep)
		}
	}
	return limit
}

// chunkID generates a deterministic 32-char hex ID for a chunk:
// SHA-256("<source_url>:<position>") truncated to 128 bits.
func chunkID(sourceURL string, position int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", sourceURL, position)))
	return fmt.Sprintf("%x", h)[:32]
}
