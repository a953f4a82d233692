package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// Response modes. selected_text is terminal: a selected-text answer is never
// reclassified by retrieval confidence.
const (
	ModeFull          = "full"
	ModeSelectedText  = "selected_text"
	ModeRetrievalOnly = "retrieval_only"
	ModeNoResults     = "no_results"
)

// Default confidence thresholds over the best retrieval score.
const (
	DefaultHighConfidence = 0.5
	DefaultLowConfidence  = 0.3
)

// snippetMaxChars is the hard cap on citation snippets, ellipsis included.
const snippetMaxChars = 200

// Thresholds holds the confidence cut points. The zero value selects the
// defaults, so deployments with recalibrated corpora can override via config
// without every caller carrying the defaults around.
type Thresholds struct {
	High float32
	Low  float32
}

func (t Thresholds) withDefaults() Thresholds {
	if t.High == 0 {
		t.High = DefaultHighConfidence
	}
	if t.Low == 0 {
		t.Low = DefaultLowConfidence
	}
	return t
}

// Citation is a validated pointer into the corpus, attached to an answer.
type Citation struct {
	SourceURL       string  `json:"source_url"`
	Title           string  `json:"title"`
	Section         string  `json:"section"`
	ChunkPosition   int     `json:"chunk_position"`
	SimilarityScore float32 `json:"similarity_score"`
	Snippet         string  `json:"snippet"`
}

// SelectedTextCitation is the single citation attached to a selected-text
// answer: it points at the user's own selection, not the corpus.
type SelectedTextCitation struct {
	SourceType      string `json:"source_type"`
	SelectionLength int    `json:"selection_length"`
	Snippet         string `json:"snippet"`
	RelevanceNote   string `json:"relevance_note"`
}

// Classify partitions the best retrieval score into a confidence flag and a
// response mode:
//
//	no results          -> (false, no_results)
//	max score >= High   -> (false, full)
//	Low <= max < High   -> (true,  full)
//	max score < Low     -> (true,  no_results)
func Classify(results []rag.SearchResult, th Thresholds) (lowConfidence bool, mode string) {
	if len(results) == 0 {
		return false, ModeNoResults
	}
	th = th.withDefaults()

	var maxScore float32
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	switch {
	case maxScore >= th.High:
		return false, ModeFull
	case maxScore >= th.Low:
		return true, ModeFull
	default:
		return true, ModeNoResults
	}
}

// ExtractCitations builds citations from what the retrieval tool actually
// returned. Results are deduplicated by (source_url, chunk_position) with
// the first occurrence winning — tool results arrive best-first, so the
// kept entry carries the highest score for that chunk. Nothing outside
// toolResults can ever become a citation.
func ExtractCitations(toolResults []rag.SearchResult) []Citation {
	if len(toolResults) == 0 {
		return nil
	}

	type key struct {
		url string
		pos int
	}
	seen := make(map[key]struct{}, len(toolResults))

	citations := make([]Citation, 0, len(toolResults))
	for _, r := range toolResults {
		k := key{r.SourceURL, r.ChunkPosition}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		citations = append(citations, Citation{
			SourceURL:       r.SourceURL,
			Title:           r.Title,
			Section:         r.Section,
			ChunkPosition:   r.ChunkPosition,
			SimilarityScore: r.Score,
			Snippet:         snippet(r.ChunkText),
		})
	}
	return citations
}

// NewSelectedTextCitation builds the citation for a selected-text answer.
func NewSelectedTextCitation(selectedText string) SelectedTextCitation {
	return SelectedTextCitation{
		SourceType:      "selected_text",
		SelectionLength: len(selectedText),
		Snippet:         snippet(selectedText),
		RelevanceNote:   "Answer derived from provided selection",
	}
}

// snippet returns the first part of text, whitespace-trimmed, with an
// ellipsis when truncated, never exceeding snippetMaxChars. The cut lands
// on a rune boundary so the snippet stays valid UTF-8.
func snippet(text string) string {
	if len(text) <= snippetMaxChars {
		return strings.TrimSpace(text)
	}
	s := strings.TrimSpace(rag.TruncateRuneSafe(text, snippetMaxChars-len("...")))
	return s + "..."
}

// FallbackAnswer produces the user-facing text when generation failed or
// retrieval came back empty. Returns "" when no fallback is needed (the
// model produced an answer from real results).
func FallbackAnswer(toolResults []rag.SearchResult, generationFailed bool) string {
	if generationFailed {
		if len(toolResults) > 0 {
			sections := make(map[string]struct{})
			for _, r := range toolResults[:min(3, len(toolResults))] {
				section := r.Section
				if section == "" {
					section = "Unknown"
				}
				sections[section] = struct{}{}
			}
			names := make([]string, 0, len(sections))
			for s := range sections {
				names = append(names, s)
			}
			sort.Strings(names)

			return fmt.Sprintf(
				"I found relevant content in the following sections: %s. "+
					"However, I'm currently unable to generate a detailed response. "+
					"Please check the sources below for the information you need.",
				strings.Join(names, ", "))
		}
		return "I'm currently unable to search the textbook. Please try again in a moment."
	}

	if len(toolResults) == 0 {
		return "I couldn't find relevant information in the textbook to answer your question." +
			outOfScopeSuggestion
	}

	return ""
}
