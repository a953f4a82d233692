package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// Retrieval parameter bounds at the tool boundary. The model picks its own
// limit and threshold; they get clamped rather than rejected so a bad pick
// never breaks the agent loop.
const (
	toolMaxResults       = 10
	toolDefaultResults   = 5
	toolDefaultThreshold = 0.5
)

// Searcher is the slice of the retrieval service the agent needs.
type Searcher interface {
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error)
}

// ToolCall is one recorded invocation of the search tool.
type ToolCall struct {
	Name   string
	Output json.RawMessage
}

// searchTool exposes retrieval to the model as the search_book_content tool.
// One instance serves one request: it records every result it returned so
// citations can be validated against what the model actually saw, not what
// the model claims it saw.
type searchTool struct {
	searcher Searcher

	// defaultFilter carries request-level corpus filters, applied when the
	// model does not pass its own.
	defaultFilter rag.Filter

	// onCall, when set, is invoked synchronously with each tool output
	// (streaming surfaces tool_call events through it).
	onCall func(call ToolCall)

	mu      sync.Mutex
	results []rag.SearchResult
}

// searchInput is the JSON-serialisable input schema for the search tool.
type searchInput struct {
	Query           string  `json:"query"`
	Limit           int     `json:"limit,omitempty"`
	ScoreThreshold  float64 `json:"score_threshold,omitempty"`
	SourceURLPrefix string  `json:"source_url_prefix,omitempty"`
	Section         string  `json:"section,omitempty"`
}

// searchOutput is the JSON payload returned to the model. Failures are part
// of the payload, never a Go error: a broken search must read as "the tool
// found nothing" rather than aborting the agent loop.
type searchOutput struct {
	Results      []rag.SearchResult `json:"results"`
	TotalResults int                `json:"total_results"`
	QueryTimeMS  float64            `json:"query_time_ms,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Error        string             `json:"error,omitempty"`
	Message      string             `json:"message"`
}

func newSearchTool(searcher Searcher, defaultFilter rag.Filter, onCall func(ToolCall)) *searchTool {
	return &searchTool{
		searcher:      searcher,
		defaultFilter: defaultFilter,
		onCall:        onCall,
	}
}

// Name returns the tool name registered with the agent.
func (t *searchTool) Name() string { return "search_book_content" }

// Info returns the Eino tool metadata including the JSON input schema.
func (t *searchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: "Search the Physical AI & Robotics book for relevant content. " +
			"Use this tool to find information from the textbook before answering questions. " +
			"Always search for relevant content before providing an answer.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "Natural language search query describing what you're looking for.",
				Required: true,
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum number of results to return (1-10, default 5).",
			},
			"score_threshold": {
				Type: schema.Number,
				Desc: "Minimum similarity score (0.0-1.0, default 0.5).",
			},
			"source_url_prefix": {
				Type: schema.String,
				Desc: `Optional filter for URL prefix (e.g. "/docs/module1").`,
			},
			"section": {
				Type: schema.String,
				Desc: "Optional filter for a specific section name (exact match).",
			},
		}),
	}, nil
}

// InvokableRun executes a search for the model. The returned string is always
// a valid searchOutput JSON document.
func (t *searchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input searchInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return t.emit(searchOutput{
			Results: []rag.SearchResult{},
			Error:   err.Error(),
			Message: fmt.Sprintf("Search failed: invalid arguments: %v", err),
		})
	}

	limit := input.Limit
	if limit == 0 {
		limit = toolDefaultResults
	}
	limit = max(1, min(limit, toolMaxResults))

	threshold := float32(input.ScoreThreshold)
	if input.ScoreThreshold == 0 {
		threshold = toolDefaultThreshold
	}
	threshold = max(0, min(threshold, 1))

	urlPrefix := input.SourceURLPrefix
	if urlPrefix == "" {
		urlPrefix = t.defaultFilter.SourceURLPrefix
	}
	section := input.Section
	if section == "" {
		section = t.defaultFilter.Section
	}

	resp, err := t.searcher.Search(ctx, rag.SearchRequest{
		Query:           input.Query,
		Limit:           limit,
		ScoreThreshold:  threshold,
		SourceURLPrefix: urlPrefix,
		Section:         section,
	})
	if err != nil {
		return t.emit(searchOutput{
			Results: []rag.SearchResult{},
			Error:   err.Error(),
			Message: fmt.Sprintf("Search failed: %v", err),
		})
	}

	t.mu.Lock()
	t.results = append(t.results, resp.Results...)
	t.mu.Unlock()

	message := "No relevant passages found"
	if len(resp.Results) > 0 {
		message = fmt.Sprintf("Found %d relevant passages", resp.TotalResults)
	}
	return t.emit(searchOutput{
		Results:      resp.Results,
		TotalResults: resp.TotalResults,
		QueryTimeMS:  resp.QueryTimeMS,
		Warnings:     resp.Warnings,
		Message:      message,
	})
}

// emit serialises the output and notifies the stream observer.
func (t *searchTool) emit(out searchOutput) (string, error) {
	if out.Results == nil {
		out.Results = []rag.SearchResult{}
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("search_book_content: marshal output: %w", err)
	}
	if t.onCall != nil {
		t.onCall(ToolCall{Name: t.Name(), Output: payload})
	}
	return string(payload), nil
}

// Results returns everything the tool actually returned to the model during
// this request.
func (t *searchTool) Results() []rag.SearchResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]rag.SearchResult, len(t.results))
	copy(out, t.results)
	return out
}
