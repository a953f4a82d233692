// Package agent answers questions about the book corpus with a tool-calling
// LLM. In full mode the model runs an Eino ReAct loop with retrieval exposed
// as a tool; in selected-text mode the tool is withheld and the model is
// constrained to the user's selection. The confidence and citation layer on
// top is pure functions over what the tool actually returned.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/roboverse/bookqa-go/internal/budget"
	"github.com/roboverse/bookqa-go/internal/rag"
	"github.com/roboverse/bookqa-go/internal/store"
)

// defaultHistoryDepth is how many prior exchanges are injected per request.
const defaultHistoryDepth = 5

// Config holds the dependencies required to construct an Agent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Searcher is the retrieval service backing the search tool.
	Searcher Searcher

	// Thresholds are the confidence cut points (zero value = defaults).
	Thresholds Thresholds

	// HistoryDepth is the number of prior exchanges injected per request.
	// Defaults to 5 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Agent generates grounded answers over the book corpus. It is stateless
// across requests and safe for concurrent use; the per-request tool-capture
// state lives in values created inside each call.
type Agent struct {
	chatModel        model.ToolCallingChatModel
	searcher         Searcher
	thresholds       Thresholds
	historyDepth     int
	maxContextTokens int
}

// Request carries one question into the agent.
type Request struct {
	// Query is the user's question.
	Query string

	// SelectedText, when non-empty, switches to selected-text mode: the
	// search tool is withheld and the model answers only from this text.
	SelectedText string

	// History holds prior exchanges of the session, oldest first.
	History []store.Exchange

	// SourceURLPrefix and Section are request-level corpus filters, used
	// when the model does not supply its own.
	SourceURLPrefix string
	Section         string
}

// Result is the outcome of one non-streaming answer.
type Result struct {
	// Answer is the model's final text, empty when generation failed.
	Answer string

	// ToolResults is everything the retrieval tool returned during the
	// request, recorded independently of the model's self-report.
	ToolResults []rag.SearchResult

	// GenerationErr is the model failure, if any. Retrieval may have
	// succeeded even when generation failed — ToolResults says so.
	GenerationErr error
}

// New constructs an Agent from the provided Config.
func New(cfg *Config) (*Agent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("agent: Searcher must not be nil")
	}

	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Agent{
		chatModel:        cfg.ChatModel,
		searcher:         cfg.Searcher,
		thresholds:       cfg.Thresholds.withDefaults(),
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Thresholds returns the confidence cut points the agent was built with, so
// the API layer classifies with the same calibration.
func (a *Agent) Thresholds() Thresholds { return a.thresholds }

// Answer runs one request to completion. Generation failures are carried in
// the Result rather than returned: the caller still needs the tool results
// to build a retrieval-only fallback.
func (a *Agent) Answer(ctx context.Context, req Request) *Result {
	messages := a.buildMessages(req)

	if req.SelectedText != "" {
		msg, err := a.chatModel.Generate(ctx, messages)
		if err != nil {
			return &Result{GenerationErr: fmt.Errorf("agent: generate: %w", err)}
		}
		return &Result{Answer: msg.Content}
	}

	st := newSearchTool(a.searcher, rag.Filter{
		SourceURLPrefix: req.SourceURLPrefix,
		Section:         req.Section,
	}, nil)

	reactAgent, err := a.newReactAgent(ctx, st)
	if err != nil {
		return &Result{GenerationErr: err}
	}

	msg, err := reactAgent.Generate(ctx, messages)
	if err != nil {
		return &Result{
			ToolResults:   st.Results(),
			GenerationErr: fmt.Errorf("agent: generate: %w", err),
		}
	}

	return &Result{Answer: msg.Content, ToolResults: st.Results()}
}

// AnswerStream runs one request and emits a finite event sequence on the
// returned channel: zero or more delta and tool_call events, then at most
// one sources event, then exactly one done or error event. The channel is
// closed after the terminal event.
func (a *Agent) AnswerStream(ctx context.Context, req Request) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		messages := a.buildMessages(req)

		if req.SelectedText != "" {
			a.streamSelectedText(ctx, req, messages, events)
			return
		}

		st := newSearchTool(a.searcher, rag.Filter{
			SourceURLPrefix: req.SourceURLPrefix,
			Section:         req.Section,
		}, func(call ToolCall) {
			events <- StreamEvent{Type: EventToolCall, Name: call.Name, Output: call.Output}
		})

		reactAgent, err := a.newReactAgent(ctx, st)
		if err != nil {
			events <- StreamEvent{Type: EventError, Message: err.Error()}
			return
		}

		sr, err := reactAgent.Stream(ctx, messages)
		if err != nil {
			events <- StreamEvent{Type: EventError, Message: err.Error()}
			return
		}
		defer sr.Close()

		answer, err := forwardDeltas(sr, events)
		if err != nil {
			events <- StreamEvent{Type: EventError, Message: err.Error()}
			return
		}

		toolResults := st.Results()
		if len(toolResults) > 0 {
			events <- StreamEvent{Type: EventSources, Data: ExtractCitations(toolResults)}
		}

		events <- StreamEvent{Type: EventDone, Answer: answer, ToolResults: toolResults}
	}()

	return events
}

// streamSelectedText streams a direct model call: no tool, one selection
// citation.
func (a *Agent) streamSelectedText(ctx context.Context, req Request, messages []*schema.Message, events chan<- StreamEvent) {
	sr, err := a.chatModel.Stream(ctx, messages)
	if err != nil {
		events <- StreamEvent{Type: EventError, Message: err.Error()}
		return
	}
	defer sr.Close()

	answer, err := forwardDeltas(sr, events)
	if err != nil {
		events <- StreamEvent{Type: EventError, Message: err.Error()}
		return
	}

	events <- StreamEvent{Type: EventSources, Data: []SelectedTextCitation{NewSelectedTextCitation(truncateSelection(req.SelectedText))}}
	events <- StreamEvent{Type: EventDone, Answer: answer}
}

// forwardDeltas drains the stream, forwarding non-empty content chunks as
// delta events, and returns the accumulated answer.
func forwardDeltas(sr *schema.StreamReader[*schema.Message], events chan<- StreamEvent) (string, error) {
	var answer []byte
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return string(answer), nil
		}
		if err != nil {
			return "", fmt.Errorf("agent: stream receive: %w", err)
		}
		if msg != nil && msg.Content != "" {
			answer = append(answer, msg.Content...)
			events <- StreamEvent{Type: EventDelta, Content: msg.Content}
		}
	}
}

// newReactAgent wires the per-request capture tool into a fresh ReAct loop.
func (a *Agent) newReactAgent(ctx context.Context, st *searchTool) (*react.Agent, error) {
	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: a.chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: []tool.BaseTool{st},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create ReAct agent: %w", err)
	}
	return reactAgent, nil
}

// buildMessages assembles [system, ...history, user], with history capped at
// historyDepth exchanges and trimmed oldest-first to the token budget.
func (a *Agent) buildMessages(req Request) []*schema.Message {
	system := baseInstructions
	if req.SelectedText != "" {
		system = baseInstructions + "\n\n" + fmt.Sprintf(selectedTextInstructions, truncateSelection(req.SelectedText))
	}

	exchanges := req.History
	if len(exchanges) > a.historyDepth {
		exchanges = exchanges[len(exchanges)-a.historyDepth:]
	}
	history := make([]*schema.Message, 0, len(exchanges)*2)
	for _, ex := range exchanges {
		history = append(history,
			schema.UserMessage(ex.Query),
			schema.AssistantMessage(ex.Response, nil))
	}

	fixed := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(req.Query),
	}
	history = budget.TrimHistory(fixed, history, a.maxContextTokens)

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, fixed[0])
	messages = append(messages, history...)
	messages = append(messages, fixed[1])
	return messages
}

// truncateSelection caps the selection injected into the prompt. The API
// layer rejects selections over its own limit; this guards the prompt
// against anything that slips through internal callers.
func truncateSelection(s string) string {
	return rag.TruncateRuneSafe(s, rag.MaxQueryChars)
}
