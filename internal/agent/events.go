package agent

import (
	"encoding/json"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// EventType discriminates streaming events.
type EventType string

const (
	// EventDelta carries one chunk of answer text.
	EventDelta EventType = "delta"
	// EventToolCall reports one completed retrieval tool invocation.
	EventToolCall EventType = "tool_call"
	// EventSources carries the validated citations, at most once, after all
	// deltas and tool calls.
	EventSources EventType = "sources"
	// EventDone terminates a successful stream with the full answer.
	EventDone EventType = "done"
	// EventError terminates a failed stream. A stream ends with exactly one
	// of done or error.
	EventError EventType = "error"
)

// StreamEvent is one event of an answer stream. Only the fields relevant to
// the event's type are set.
type StreamEvent struct {
	Type EventType `json:"type"`

	// Content is the text chunk (delta).
	Content string `json:"content,omitempty"`

	// Name and Output describe a tool invocation (tool_call).
	Name   string          `json:"name,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`

	// Data holds the citations (sources).
	Data any `json:"data,omitempty"`

	// Answer and ToolResults summarise the finished request (done). The
	// server persists from ToolResults after forwarding the event.
	Answer      string             `json:"answer,omitempty"`
	ToolResults []rag.SearchResult `json:"tool_results,omitempty"`

	// Message is the failure description (error).
	Message string `json:"message,omitempty"`
}
