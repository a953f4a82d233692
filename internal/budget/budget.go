// Package budget estimates token usage for chat messages and trims injected
// conversation history to fit a context window. The serving path runs against
// whichever chat backend is configured, so exact tokenizer counts are not
// available; a character heuristic (roughly 4 characters per token for
// English prose) is used instead and rounded in the model's favour.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

// DefaultMaxContextTokens bounds the input side of a chat request. The value
// leaves room for the generated answer even on 8k-context models.
const DefaultMaxContextTokens = 6000

const charsPerToken = 4

// perMessageOverhead accounts for the framing tokens most chat APIs charge
// per message in addition to its content.
const perMessageOverhead = 4

// Estimate returns an approximate token count for s. Non-empty strings
// estimate to at least one token.
func Estimate(s string) int {
	if s == "" {
		return 0
	}
	if n := len(s) / charsPerToken; n > 0 {
		return n
	}
	return 1
}

// EstimateMessages sums the estimated cost of each message, counting role,
// content, and per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageCost(m)
	}
	return total
}

func messageCost(m *schema.Message) int {
	return perMessageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
}

// TrimHistory drops prior conversation turns, oldest first, until fixed plus
// the surviving history fits within maxTokens. fixed holds the messages that
// must survive untouched (system prompt, any pinned selection, the current
// question); only history is eligible for trimming. When fixed alone blows
// the budget the whole history is dropped and an empty slice returned.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	remaining := maxTokens - EstimateMessages(fixed)
	if remaining <= 0 {
		return history[:0]
	}

	// Walk backwards from the newest turn, keeping messages while they fit.
	// History is short (a handful of exchanges) so no cleverness is needed.
	keepFrom := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := messageCost(history[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		keepFrom = i
	}
	return history[keepFrom:]
}
