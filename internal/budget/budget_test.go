package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestEstimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"single char rounds up", "x", 1},
		{"below one token rounds up", "abc", 1},
		{"exact boundary", strings.Repeat("a", 8), 2},
		{"long prose", strings.Repeat("q", 4000), 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Estimate(tc.input); got != tc.want {
				t.Errorf("Estimate(%d chars) = %d, want %d", len(tc.input), got, tc.want)
			}
		})
	}
}

func TestEstimateMessagesCountsRoleAndOverhead(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("what is inverse kinematics"), // 26 chars → 6 tokens
	}
	// 4 overhead + 1 for the role + 6 for the content.
	if got := EstimateMessages(msgs); got != 11 {
		t.Errorf("EstimateMessages = %d, want 11", got)
	}
	if got := EstimateMessages(nil); got != 0 {
		t.Errorf("EstimateMessages(nil) = %d, want 0", got)
	}
}

func TestTrimHistoryKeepsEverythingUnderBudget(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("answer from the book")}
	history := []*schema.Message{
		schema.UserMessage("what is a rotation matrix"),
		schema.AssistantMessage("a rotation matrix is...", nil),
	}
	got := TrimHistory(fixed, history, DefaultMaxContextTokens)
	if len(got) != len(history) {
		t.Fatalf("trimmed %d of %d messages under a generous budget", len(history)-len(got), len(history))
	}
}

func TestTrimHistoryDropsOldestFirst(t *testing.T) {
	t.Parallel()
	history := []*schema.Message{
		schema.UserMessage("old question"), // 4 + 1 + 3 = 8 tokens
		schema.UserMessage("new question"), // 8 tokens
	}
	// Budget fits exactly one history message. The surviving one must be
	// the newest.
	got := TrimHistory(nil, history, 9)
	if len(got) != 1 {
		t.Fatalf("want 1 surviving message, got %d", len(got))
	}
	if got[0].Content != "new question" {
		t.Errorf("survivor = %q, want the newest turn", got[0].Content)
	}
}

func TestTrimHistoryFixedExhaustsBudget(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{
		schema.SystemMessage(strings.Repeat("s", 4*DefaultMaxContextTokens)),
	}
	history := []*schema.Message{
		schema.UserMessage("a"),
		schema.UserMessage("b"),
	}
	if got := TrimHistory(fixed, history, DefaultMaxContextTokens); len(got) != 0 {
		t.Errorf("want all history dropped, kept %d", len(got))
	}
}

func TestTrimHistoryEmptyHistory(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	if got := TrimHistory(fixed, nil, DefaultMaxContextTokens); len(got) != 0 {
		t.Errorf("want empty history back, got %d messages", len(got))
	}
}
