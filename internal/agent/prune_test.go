package agent

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/researcher/internal/providers"
)

func conversation(toolContent string) []providers.Message {
	return []providers.Message{
		{Role: providers.RoleSystem, Content: "sys"},
		{Role: providers.RoleUser, Content: "query"},
		{Role: providers.RoleAssistant, ToolCalls: []providers.ToolCall{{ID: "1", Name: "web_fetch"}}},
		{Role: providers.RoleTool, Content: toolContent, ToolCallID: "1"},
		{Role: providers.RoleAssistant, ToolCalls: []providers.ToolCall{{ID: "2", Name: "wikipedia"}}},
		{Role: providers.RoleTool, Content: "recent result", ToolCallID: "2"},
	}
}

func TestPruneToolResults_SmallContextUntouched(t *testing.T) {
	msgs := conversation(strings.Repeat("x", 5000))
	out := pruneToolResults(msgs, defaultContextWindowTokens)
	if out[3].Content != msgs[3].Content {
		t.Error("small conversations must not be pruned")
	}
}

func TestPruneToolResults_SoftTrim(t *testing.T) {
	// window of 10k chars: 5k tool result is above the soft ratio, below hard.
	body := strings.Repeat("a", 2000) + strings.Repeat("m", 1000) + strings.Repeat("z", 2000)
	msgs := conversation(body)
	out := pruneToolResults(msgs, 2500)

	got := out[3].Content
	if !strings.HasPrefix(got, strings.Repeat("a", softTrimHeadChars)) || !strings.Contains(got, strings.Repeat("z", softTrimTailChars)) {
		t.Error("expected head and tail to be kept")
	}
	if strings.Contains(got, strings.Repeat("m", 10)) {
		t.Error("middle should be dropped")
	}
	if !strings.Contains(got, "[Tool result trimmed") {
		t.Error("missing trim marker")
	}
	if msgs[3].Content != body {
		t.Error("input slice was modified")
	}
	if out[5].Content != "recent result" {
		t.Error("results after the last assistant turn are protected")
	}
}

func TestPruneToolResults_HardClear(t *testing.T) {
	msgs := conversation(strings.Repeat("b", 3000))
	out := pruneToolResults(msgs, 1000) // 4k chars window
	if out[3].Content != hardClearPlaceholder {
		t.Errorf("expected placeholder, got %q", out[3].Content[:40])
	}
	if out[3].ToolCallID != "1" {
		t.Error("tool call id must be preserved")
	}
}

func TestPruneToolResults_NoAssistant(t *testing.T) {
	msgs := []providers.Message{{Role: providers.RoleUser, Content: strings.Repeat("q", 10000)}}
	if out := pruneToolResults(msgs, 100); len(out) != 1 || out[0].Content != msgs[0].Content {
		t.Error("nothing to prune without tool turns")
	}
}

func TestTakeHeadTail_Runes(t *testing.T) {
	s := "héllo wörld"
	if got := takeHead(s, 2); got != "hé" {
		t.Errorf("takeHead = %q", got)
	}
	if got := takeTail(s, 3); got != "rld" {
		t.Errorf("takeTail = %q", got)
	}
	if takeHead(s, 0) != "" || takeTail(s, 100) != s {
		t.Error("edge cases")
	}
}
