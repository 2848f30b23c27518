package provider

import (
	"testing"

	"github.com/tamalebot/tamalebot-core/internal/core/message"
)

func TestDetectDialect(t *testing.T) {
	cases := map[string]Dialect{
		"claude-3-5-sonnet-20241022": DialectA,
		"gpt-4o":                     DialectB,
		"gpt-4o-mini":                DialectB,
		"o1-preview":                 DialectB,
		"o3-mini":                   DialectB,
		"kimi-k2":                   DialectB,
		"gemini-1.5-pro":            DialectB,
		"minimax-abab6.5":           DialectB,
		"some-unknown-model":        DialectA,
		"":                          DialectA,
	}
	for model, want := range cases {
		if got := DetectDialect(model); got != want {
			t.Errorf("DetectDialect(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestToDialectBMessagesSimpleText(t *testing.T) {
	history := []message.Message{
		message.NewText(message.RoleUser, "hello"),
	}
	out := toDialectBMessages("", history)
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if out[0].Role != "user" || out[0].Content != "hello" {
		t.Fatalf("unexpected message: %+v", out[0])
	}
}

func TestToDialectBMessagesSystemPromptPrepended(t *testing.T) {
	out := toDialectBMessages("be helpful", []message.Message{message.NewText(message.RoleUser, "hi")})
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Role != "system" || out[0].Content != "be helpful" {
		t.Fatalf("expected system message first, got %+v", out[0])
	}
}

func TestToDialectBMessagesAssistantToolUse(t *testing.T) {
	history := []message.Message{
		message.NewBlocks(message.RoleAssistant,
			message.TextBlock("let me check"),
			message.ToolUseBlock("tool_1", "shell", map[string]interface{}{"command": "echo hi"}),
		),
	}
	out := toDialectBMessages("", history)
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	msg := out[0]
	if msg.Role != "assistant" {
		t.Fatalf("expected assistant role, got %q", msg.Role)
	}
	if msg.Content != "let me check" {
		t.Fatalf("expected text content preserved, got %v", msg.Content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "shell" {
		t.Fatalf("expected one tool call for shell, got %+v", msg.ToolCalls)
	}
}

func TestToDialectBMessagesToolResultOneMessagePerResult(t *testing.T) {
	history := []message.Message{
		message.NewBlocks(message.RoleUser,
			message.ToolResultBlock("tool_1", "ok", false),
			message.ToolResultBlock("tool_2", "bad thing happened", true),
		),
	}
	out := toDialectBMessages("", history)
	if len(out) != 2 {
		t.Fatalf("expected one tool message per result, got %d", len(out))
	}
	if out[0].Role != "tool" || out[0].ToolCallID != "tool_1" || out[0].Content != "ok" {
		t.Fatalf("unexpected first tool message: %+v", out[0])
	}
	if out[1].Content != "ERROR: bad thing happened" {
		t.Fatalf("expected ERROR: prefix on failed result, got %v", out[1].Content)
	}
}

func TestToDialectBToolsRewritesSchema(t *testing.T) {
	tools := []ToolSchema{
		{Name: "shell", Description: "run a command", InputSchema: map[string]interface{}{"type": "object"}},
	}
	out := toDialectBTools(tools)
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].Type != "function" || out[0].Function.Name != "shell" {
		t.Fatalf("unexpected tool shape: %+v", out[0])
	}
}

func TestToAContentPassesBlocksThrough(t *testing.T) {
	m := message.NewBlocks(message.RoleAssistant,
		message.TextBlock("text"),
		message.ToolUseBlock("id1", "vault", map[string]interface{}{"action": "get"}),
	)
	blocks := toAContent(m)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Type != "text" || blocks[1].Type != "tool_use" {
		t.Fatalf("unexpected block types: %+v", blocks)
	}
	if blocks[1].Name != "vault" {
		t.Fatalf("expected tool name preserved, got %q", blocks[1].Name)
	}
}
