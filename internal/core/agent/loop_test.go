package agent

import (
	"context"
	"testing"

	"github.com/tamalebot/tamalebot-core/internal/core/audit"
	"github.com/tamalebot/tamalebot-core/internal/core/message"
	"github.com/tamalebot/tamalebot-core/internal/core/policy"
	"github.com/tamalebot/tamalebot-core/internal/core/provider"
	"github.com/tamalebot/tamalebot-core/internal/core/tools"
)

// scriptedProvider returns one canned response per call, in order.
type scriptedProvider struct {
	responses []provider.Response
	calls     int
}

func (p *scriptedProvider) Send(ctx context.Context, req provider.Request) (provider.Response, error) {
	if p.calls >= len(p.responses) {
		return provider.Response{}, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

type echoTool struct{}

func (echoTool) Name() string                   { return "echo" }
func (echoTool) Description() string            { return "echo" }
func (echoTool) InputSchema() map[string]interface{} { return map[string]interface{}{} }
func (echoTool) ActionType(args map[string]interface{}) policy.ActionType {
	return policy.ActionVault
}
func (echoTool) Target(args map[string]interface{}) string { return "" }
func (echoTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	v, _ := args["value"].(string)
	return "echo:" + v, false
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	j, err := audit.New(t.TempDir())
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	engine := policy.New(policy.Config{})
	r := tools.NewRegistry(engine, j)
	r.Register(echoTool{})
	return r
}

func TestLoopReturnsFinalTextWithoutToolCalls(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		{Text: "hello there"},
	}}
	loop := New(p, newTestRegistry(t))

	result, err := loop.Run(context.Background(), "agent-1", "hi", nil, Config{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "hello there" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
	if result.ToolCallCount != 0 {
		t.Fatalf("expected 0 tool calls, got %d", result.ToolCallCount)
	}
}

func TestLoopDispatchesToolCallsAndContinues(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		{
			Text: "let me check",
			ToolCalls: []provider.ToolCall{
				{ID: "call-1", Name: "echo", Input: map[string]interface{}{"value": "x"}},
			},
		},
		{Text: "done"},
	}}
	loop := New(p, newTestRegistry(t))

	result, err := loop.Run(context.Background(), "agent-1", "hi", nil, Config{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "done" {
		t.Fatalf("unexpected final text: %q", result.Text)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", result.Iterations)
	}
	if result.ToolCallCount != 1 {
		t.Fatalf("expected 1 tool call, got %d", result.ToolCallCount)
	}

	if len(result.History) != 4 {
		t.Fatalf("expected 4 messages in history (user, assistant-tooluse, user-toolresult, assistant-final), got %d", len(result.History))
	}
	results := result.History[2].ToolResults()
	if len(results) != 1 || results[0].Output != "echo:x" {
		t.Fatalf("unexpected tool result: %+v", results)
	}
}

func TestLoopStopsAtIterationBound(t *testing.T) {
	var responses []provider.Response
	for i := 0; i < 5; i++ {
		responses = append(responses, provider.Response{
			Text: "still working",
			ToolCalls: []provider.ToolCall{
				{ID: "call", Name: "echo", Input: map[string]interface{}{"value": "x"}},
			},
		})
	}
	p := &scriptedProvider{responses: responses}
	loop := New(p, newTestRegistry(t))

	result, err := loop.Run(context.Background(), "agent-1", "hi", nil, Config{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.HitIterationBound {
		t.Fatal("expected HitIterationBound to be true")
	}
	if result.Iterations != 3 {
		t.Fatalf("expected 3 iterations, got %d", result.Iterations)
	}
	if result.Text != "still working" {
		t.Fatalf("expected most recent text on bound, got %q", result.Text)
	}
}

func TestLoopHooksAreCalled(t *testing.T) {
	p := &scriptedProvider{responses: []provider.Response{
		{
			Text:         "working",
			InputTokens:  10,
			OutputTokens: 5,
			ToolCalls: []provider.ToolCall{
				{ID: "call-1", Name: "echo", Input: map[string]interface{}{"value": "y"}},
			},
		},
		{Text: "done", InputTokens: 3, OutputTokens: 2},
	}}
	loop := New(p, newTestRegistry(t))

	var texts []string
	var toolCalls []string
	var toolResults []string
	var totalIn, totalOut int

	cfg := Config{Hooks: Hooks{
		OnTokenUsage: func(in, out int) { totalIn += in; totalOut += out },
		OnText:       func(text string) { texts = append(texts, text) },
		OnToolCall:   func(name string, args map[string]interface{}) { toolCalls = append(toolCalls, name) },
		OnToolResult: func(name, output string, isError bool) { toolResults = append(toolResults, output) },
	}}

	result, err := loop.Run(context.Background(), "agent-1", "hi", nil, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if totalIn != 13 || totalOut != 7 {
		t.Fatalf("unexpected totals: in=%d out=%d", totalIn, totalOut)
	}
	if len(texts) != 2 || texts[0] != "working" || texts[1] != "done" {
		t.Fatalf("unexpected texts: %+v", texts)
	}
	if len(toolCalls) != 1 || toolCalls[0] != "echo" {
		t.Fatalf("unexpected tool calls: %+v", toolCalls)
	}
	if len(toolResults) != 1 || toolResults[0] != "echo:y" {
		t.Fatalf("unexpected tool results: %+v", toolResults)
	}
	_ = result
}

func TestLoopRejectsInvalidHistory(t *testing.T) {
	p := &scriptedProvider{}
	loop := New(p, newTestRegistry(t))

	badHistory := []message.Message{
		message.NewBlocks(message.RoleAssistant, message.ToolUseBlock("call-1", "echo", nil)),
	}
	_, err := loop.Run(context.Background(), "agent-1", "hi", badHistory, Config{})
	if err == nil {
		t.Fatal("expected error for invalid history")
	}
}
