// Package agent implements the bounded think/act loop that drives one
// conversational turn: call the model, and if it asks for tools, run them
// through the mediated registry and feed the results back, until the model
// produces a final answer or the iteration bound is hit.
package agent

import (
	"context"
	"fmt"

	"github.com/tamalebot/tamalebot-core/internal/core/message"
	"github.com/tamalebot/tamalebot-core/internal/core/provider"
	"github.com/tamalebot/tamalebot-core/internal/core/tools"
)

const defaultMaxIterations = 20

// Hooks are optional callbacks invoked at points during a run, for
// streaming intermediate state out to a caller (e.g. an HTTP handler).
type Hooks struct {
	OnTokenUsage func(inputTokens, outputTokens int)
	OnText       func(text string)
	OnToolCall   func(name string, input map[string]interface{})
	OnToolResult func(name, output string, isError bool)
}

// Config configures one call to Loop.Run.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxTokens     int
	MaxIterations int
	Tools         []provider.ToolSchema
	Hooks         Hooks
}

// Result summarizes the outcome of a run.
type Result struct {
	Text              string
	History           []message.Message
	ToolCallCount     int
	Iterations        int
	TotalInputTokens  int
	TotalOutputTokens int
	HitIterationBound bool
}

// Loop pairs a provider with a tool registry to drive the think/act cycle.
type Loop struct {
	Provider provider.Provider
	Registry *tools.Registry
}

// New returns a Loop wired to p and registry.
func New(p provider.Provider, registry *tools.Registry) *Loop {
	return &Loop{Provider: p, Registry: registry}
}

// Run appends userText to history as a new user turn, then iterates:
// call the model, and if it requests tool calls, dispatch each one through
// the registry (which mediates policy and audit), append the results, and
// call the model again. It stops when the model returns a turn with no
// tool calls, or after cfg.MaxIterations iterations, whichever comes
// first. On hitting the bound, the most recent model text is returned.
func (l *Loop) Run(ctx context.Context, agentID, userText string, history []message.Message, cfg Config) (Result, error) {
	if err := message.ValidateHistory(history); err != nil {
		return Result{}, fmt.Errorf("agent: invalid history: %w", err)
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	working := append(append([]message.Message{}, history...), message.NewText(message.RoleUser, userText))

	result := Result{}
	var lastText string

	for iteration := 1; iteration <= maxIterations; iteration++ {
		result.Iterations = iteration

		req := provider.Request{
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			MaxTokens:    cfg.MaxTokens,
			History:      working,
			Tools:        cfg.Tools,
		}

		resp, err := l.Provider.Send(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("agent: provider call failed on iteration %d: %w", iteration, err)
		}

		result.TotalInputTokens += resp.InputTokens
		result.TotalOutputTokens += resp.OutputTokens
		if cfg.Hooks.OnTokenUsage != nil {
			cfg.Hooks.OnTokenUsage(resp.InputTokens, resp.OutputTokens)
		}
		if resp.Text != "" {
			lastText = resp.Text
			if cfg.Hooks.OnText != nil {
				cfg.Hooks.OnText(resp.Text)
			}
		}

		if !resp.HasToolCalls() {
			working = append(working, message.NewText(message.RoleAssistant, resp.Text))
			result.Text = resp.Text
			result.History = working
			return result, nil
		}

		assistantBlocks := make([]message.Block, 0, len(resp.ToolCalls)+1)
		if resp.Text != "" {
			assistantBlocks = append(assistantBlocks, message.TextBlock(resp.Text))
		}
		for _, call := range resp.ToolCalls {
			assistantBlocks = append(assistantBlocks, message.ToolUseBlock(call.ID, call.Name, call.Input))
		}
		working = append(working, message.NewBlocks(message.RoleAssistant, assistantBlocks...))

		resultBlocks := make([]message.Block, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result.ToolCallCount++
			if cfg.Hooks.OnToolCall != nil {
				cfg.Hooks.OnToolCall(call.Name, call.Input)
			}

			output, isError := l.Registry.Execute(ctx, agentID, call.Name, call.Input)

			if cfg.Hooks.OnToolResult != nil {
				cfg.Hooks.OnToolResult(call.Name, output, isError)
			}
			resultBlocks = append(resultBlocks, message.ToolResultBlock(call.ID, output, isError))
		}
		working = append(working, message.NewBlocks(message.RoleUser, resultBlocks...))
	}

	result.Text = lastText
	result.History = working
	result.HitIterationBound = true
	return result, nil
}
