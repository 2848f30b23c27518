// Package provider abstracts over the wire protocols LLM APIs speak. The
// agent loop and tool executor only ever see canonical messages and tool
// schemas; this package hides the translation between that canonical form
// and each provider's dialect.
package provider

import (
	"context"

	"github.com/tamalebot/tamalebot-core/internal/core/message"
)

// ToolSchema describes one tool offered to the model, independent of wire
// dialect.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Response is the provider-agnostic result of one inference call.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// HasToolCalls reports whether the model requested at least one tool call.
func (r Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Request bundles everything a provider needs to produce the next turn.
type Request struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	History      []message.Message
	Tools        []ToolSchema
}

// Provider sends a canonical conversation history to an LLM backend and
// returns the next response, translating to and from that backend's wire
// dialect as needed.
type Provider interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Dialect identifies which wire protocol a model speaks.
type Dialect string

const (
	// DialectA is the native tool-use-block dialect (e.g. Anthropic).
	DialectA Dialect = "native_blocks"
	// DialectB is the function-call dialect (e.g. OpenAI and compatibles).
	DialectB Dialect = "function_call"
)

// dialectBPrefixes lists the model-name prefixes that speak DialectB.
// Anything not matched here defaults to DialectA.
var dialectBPrefixes = []string{"gpt", "o1", "o3", "kimi", "gemini", "minimax"}

// DetectDialect infers the wire dialect from a model identifier's prefix.
// Unrecognized prefixes default to DialectA.
func DetectDialect(model string) Dialect {
	lower := toLower(model)
	for _, p := range dialectBPrefixes {
		if len(lower) >= len(p) && lower[:len(p)] == p {
			return DialectB
		}
	}
	return DialectA
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
