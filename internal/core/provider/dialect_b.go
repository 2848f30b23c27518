package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tamalebot/tamalebot-core/common/retry"
	"github.com/tamalebot/tamalebot-core/internal/core/message"
)

const defaultDialectBBase = "https://api.openai.com/v1"

// DialectBConfig configures the function-call-style adapter.
type DialectBConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type dialectBProvider struct {
	cfg    DialectBConfig
	client *http.Client
}

// NewDialectB returns a Provider for APIs that speak the OpenAI-style
// function-call dialect, translating canonical messages and tool schemas at
// the boundary.
func NewDialectB(cfg DialectBConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDialectBBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &dialectBProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// --- wire types ---

type bMessage struct {
	Role       string      `json:"role"`
	Content    interface{} `json:"content"` // string or null
	ToolCalls  []bToolCall `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

type bToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function bFunctionCall `json:"function"`
}

type bFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type bTool struct {
	Type     string       `json:"type"`
	Function bFunctionDef `json:"function"`
}

type bFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type bRequest struct {
	Model     string     `json:"model"`
	Messages  []bMessage `json:"messages"`
	Tools     []bTool    `json:"tools,omitempty"`
	MaxTokens int        `json:"max_tokens,omitempty"`
}

type bUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type bChoice struct {
	Message      bMessage `json:"message"`
	FinishReason string   `json:"finish_reason"`
}

type bResponse struct {
	Choices []bChoice `json:"choices"`
	Usage   bUsage    `json:"usage"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// toDialectBMessages translates canonical history into the function-call
// wire dialect: assistant tool-use blocks become a single message with
// tool_calls; each tool-result block in a following user message becomes its
// own role:"tool" message.
func toDialectBMessages(systemPrompt string, history []message.Message) []bMessage {
	var out []bMessage
	if systemPrompt != "" {
		out = append(out, bMessage{Role: "system", Content: systemPrompt})
	}

	for _, m := range history {
		if !m.IsBlock {
			out = append(out, bMessage{Role: string(m.Role), Content: m.Text})
			continue
		}

		uses := m.ToolUses()
		if m.Role == message.RoleAssistant {
			text := m.ConcatText()
			if len(uses) == 0 {
				out = append(out, bMessage{Role: "assistant", Content: text})
				continue
			}
			msg := bMessage{Role: "assistant"}
			if text != "" {
				msg.Content = text
			}
			for _, u := range uses {
				args, _ := json.Marshal(u.Input)
				msg.ToolCalls = append(msg.ToolCalls, bToolCall{
					ID:   u.ID,
					Type: "function",
					Function: bFunctionCall{
						Name:      u.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, msg)
			continue
		}

		results := m.ToolResults()
		if len(results) > 0 {
			for _, r := range results {
				content := r.Output
				if r.IsError {
					content = "ERROR: " + content
				}
				out = append(out, bMessage{
					Role:       "tool",
					Content:    content,
					ToolCallID: r.ToolUseID,
				})
			}
			continue
		}

		out = append(out, bMessage{Role: string(m.Role), Content: m.ConcatText()})
	}
	return out
}

func toDialectBTools(tools []ToolSchema) []bTool {
	out := make([]bTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, bTool{
			Type: "function",
			Function: bFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

func (p *dialectBProvider) Send(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := bRequest{
		Model:     model,
		Messages:  toDialectBMessages(req.SystemPrompt, req.History),
		Tools:     toDialectBTools(req.Tools),
		MaxTokens: req.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("provider: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	var respBody []byte
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		ShouldRetry:  isRetryableProviderError,
	}, func() error {
		attempt := httpReq.Clone(ctx)
		attempt.Body = io.NopCloser(bytes.NewReader(data))
		resp, doErr := p.client.Do(attempt)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		respBody = body
		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider: upstream returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("provider: http request: %w", err)
	}

	var bResp bResponse
	if err := json.Unmarshal(respBody, &bResp); err != nil {
		return Response{}, fmt.Errorf("provider: decode response: %w", err)
	}
	if bResp.Error != nil {
		return Response{}, fmt.Errorf("provider: api error %s: %s", bResp.Error.Type, bResp.Error.Message)
	}
	if len(bResp.Choices) == 0 {
		return Response{}, fmt.Errorf("provider: no choices in response")
	}

	choice := bResp.Choices[0]
	text, _ := choice.Message.Content.(string)

	var calls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		var input map[string]interface{}
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		if err := json.Unmarshal([]byte(args), &input); err != nil {
			input = map[string]interface{}{}
		}
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}

	return Response{
		Text:         text,
		ToolCalls:    calls,
		StopReason:   choice.FinishReason,
		InputTokens:  bResp.Usage.PromptTokens,
		OutputTokens: bResp.Usage.CompletionTokens,
	}, nil
}
