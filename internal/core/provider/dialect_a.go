package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tamalebot/tamalebot-core/common/retry"
	"github.com/tamalebot/tamalebot-core/internal/core/message"
)

const defaultAnthropicBase = "https://api.anthropic.com/v1"

// DialectAConfig configures the native-tool-use-block adapter.
type DialectAConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type dialectAProvider struct {
	cfg    DialectAConfig
	client *http.Client
}

// NewDialectA returns a Provider for APIs that accept canonical tool-use
// blocks natively (no translation needed on the way in or out).
func NewDialectA(cfg DialectAConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &dialectAProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// --- wire types ---

type aMessage struct {
	Role    string     `json:"role"`
	Content []aContent `json:"content"`
}

type aContent struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type aTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

type aRequest struct {
	Model     string     `json:"model"`
	System    string     `json:"system,omitempty"`
	MaxTokens int        `json:"max_tokens,omitempty"`
	Messages  []aMessage `json:"messages"`
	Tools     []aTool    `json:"tools,omitempty"`
}

type aUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type aResponse struct {
	Content    []aContent `json:"content"`
	StopReason string     `json:"stop_reason"`
	Usage      aUsage     `json:"usage"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func toAMessages(history []message.Message) []aMessage {
	out := make([]aMessage, 0, len(history))
	for _, m := range history {
		out = append(out, aMessage{Role: string(m.Role), Content: toAContent(m)})
	}
	return out
}

func toAContent(m message.Message) []aContent {
	if !m.IsBlock {
		return []aContent{{Type: "text", Text: m.Text}}
	}
	blocks := make([]aContent, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Type {
		case message.BlockText:
			blocks = append(blocks, aContent{Type: "text", Text: b.Text})
		case message.BlockToolUse:
			blocks = append(blocks, aContent{
				Type:  "tool_use",
				ID:    b.ToolUse.ID,
				Name:  b.ToolUse.Name,
				Input: b.ToolUse.Input,
			})
		case message.BlockToolResult:
			blocks = append(blocks, aContent{
				Type:      "tool_result",
				ToolUseID: b.ToolResult.ToolUseID,
				Content:   b.ToolResult.Output,
				IsError:   b.ToolResult.IsError,
			})
		}
	}
	return blocks
}

func (p *dialectAProvider) Send(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	tools := make([]aTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, aTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	body := aRequest{
		Model:     model,
		System:    req.SystemPrompt,
		MaxTokens: req.MaxTokens,
		Messages:  toAMessages(req.History),
		Tools:     tools,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("provider: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

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

	var aResp aResponse
	if err := json.Unmarshal(respBody, &aResp); err != nil {
		return Response{}, fmt.Errorf("provider: decode response: %w", err)
	}
	if aResp.Error != nil {
		return Response{}, fmt.Errorf("provider: api error %s: %s", aResp.Error.Type, aResp.Error.Message)
	}

	var texts []string
	var calls []ToolCall
	for _, c := range aResp.Content {
		switch c.Type {
		case "text":
			texts = append(texts, c.Text)
		case "tool_use":
			calls = append(calls, ToolCall{ID: c.ID, Name: c.Name, Input: c.Input})
		}
	}

	return Response{
		Text:         strings.Join(texts, "\n"),
		ToolCalls:    calls,
		StopReason:   aResp.StopReason,
		InputTokens:  aResp.Usage.InputTokens,
		OutputTokens: aResp.Usage.OutputTokens,
	}, nil
}

// isRetryableProviderError reports whether err came from a transient
// condition (network failure, upstream 5xx) rather than a permanent one
// (bad request, auth failure, decode error).
func isRetryableProviderError(err error) bool {
	return strings.Contains(err.Error(), "upstream returned 5") || !strings.Contains(err.Error(), "provider:")
}
