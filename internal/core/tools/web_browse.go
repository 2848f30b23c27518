package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
)

const (
	webBrowseTimeout  = 30 * time.Second
	webBrowseCap      = 20000
	webBrowseCapBytes = 5 << 20 // 5 MiB raw body cap before stripping
	webBrowseUA       = "tamalebot-agent/1.0"
)

var (
	scriptStyleTagPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	anyTagPattern         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespacePattern     = regexp.MustCompile(`\s+`)
)

// WebBrowseTool fetches a URL and returns its stripped, whitespace-collapsed
// text content.
type WebBrowseTool struct {
	Client *http.Client
}

func (t *WebBrowseTool) httpClient() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return &http.Client{Timeout: webBrowseTimeout}
}

func (t *WebBrowseTool) Name() string { return "web_browse" }
func (t *WebBrowseTool) Description() string {
	return fmt.Sprintf("Fetch a URL and return its text content, truncated at %s.", humanize.Bytes(webBrowseCap))
}

func (t *WebBrowseTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{"type": "string", "description": "the URL to fetch"},
		},
		"required": []string{"url"},
	}
}

func (t *WebBrowseTool) ActionType(args map[string]interface{}) policy.ActionType {
	return policy.ActionHTTPRequest
}
func (t *WebBrowseTool) Target(args map[string]interface{}) string {
	url, _ := stringArg(args, "url")
	return url
}

func (t *WebBrowseTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	url, ok := stringArg(args, "url")
	if !ok || url == "" {
		return "missing required argument: url", true
	}

	runCtx, cancel := context.WithTimeout(ctx, webBrowseTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(runCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("invalid url %s: %v", url, err), true
	}
	req.Header.Set("User-Agent", webBrowseUA)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.1")

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return fmt.Sprintf("fetch %s failed: %v", url, err), true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Sprintf("fetch %s returned status %d", url, resp.StatusCode), true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, webBrowseCapBytes))
	if err != nil {
		return fmt.Sprintf("read response body from %s failed: %v", url, err), true
	}

	text := scriptStyleTagPattern.ReplaceAllString(string(body), "")
	text = anyTagPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > webBrowseCap {
		text = text[:webBrowseCap]
	}

	return text, false
}
