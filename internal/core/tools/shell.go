package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
)

const (
	shellDefaultTimeout = 30 * time.Second
	shellMaxTimeout     = 120 * time.Second
	shellCaptureCap     = 1 << 20 // 1 MiB
	shellResultCap      = 10000
)

// ShellTool runs a command in the agent's working directory.
type ShellTool struct {
	AgentID string
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return fmt.Sprintf("Run a shell command in the agent's working directory. Output is captured up to %s and truncated in the result.", humanize.Bytes(shellCaptureCap))
}

func (t *ShellTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command":    map[string]interface{}{"type": "string", "description": "the command to run"},
			"timeout_ms": map[string]interface{}{"type": "integer", "description": "timeout in milliseconds, default 30000, hard-capped at 120000"},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) ActionType(args map[string]interface{}) policy.ActionType { return policy.ActionCommand }
func (t *ShellTool) Target(args map[string]interface{}) string {
	cmd, _ := stringArg(args, "command")
	return cmd
}

func (t *ShellTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	command, ok := stringArg(args, "command")
	if !ok || command == "" {
		return "missing required argument: command", true
	}

	timeout := time.Duration(intArgOr(args, "timeout_ms", int(shellDefaultTimeout/time.Millisecond))) * time.Millisecond
	if timeout <= 0 || timeout > shellMaxTimeout {
		timeout = shellMaxTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Env = append(cmd.Environ(), "TAMALEBOT_AGENT_ID="+t.AgentID)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = capped(&stdout, shellCaptureCap)
	cmd.Stderr = capped(&stderr, shellCaptureCap)

	err := cmd.Run()

	combined := stdout.String()
	if stderr.Len() > 0 {
		if combined != "" {
			combined += "\n--- stderr ---\n"
		}
		combined += stderr.String()
	}
	if len(combined) > shellResultCap {
		combined = combined[:shellResultCap]
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("command timed out after %s\n%s", timeout, combined), true
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Sprintf("command exited with code %d\n%s", exitErr.ExitCode(), combined), true
		}
		return fmt.Sprintf("command failed: %v\n%s", err, combined), true
	}

	return combined, false
}

// cappedWriter discards writes past a byte limit, keeping only the first n
// bytes, so a runaway process cannot exhaust memory before truncation.
type cappedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if w.buf.Len() >= w.limit {
		return len(p), nil
	}
	remaining := w.limit - w.buf.Len()
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}

func capped(buf *bytes.Buffer, limit int) *cappedWriter {
	return &cappedWriter{buf: buf, limit: limit}
}
