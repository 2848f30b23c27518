package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
)

// FileWriteTool writes content to a file, creating parent directories as
// needed and overwriting any existing content.
type FileWriteTool struct{}

func (t *FileWriteTool) Name() string        { return "file_write" }
func (t *FileWriteTool) Description() string { return "Write content to a file, creating parent directories and overwriting existing content." }

func (t *FileWriteTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "path of the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *FileWriteTool) ActionType(args map[string]interface{}) policy.ActionType {
	return policy.ActionFileWrite
}
func (t *FileWriteTool) Target(args map[string]interface{}) string {
	path, _ := stringArg(args, "path")
	return path
}

func (t *FileWriteTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "missing required argument: path", true
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "missing required argument: content", true
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("failed to create parent directories for %s: %v", path, err), true
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("failed to write %s: %v", path, err), true
	}

	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), false
}
