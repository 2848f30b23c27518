package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
)

const fileReadCap = 50000

// FileReadTool reads a file from the local filesystem.
type FileReadTool struct{}

func (t *FileReadTool) Name() string { return "file_read" }
func (t *FileReadTool) Description() string {
	return fmt.Sprintf("Read the contents of a file. Output is truncated at %s.", humanize.Bytes(fileReadCap))
}

func (t *FileReadTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "path of the file to read"},
		},
		"required": []string{"path"},
	}
}

func (t *FileReadTool) ActionType(args map[string]interface{}) policy.ActionType {
	return policy.ActionFileRead
}
func (t *FileReadTool) Target(args map[string]interface{}) string {
	path, _ := stringArg(args, "path")
	return path
}

func (t *FileReadTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "missing required argument: path", true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("failed to read %s: %v", path, err), true
	}
	if len(data) > fileReadCap {
		data = data[:fileReadCap]
	}
	return string(data), false
}
