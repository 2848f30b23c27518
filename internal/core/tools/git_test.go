package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "agent@example.com")
	run("config", "user.name", "agent")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	run("add", "README.md")
	run("commit", "-m", "initial commit")
	return dir
}

func TestGitToolStatusAndLog(t *testing.T) {
	dir := initTestRepo(t)
	tool := &GitTool{}

	out, isErr := tool.Run(context.Background(), map[string]interface{}{"action": "status", "dir": dir})
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}

	out, isErr = tool.Run(context.Background(), map[string]interface{}{"action": "log", "dir": dir})
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "initial commit") {
		t.Fatalf("expected log to contain commit message, got %q", out)
	}
}

func TestGitToolCommit(t *testing.T) {
	dir := initTestRepo(t)
	tool := &GitTool{}

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("updated"), 0o644); err != nil {
		t.Fatalf("modify file: %v", err)
	}

	out, isErr := tool.Run(context.Background(), map[string]interface{}{
		"action":  "commit",
		"dir":     dir,
		"message": "update readme",
	})
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}

	out, isErr = tool.Run(context.Background(), map[string]interface{}{"action": "log", "dir": dir})
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "update readme") {
		t.Fatalf("expected new commit in log, got %q", out)
	}
}

func TestGitToolCommitRequiresMessage(t *testing.T) {
	dir := initTestRepo(t)
	tool := &GitTool{}

	out, isErr := tool.Run(context.Background(), map[string]interface{}{"action": "commit", "dir": dir})
	if !isErr {
		t.Fatal("expected error for missing message")
	}
	if !strings.Contains(out, "missing required argument: message") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGitToolRequiresDirExceptClone(t *testing.T) {
	tool := &GitTool{}
	out, isErr := tool.Run(context.Background(), map[string]interface{}{"action": "status"})
	if !isErr {
		t.Fatal("expected error for missing dir")
	}
	if !strings.Contains(out, "missing required argument: dir") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGitToolCloneRequiresRepo(t *testing.T) {
	tool := &GitTool{}
	out, isErr := tool.Run(context.Background(), map[string]interface{}{"action": "clone"})
	if !isErr {
		t.Fatal("expected error for missing repo")
	}
	if !strings.Contains(out, "missing required argument: repo") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGitToolUnknownAction(t *testing.T) {
	dir := initTestRepo(t)
	tool := &GitTool{}
	out, isErr := tool.Run(context.Background(), map[string]interface{}{"action": "bogus", "dir": dir})
	if !isErr {
		t.Fatal("expected error for unknown action")
	}
	if !strings.Contains(out, "unknown git action") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGitToolTargetReflectsAction(t *testing.T) {
	tool := &GitTool{}
	cloneTarget := tool.Target(map[string]interface{}{"action": "clone", "repo": "git@github.com:acme/repo.git"})
	if cloneTarget != "clone git@github.com:acme/repo.git" {
		t.Fatalf("unexpected clone target: %q", cloneTarget)
	}
	statusTarget := tool.Target(map[string]interface{}{"action": "status", "dir": "/srv/repo"})
	if statusTarget != "status /srv/repo" {
		t.Fatalf("unexpected status target: %q", statusTarget)
	}
}
