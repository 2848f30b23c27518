package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
	"github.com/tamalebot/tamalebot-core/internal/core/vault"
)

const (
	gitTimeout    = 60 * time.Second
	gitCaptureCap = 1 << 20
	gitResultCap  = 10000
	gitDefaultKey = "GIT_DEPLOY_KEY"
)

// GitTool drives a local git subprocess. clone, pull, and push use a deploy
// key materialized from the vault, when one is configured, via
// GIT_SSH_COMMAND.
type GitTool struct {
	Vault *vault.Vault
}

func (t *GitTool) Name() string { return "git" }
func (t *GitTool) Description() string {
	return "Run git operations: clone, pull, push, status, diff, commit, log, checkout."
}

func (t *GitTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "one of clone, pull, push, status, diff, commit, log, checkout",
				"enum":        []string{"clone", "pull", "push", "status", "diff", "commit", "log", "checkout"},
			},
			"repo":      map[string]interface{}{"type": "string", "description": "repository URL, required for action=clone"},
			"dir":       map[string]interface{}{"type": "string", "description": "working directory, required for all actions except clone"},
			"message":   map[string]interface{}{"type": "string", "description": "commit message, required for action=commit"},
			"ref":       map[string]interface{}{"type": "string", "description": "branch or ref, required for action=checkout, optional for pull/push"},
			"key_name":  map[string]interface{}{"type": "string", "description": "vault credential name of the deploy key, default GIT_DEPLOY_KEY"},
		},
		"required": []string{"action"},
	}
}

func (t *GitTool) ActionType(args map[string]interface{}) policy.ActionType { return policy.ActionGit }
func (t *GitTool) Target(args map[string]interface{}) string {
	action := stringArgOr(args, "action", "")
	switch action {
	case "clone":
		return action + " " + stringArgOr(args, "repo", "")
	default:
		return action + " " + stringArgOr(args, "dir", "")
	}
}

func (t *GitTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	action, ok := stringArg(args, "action")
	if !ok || action == "" {
		return "missing required argument: action", true
	}

	var gitArgs []string
	dir := stringArgOr(args, "dir", "")

	switch action {
	case "clone":
		repo, ok := stringArg(args, "repo")
		if !ok || repo == "" {
			return "missing required argument: repo", true
		}
		if dir != "" {
			gitArgs = []string{"clone", repo, dir}
		} else {
			gitArgs = []string{"clone", repo}
		}
	case "pull":
		gitArgs = []string{"-C", dir, "pull"}
		if ref := stringArgOr(args, "ref", ""); ref != "" {
			gitArgs = append(gitArgs, "origin", ref)
		}
	case "push":
		gitArgs = []string{"-C", dir, "push"}
		if ref := stringArgOr(args, "ref", ""); ref != "" {
			gitArgs = append(gitArgs, "origin", ref)
		}
	case "status":
		gitArgs = []string{"-C", dir, "status", "--short"}
	case "diff":
		gitArgs = []string{"-C", dir, "diff"}
	case "commit":
		message, ok := stringArg(args, "message")
		if !ok || message == "" {
			return "missing required argument: message", true
		}
		gitArgs = []string{"-C", dir, "commit", "-am", message}
	case "log":
		gitArgs = []string{"-C", dir, "log", "--oneline", "-n", "20"}
	case "checkout":
		ref, ok := stringArg(args, "ref")
		if !ok || ref == "" {
			return "missing required argument: ref", true
		}
		gitArgs = []string{"-C", dir, "checkout", ref}
	default:
		return fmt.Sprintf("unknown git action %q", action), true
	}

	if dir == "" && action != "clone" {
		return "missing required argument: dir", true
	}

	runCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", gitArgs...)
	cmd.Env = os.Environ()

	var keyPath string
	needsKey := action == "clone" || action == "pull" || action == "push"
	if needsKey && t.Vault != nil {
		path, cleanup, err := t.materializeDeployKey(args)
		if err != nil {
			return err.Error(), true
		}
		if cleanup != nil {
			defer cleanup()
		}
		keyPath = path
	}
	if keyPath != "" {
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -o UserKnownHostsFile=/dev/null -o BatchMode=yes", keyPath)
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = capped(&stdout, gitCaptureCap)
	cmd.Stderr = capped(&stderr, gitCaptureCap)

	runErr := cmd.Run()

	combined := stdout.String()
	if stderr.Len() > 0 {
		if combined != "" {
			combined += "\n--- stderr ---\n"
		}
		combined += stderr.String()
	}
	if len(combined) > gitResultCap {
		combined = combined[:gitResultCap]
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("git command timed out\n%s", combined), true
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return fmt.Sprintf("git command exited with code %d\n%s", exitErr.ExitCode(), combined), true
		}
		return fmt.Sprintf("git command failed: %v\n%s", runErr, combined), true
	}

	return combined, false
}

// materializeDeployKey writes the named vault credential to a 0600 temp
// file for the duration of one git invocation. The returned cleanup func
// removes it; it is a no-op when the vault holds no credential under the
// key name, and nil when an error is returned.
func (t *GitTool) materializeDeployKey(args map[string]interface{}) (path string, cleanup func(), err error) {
	keyName := stringArgOr(args, "key_name", gitDefaultKey)

	cred, err := t.Vault.Get(keyName)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load deploy key %s: %w", keyName, err)
	}
	if cred == nil {
		return "", func() {}, nil
	}

	privKey, err := base64.StdEncoding.DecodeString(cred.Value)
	if err != nil {
		return "", nil, fmt.Errorf("deploy key %s is not valid base64: %w", keyName, err)
	}

	keyFile, err := os.CreateTemp("", "tamalebot-gitkey-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temporary key file: %w", err)
	}
	keyPath := keyFile.Name()
	cleanup = func() { os.Remove(keyPath) }

	if err := keyFile.Chmod(0o600); err != nil {
		keyFile.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to set key file permissions: %w", err)
	}
	if _, err := keyFile.Write(privKey); err != nil {
		keyFile.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write key material: %w", err)
	}
	if err := keyFile.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to finalize key file: %w", err)
	}

	return keyPath, cleanup, nil
}
