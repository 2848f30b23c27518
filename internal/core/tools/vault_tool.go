package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
	"github.com/tamalebot/tamalebot-core/internal/core/vault"
)

// VaultTool exposes credential management to the agent loop. Reads are
// always masked; the plaintext value is never returned to the model.
type VaultTool struct {
	Vault *vault.Vault
}

func (t *VaultTool) Name() string { return "vault" }
func (t *VaultTool) Description() string {
	return "Manage encrypted credentials: set, get (masked), delete, list, or generate_ssh_key."
}

func (t *VaultTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "one of set, get, delete, list, generate_ssh_key",
				"enum":        []string{"set", "get", "delete", "list", "generate_ssh_key"},
			},
			"name":        map[string]interface{}{"type": "string", "description": "credential name, e.g. GITHUB_TOKEN"},
			"value":       map[string]interface{}{"type": "string", "description": "credential value, required for action=set"},
			"type":        map[string]interface{}{"type": "string", "description": "credential type, optional for action=set"},
			"description": map[string]interface{}{"type": "string", "description": "human description, optional for action=set"},
		},
		"required": []string{"action"},
	}
}

func (t *VaultTool) ActionType(args map[string]interface{}) policy.ActionType { return policy.ActionVault }
func (t *VaultTool) Target(args map[string]interface{}) string {
	action := stringArgOr(args, "action", "")
	name := stringArgOr(args, "name", "")
	if name == "" {
		return action
	}
	return action + ":" + name
}

func (t *VaultTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	if t.Vault == nil {
		return "vault is not configured for this agent", true
	}

	action, _ := stringArg(args, "action")
	switch action {
	case "set":
		return t.runSet(args)
	case "get":
		return t.runGet(args)
	case "delete":
		return t.runDelete(args)
	case "list":
		return t.runList()
	case "generate_ssh_key":
		return t.runGenerateSSHKey(args)
	default:
		return fmt.Sprintf("unknown vault action %q", action), true
	}
}

func (t *VaultTool) runSet(args map[string]interface{}) (string, bool) {
	name, ok := stringArg(args, "name")
	if !ok || name == "" {
		return "missing required argument: name", true
	}
	value, ok := stringArg(args, "value")
	if !ok || value == "" {
		return "missing required argument: value", true
	}
	meta := vault.Meta{
		Type:        stringArgOr(args, "type", vault.TypeGeneric),
		Description: stringArgOr(args, "description", ""),
	}
	if err := t.Vault.Set(name, value, meta); err != nil {
		return fmt.Sprintf("failed to set credential %s: %v", name, err), true
	}
	return fmt.Sprintf("stored credential %s", name), false
}

func (t *VaultTool) runGet(args map[string]interface{}) (string, bool) {
	name, ok := stringArg(args, "name")
	if !ok || name == "" {
		return "missing required argument: name", true
	}
	masked, meta, err := t.Vault.GetMasked(name)
	if err != nil {
		return fmt.Sprintf("failed to read credential %s: %v", name, err), true
	}
	if meta == nil {
		return fmt.Sprintf("credential %s not found", name), true
	}
	return fmt.Sprintf("%s (type=%s): %s", name, meta.Type, masked), false
}

func (t *VaultTool) runDelete(args map[string]interface{}) (string, bool) {
	name, ok := stringArg(args, "name")
	if !ok || name == "" {
		return "missing required argument: name", true
	}
	if err := t.Vault.Delete(name); err != nil {
		return fmt.Sprintf("failed to delete credential %s: %v", name, err), true
	}
	return fmt.Sprintf("deleted credential %s", name), false
}

func (t *VaultTool) runList() (string, bool) {
	summaries, err := t.Vault.List()
	if err != nil {
		return fmt.Sprintf("failed to list credentials: %v", err), true
	}
	if len(summaries) == 0 {
		return "no credentials stored", false
	}
	var b strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&b, "%s (type=%s)\n", s.Name, s.Meta.Type)
	}
	return strings.TrimSuffix(b.String(), "\n"), false
}

func (t *VaultTool) runGenerateSSHKey(args map[string]interface{}) (string, bool) {
	name, ok := stringArg(args, "name")
	if !ok || name == "" {
		return "missing required argument: name", true
	}
	pub, err := t.Vault.GenerateSSHKey(name)
	if err != nil {
		return fmt.Sprintf("failed to generate ssh key %s: %v", name, err), true
	}
	return pub, false
}
