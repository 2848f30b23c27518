package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
	"github.com/tamalebot/tamalebot-core/internal/core/schedule"
)

// ScheduleTool lets the agent manage its own recurring task definitions.
type ScheduleTool struct {
	Store *schedule.Store
}

func (t *ScheduleTool) Name() string { return "schedule" }
func (t *ScheduleTool) Description() string {
	return "Manage recurring tasks: create, list, delete, pause, resume."
}

func (t *ScheduleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "one of create, list, delete, pause, resume",
				"enum":        []string{"create", "list", "delete", "pause", "resume"},
			},
			"id":         map[string]interface{}{"type": "string", "description": "schedule ID, required for delete/pause/resume"},
			"name":       map[string]interface{}{"type": "string", "description": "human name, required for action=create"},
			"cron":       map[string]interface{}{"type": "string", "description": "5-field cron expression, required for action=create"},
			"task":       map[string]interface{}{"type": "string", "description": "task text to run on fire, required for action=create"},
			"agent_name": map[string]interface{}{"type": "string", "description": "agent to run the task as, optional for action=create"},
		},
		"required": []string{"action"},
	}
}

func (t *ScheduleTool) ActionType(args map[string]interface{}) policy.ActionType {
	return policy.ActionSchedule
}
func (t *ScheduleTool) Target(args map[string]interface{}) string {
	action := stringArgOr(args, "action", "")
	id := stringArgOr(args, "id", "")
	if id == "" {
		return action
	}
	return action + ":" + id
}

func (t *ScheduleTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	if t.Store == nil {
		return "schedule store is not configured for this agent", true
	}

	action, _ := stringArg(args, "action")
	switch action {
	case "create":
		return t.runCreate(args)
	case "list":
		return t.runList()
	case "delete":
		return t.runDelete(args)
	case "pause":
		return t.runPause(args)
	case "resume":
		return t.runResume(args)
	default:
		return fmt.Sprintf("unknown schedule action %q", action), true
	}
}

func (t *ScheduleTool) runCreate(args map[string]interface{}) (string, bool) {
	name, ok := stringArg(args, "name")
	if !ok || name == "" {
		return "missing required argument: name", true
	}
	cron, ok := stringArg(args, "cron")
	if !ok || cron == "" {
		return "missing required argument: cron", true
	}
	task, ok := stringArg(args, "task")
	if !ok || task == "" {
		return "missing required argument: task", true
	}
	agentName := stringArgOr(args, "agent_name", "")

	entry, err := t.Store.Create(name, cron, task, agentName)
	if err != nil {
		return fmt.Sprintf("failed to create schedule: %v", err), true
	}
	return fmt.Sprintf("created schedule %s (%s)", entry.ID, entry.Name), false
}

func (t *ScheduleTool) runList() (string, bool) {
	entries, err := t.Store.List()
	if err != nil {
		return fmt.Sprintf("failed to list schedules: %v", err), true
	}
	if len(entries) == 0 {
		return "no schedules configured", false
	}
	var b strings.Builder
	for _, e := range entries {
		status := "enabled"
		if !e.Enabled {
			status = "paused"
		}
		fmt.Fprintf(&b, "%s: %s (%s) [%s]\n", e.ID, e.Name, e.Cron, status)
	}
	return strings.TrimSuffix(b.String(), "\n"), false
}

func (t *ScheduleTool) runDelete(args map[string]interface{}) (string, bool) {
	id, ok := stringArg(args, "id")
	if !ok || id == "" {
		return "missing required argument: id", true
	}
	if err := t.Store.Delete(id); err != nil {
		return fmt.Sprintf("failed to delete schedule %s: %v", id, err), true
	}
	return fmt.Sprintf("deleted schedule %s", id), false
}

func (t *ScheduleTool) runPause(args map[string]interface{}) (string, bool) {
	id, ok := stringArg(args, "id")
	if !ok || id == "" {
		return "missing required argument: id", true
	}
	if err := t.Store.Pause(id); err != nil {
		return fmt.Sprintf("failed to pause schedule %s: %v", id, err), true
	}
	return fmt.Sprintf("paused schedule %s", id), false
}

func (t *ScheduleTool) runResume(args map[string]interface{}) (string, bool) {
	id, ok := stringArg(args, "id")
	if !ok || id == "" {
		return "missing required argument: id", true
	}
	if err := t.Store.Resume(id); err != nil {
		return fmt.Sprintf("failed to resume schedule %s: %v", id, err), true
	}
	return fmt.Sprintf("resumed schedule %s", id), false
}
