// Package tools implements the fixed catalog of actions an agent loop may
// invoke. Every tool is mediated uniformly by the Registry: inputs are
// extracted and coerced by the tool itself, but the policy decision and
// audit entry happen in one place, before the tool's side effect runs.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tamalebot/tamalebot-core/common/redact"
	"github.com/tamalebot/tamalebot-core/internal/core/audit"
	"github.com/tamalebot/tamalebot-core/internal/core/policy"
)

// Tool is one entry in the catalog. Name, Description, and InputSchema are
// forwarded to the LLM as the tool's advertisement; ActionType and Target
// compute the policy-facing action kind and target string for the given
// arguments; Run performs the side effect once policy has allowed it.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	ActionType(args map[string]interface{}) policy.ActionType
	Target(args map[string]interface{}) string
	Run(ctx context.Context, args map[string]interface{}) (output string, isError bool)
}

// Registry holds every registered tool and mediates execution through
// schema validation, policy evaluation, and audit logging.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	engine  *policy.Engine
	journal *audit.Journal
}

// NewRegistry returns an empty Registry wired to engine and journal.
func NewRegistry(engine *policy.Engine, journal *audit.Journal) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		engine:  engine,
		journal: journal,
	}
}

// Register adds t to the registry and precompiles its input schema. It
// panics on a duplicate name or an invalid schema, both of which indicate a
// programming error in the registration sequence.
func (r *Registry) Register(t Tool) {
	if _, dup := r.tools[t.Name()]; dup {
		panic("tools: duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t

	schemaJSON, err := json.Marshal(t.InputSchema())
	if err != nil {
		panic("tools: tool " + t.Name() + " has an unmarshalable input schema: " + err.Error())
	}
	resourceName := t.Name() + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(schemaJSON)); err != nil {
		panic("tools: tool " + t.Name() + " has an invalid input schema: " + err.Error())
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		panic("tools: tool " + t.Name() + " input schema failed to compile: " + err.Error())
	}
	r.schemas[t.Name()] = schema
}

// Get returns the tool registered under name, or nil.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Definition is the LLM-facing shape of a registered tool.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Definitions returns the advertisable definition of every registered tool.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	return defs
}

// Execute runs the named tool for agentID with args, mediating every call
// through policy evaluation and audit logging before the tool's side effect
// (if any) runs:
//
//  1. compute the action kind and target from args,
//  2. evaluate policy,
//  3. emit one audit entry capturing the decision regardless of outcome,
//  4. if denied, return a blocked result without running the tool,
//  5. otherwise run the tool and return its result.
func (r *Registry) Execute(ctx context.Context, agentID, name string, args map[string]interface{}) (output string, isError bool) {
	t := r.Get(name)
	if t == nil {
		return fmt.Sprintf("unknown tool %q", name), true
	}

	if schema, ok := r.schemas[name]; ok {
		if err := schema.Validate(map[string]interface{}(args)); err != nil {
			return fmt.Sprintf("invalid arguments for tool %q: %v", name, err), true
		}
	}

	actionType := t.ActionType(args)
	target := t.Target(args)

	decision := r.engine.Evaluate(agentID, actionType, target)

	auditDecision := audit.DecisionAllowed
	if !decision.Allowed {
		auditDecision = audit.DecisionBlocked
	}
	if r.journal != nil {
		r.journal.Log(agentID, string(actionType), target, auditDecision, decision.Reason, redact.Map(args))
	}

	if !decision.Allowed {
		return "BLOCKED by security policy: " + decision.Reason, true
	}

	return t.Run(ctx, args)
}

// stringArg extracts a required string argument, returning ok=false when
// absent or of the wrong type.
func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// stringArgOr extracts an optional string argument, falling back to def.
func stringArgOr(args map[string]interface{}, key, def string) string {
	if s, ok := stringArg(args, key); ok {
		return s
	}
	return def
}

// intArgOr extracts an optional numeric argument (JSON numbers decode to
// float64), falling back to def.
func intArgOr(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

// boolArgOr extracts an optional boolean argument, falling back to def.
func boolArgOr(args map[string]interface{}, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}
