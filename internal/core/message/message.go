// Package message defines the canonical conversation types shared by the
// provider adapter, tool executor, and agent loop. This is the system's
// internal wire format, independent of any LLM provider's protocol.
package message

import "fmt"

// Role is the role of a canonical message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the variants of Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one element of a message's content when the content is not a
// plain string. Exactly one of the typed fields is populated, selected by
// Type — callers should treat this as a closed sum type and switch on Type
// rather than checking field nil-ness.
type Block struct {
	Type BlockType

	// Text is populated when Type == BlockText.
	Text string

	// ToolUse is populated when Type == BlockToolUse.
	ToolUse *ToolUse

	// ToolResult is populated when Type == BlockToolResult.
	ToolResult *ToolResult
}

// ToolUse carries a single tool invocation proposed by the assistant.
type ToolUse struct {
	// ID is the call identifier, unique within the turn.
	ID string
	// Name is the tool name.
	Name string
	// Input is the structured, JSON-compatible argument map.
	Input map[string]interface{}
}

// ToolResult carries the outcome of a tool invocation, matched back to its
// originating ToolUse by ID.
type ToolResult struct {
	// ToolUseID is the call identifier of the originating ToolUse block.
	ToolUseID string
	// Output is the result text handed back to the model.
	Output string
	// IsError marks the result as a failure (policy denial or tool error).
	IsError bool
}

// TextBlock constructs a text Block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock constructs a tool-use Block.
func ToolUseBlock(id, name string, input map[string]interface{}) Block {
	return Block{Type: BlockToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

// ToolResultBlock constructs a tool-result Block.
func ToolResultBlock(toolUseID, output string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolResult: &ToolResult{ToolUseID: toolUseID, Output: output, IsError: isError}}
}

// Message is one turn in the canonical conversation history. Content is
// either a plain string (IsBlock false, Text used, Blocks ignored) or an
// ordered sequence of typed Blocks (IsBlock true, Text ignored).
type Message struct {
	Role    Role
	Text    string
	Blocks  []Block
	IsBlock bool
}

// NewText constructs a plain-text Message.
func NewText(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// NewBlocks constructs a block-sequence Message.
func NewBlocks(role Role, blocks ...Block) Message {
	return Message{Role: role, Blocks: blocks, IsBlock: true}
}

// ConcatText returns the concatenation of every text block's content,
// separated by newlines, or m.Text when the message is not a block sequence.
func (m Message) ConcatText() string {
	if !m.IsBlock {
		return m.Text
	}
	out := ""
	for _, b := range m.Blocks {
		if b.Type != BlockText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// ToolUses returns every tool-use block in the message, in order.
func (m Message) ToolUses() []*ToolUse {
	if !m.IsBlock {
		return nil
	}
	var out []*ToolUse
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			out = append(out, b.ToolUse)
		}
	}
	return out
}

// ToolResults returns every tool-result block in the message, in order.
func (m Message) ToolResults() []*ToolResult {
	if !m.IsBlock {
		return nil
	}
	var out []*ToolResult
	for _, b := range m.Blocks {
		if b.Type == BlockToolResult {
			out = append(out, b.ToolResult)
		}
	}
	return out
}

// ValidateHistory checks the tool-use/tool-result pairing invariant: every
// tool-use block in an assistant message must be matched, in the immediately
// following user message, by a tool-result block with the identical call
// identifier, and vice-versa. It also checks that history starts with a user
// message.
func ValidateHistory(history []Message) error {
	if len(history) == 0 {
		return nil
	}
	if history[0].Role != RoleUser {
		return fmt.Errorf("message: history must start with a user message, got %q", history[0].Role)
	}
	for i, m := range history {
		if results := m.ToolResults(); len(results) > 0 {
			if i == 0 || history[i-1].Role != RoleAssistant {
				return fmt.Errorf("message: tool_result blocks at index %d do not follow an assistant message", i)
			}
			prev := make(map[string]bool)
			for _, u := range history[i-1].ToolUses() {
				prev[u.ID] = true
			}
			for _, r := range results {
				if !prev[r.ToolUseID] {
					return fmt.Errorf("message: tool_result %q at index %d has no matching tool_use in the preceding message", r.ToolUseID, i)
				}
			}
		}
		uses := m.ToolUses()
		if len(uses) == 0 {
			continue
		}
		if m.Role != RoleAssistant {
			return fmt.Errorf("message: tool_use blocks may only appear in assistant messages (index %d)", i)
		}
		if i+1 >= len(history) {
			return fmt.Errorf("message: assistant message at index %d has unmatched tool_use blocks", i)
		}
		next := history[i+1]
		if next.Role != RoleUser {
			return fmt.Errorf("message: message following tool_use at index %d must be a user message", i)
		}
		results := next.ToolResults()
		seen := make(map[string]bool, len(results))
		for _, r := range results {
			seen[r.ToolUseID] = true
		}
		for _, u := range uses {
			if !seen[u.ID] {
				return fmt.Errorf("message: tool_use %q at index %d has no matching tool_result in the following message", u.ID, i)
			}
		}
	}
	return nil
}
