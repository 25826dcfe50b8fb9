// Package models contains the domain types shared across the engine:
// entities, facts, magic variables, chat messages, and router outputs.
package models

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the assistant.
// Arguments is the raw JSON emitted by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage is the tagged variant flowing through session history and the
// reasoner. Assistant messages may carry tool calls; tool messages reference
// the originating call via ToolCallID.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// HasToolCallID reports whether the assistant message carries a tool call
// with the given id. The history trimmer uses this to keep tool results
// paired with their originating assistant message.
func (m ChatMessage) HasToolCallID(id string) bool {
	if m.Role != RoleAssistant {
		return false
	}
	for _, tc := range m.ToolCalls {
		if tc.ID == id {
			return true
		}
	}
	return false
}
