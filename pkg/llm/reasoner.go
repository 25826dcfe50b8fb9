// Package llm abstracts the reasoning model behind a Reasoner capability and
// provides the OpenAI-backed implementation.
package llm

import (
	"context"

	"github.com/magpie-ai/magpie/pkg/models"
)

// ToolDefinition describes one tool exposed to the model, with a JSON Schema
// for its arguments.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is one completion request. Tools may be nil to force a
// text-only response.
type ChatRequest struct {
	Model       string
	Messages    []models.ChatMessage
	Tools       []ToolDefinition
	Temperature float32
	JSONOnly    bool
}

// ChatResponse is the assistant's reply: free text, zero or more tool calls,
// or both.
type ChatResponse struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Reasoner is the model capability the agent loop depends on. Implementations
// must honour the context deadline.
type Reasoner interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
