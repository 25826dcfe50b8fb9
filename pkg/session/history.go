// Package session holds per-session short-term dialogue history.
package session

import (
	"sync"

	"github.com/magpie-ai/magpie/pkg/models"
)

// HistoryManager is an in-process map from session id to its ordered message
// log. A single session is expected to be used by one request at a time; the
// mutex serialises cross-session map access and makes concurrent sessions safe.
type HistoryManager struct {
	mu       sync.Mutex
	window   int
	sessions map[string][]models.ChatMessage
}

// NewHistoryManager creates a manager with retention window w (messages kept
// per session after each turn).
func NewHistoryManager(w int) *HistoryManager {
	if w < 1 {
		w = 8
	}
	return &HistoryManager{
		window:   w,
		sessions: make(map[string][]models.ChatMessage),
	}
}

// Get returns a copy of the session's history, lazily creating an empty one.
func (m *HistoryManager) Get(sessionID string) []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.sessions[sessionID]
	if !ok {
		m.sessions[sessionID] = nil
		return nil
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Append adds messages to the session in order.
func (m *HistoryManager) Append(sessionID string, msgs ...models.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], msgs...)
}

// Trim keeps the last window messages. If the first kept message is a tool
// result, the assistant message that emitted the matching tool call is
// prepended so the model never sees an orphan tool result; an unmatched tool
// result is dropped instead.
func (m *HistoryManager) Trim(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.sessions[sessionID]
	if len(msgs) <= m.window {
		return
	}

	cut := len(msgs) - m.window
	kept := msgs[cut:]

	var prefix []models.ChatMessage
	for len(kept) > 0 && kept[0].Role == models.RoleTool {
		emitter := findEmitter(msgs[:cut], kept[0].ToolCallID)
		if emitter == nil {
			// Orphan tool result: no assistant message carries its call id.
			kept = kept[1:]
			continue
		}
		prefix = []models.ChatMessage{*emitter}
		break
	}

	trimmed := make([]models.ChatMessage, 0, len(prefix)+len(kept))
	trimmed = append(trimmed, prefix...)
	trimmed = append(trimmed, kept...)
	m.sessions[sessionID] = trimmed
}

// findEmitter scans backwards for the assistant message carrying the tool
// call id.
func findEmitter(msgs []models.ChatMessage, toolCallID string) *models.ChatMessage {
	if toolCallID == "" {
		return nil
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].HasToolCallID(toolCallID) {
			return &msgs[i]
		}
	}
	return nil
}

// Window returns the configured retention window.
func (m *HistoryManager) Window() int { return m.window }

// Len returns the current message count for a session.
func (m *HistoryManager) Len(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[sessionID])
}
