package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/models"
)

const (
	summaryMinBulletLen = 5
	summaryMaxBulletLen = 300
	summaryMaxBullets   = 8
	transcriptClipLen   = 500
)

const summarySystemPrompt = `You condense a research conversation into durable facts about the user:
their interests, the entities they research, and their preferences. Respond with strict JSON:
{"bullets": ["short factual statement", ...]}
Emit 3 to 8 bullets, each between 5 and 300 characters. Facts only, no speculation, no other keys.`

// summarizeSession condenses an over-window session into long-term memory
// bullets tagged "summary". Every failure is swallowed; summarisation never
// affects the response.
func (e *Engine) summarizeSession(ctx context.Context, sessionID, username string) {
	if username == "" || sessionID == "" {
		return
	}
	if e.history.Len(sessionID) <= e.history.Window() {
		return
	}

	resp, err := e.reasoner.Chat(ctx, llm.ChatRequest{
		Model:       e.cfg.InferenceModel,
		Temperature: 0.2,
		JSONOnly:    true,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: summarySystemPrompt},
			{Role: models.RoleUser, Content: renderTranscript(e.history.Get(sessionID))},
		},
	})
	if err != nil {
		slog.Debug("Session summary failed", "session", sessionID, "error", err)
		return
	}

	var out struct {
		Bullets []string `json:"bullets"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		slog.Debug("Session summary unparseable", "session", sessionID, "error", err)
		return
	}

	stored := 0
	for _, bullet := range out.Bullets {
		bullet = strings.TrimSpace(bullet)
		if len(bullet) < summaryMinBulletLen || len(bullet) > summaryMaxBulletLen {
			continue
		}
		if stored >= summaryMaxBullets {
			break
		}
		if err := e.memory.Add(ctx, username, bullet, []string{"summary"}); err != nil {
			slog.Debug("Memory write failed", "username", username, "error", err)
			continue
		}
		stored++
	}
}

func renderTranscript(msgs []models.ChatMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		content := clip(m.Content, transcriptClipLen)
		if content == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, content)
	}
	return sb.String()
}
