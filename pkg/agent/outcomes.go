package agent

import (
	"encoding/json"

	"github.com/magpie-ai/magpie/pkg/models"
	"github.com/magpie-ai/magpie/pkg/tools"
)

const (
	outcomeKeepSuccesses = 3
	outcomeKeepFailures  = 5
)

type toolOutcome struct {
	Tool    string `json:"tool"`
	OK      bool   `json:"ok"`
	Quality int    `json:"quality,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// outcomeTracker accumulates per-call results so the loop can feed the model
// a running summary of what worked.
type outcomeTracker struct {
	successes []toolOutcome
	failures  []toolOutcome
}

func newOutcomeTracker() *outcomeTracker {
	return &outcomeTracker{}
}

func (t *outcomeTracker) record(tool string, res tools.ExecResult) {
	if res.IsError {
		t.failures = append(t.failures, toolOutcome{Tool: tool, Reason: res.Reason})
		return
	}
	t.successes = append(t.successes, toolOutcome{Tool: tool, OK: true, Quality: res.Quality})
}

func (t *outcomeTracker) empty() bool {
	return len(t.successes) == 0 && len(t.failures) == 0
}

// message renders the tool_outcomes user message: the last 3 successes and
// last 5 failures, with the instruction not to repeat failures.
func (t *outcomeTracker) message() (models.ChatMessage, bool) {
	if t.empty() {
		return models.ChatMessage{}, false
	}
	payload, err := json.Marshal(map[string]any{
		"tool_outcomes": map[string]any{
			"successes": lastN(t.successes, outcomeKeepSuccesses),
			"failures":  lastN(t.failures, outcomeKeepFailures),
		},
		"instruction": "Do not repeat the failed calls. Prefer calls similar to the successes.",
	})
	if err != nil {
		return models.ChatMessage{}, false
	}
	return models.ChatMessage{Role: models.RoleUser, Content: string(payload)}, true
}

func lastN(outcomes []toolOutcome, n int) []toolOutcome {
	if outcomes == nil {
		return []toolOutcome{}
	}
	if len(outcomes) <= n {
		return outcomes
	}
	return outcomes[len(outcomes)-n:]
}
