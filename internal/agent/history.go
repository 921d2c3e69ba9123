package agent

import (
	"strings"

	"vibeterm/internal/llm"
	"vibeterm/internal/message"
)

// HistoryFromEntries rebuilds model history from a replayed conversation.
// Only settled top-level turns are carried over; tool traffic and nested
// sub-agent runs are transcript detail the model does not need again.
func HistoryFromEntries(entries []message.Entry) []llm.Message {
	var out []llm.Message
	for _, e := range entries {
		if e.ParentID != "" {
			continue
		}
		switch e.Kind {
		case message.KindUser:
			if strings.TrimSpace(e.Text) != "" {
				out = append(out, llm.Message{Role: "user", Content: e.Text})
			}
		case message.KindAgent:
			if e.Terminal() && strings.TrimSpace(e.Text) != "" {
				out = append(out, llm.Message{Role: "assistant", Content: e.Text})
			}
		}
	}
	return out
}
