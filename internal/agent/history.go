package agent

import (
	"fmt"
	"strings"

	"webbot/internal/inference"
	"webbot/internal/store"
	"webbot/internal/tools"
)

// maxOutputInHistory bounds each tool output replayed to the model.
const maxOutputInHistory = 2000

// HistoryMessages turns stored turns into conversation messages. Each turn
// becomes the model's text followed by a user message listing its tool
// calls and their outputs, so failures reach the next inference.
func HistoryMessages(turns []store.Turn) []inference.Message {
	msgs := make([]inference.Message, 0, 2*len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Content)
		if text == "" {
			text = fmt.Sprintf("(turn %d: no text)", t.Number)
		}
		msgs = append(msgs, inference.Message{Role: inference.RoleAssistant, Text: text})

		if len(t.ToolCalls) == 0 {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Tool results for turn %d:\n", t.Number)
		for _, c := range t.ToolCalls {
			fmt.Fprintf(&sb, "- %s %s -> %s\n", c.Tool, compact(string(c.Input), maxOutputInHistory/4), compact(string(c.Output), maxOutputInHistory))
		}
		msgs = append(msgs, inference.Message{Role: inference.RoleUser, Text: strings.TrimRight(sb.String(), "\n")})
	}
	return msgs
}

func compact(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if cut, ok := tools.Truncate(s, limit); ok {
		return cut + "...[truncated]"
	}
	return s
}
