package search

import (
	"fmt"
	"strings"

	"github.com/quarry-search/quarry/internal/ai"
)

// SettingSystemPrompt is the settings key for an operator-supplied
// system prompt override.
const SettingSystemPrompt = "system_prompt"

// historyLimit caps how many prior turns are replayed to the model.
const historyLimit = 10

const defaultSystemPrompt = `You are a document assistant. Answer questions using only the numbered sources provided below.

Rules:
- Cite sources inline with their bracketed number, e.g. [1] or [3].
- If the sources do not contain the answer, say so plainly instead of guessing.
- Be concise. Do not restate the question.`

// buildMessages assembles the completion request: system prompt with
// numbered source context, capped history, then the user's question.
func buildMessages(systemPrompt string, results []Result, history []ChatMessage, query string) []ai.Message {
	var context strings.Builder
	for i, r := range results {
		fmt.Fprintf(&context, "[%d] %s\n%s\n\n", i+1, r.DocumentName, r.Content)
	}

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{
		Role:    ai.RoleSystem,
		Content: systemPrompt + "\n\nSources:\n\n" + context.String(),
	})

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, turn := range history {
		role := ai.RoleUser
		if turn.Role == "assistant" {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.Message{Role: role, Content: turn.Content})
	}

	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: query})
	return messages
}
