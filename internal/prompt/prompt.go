// Package prompt renders the single-text prompt sent to providers that do
// not accept structured turns.
package prompt

import (
	"strings"

	"gemini-router/internal/models"
)

// Assemble renders the fixed three-section template. Every section is
// emitted even when its body is empty. History lists each non-system
// message as "role: content", separated by blank lines.
func Assemble(systemPrompt, searchContext string, history []models.Message) string {
	turns := make([]string, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleSystem {
			continue
		}
		turns = append(turns, m.Role+": "+m.Content)
	}

	var b strings.Builder
	b.WriteString("\nSystem prompt:\n")
	b.WriteString(systemPrompt)
	b.WriteString("\n\nSearch results:\n")
	b.WriteString(searchContext)
	b.WriteString("\n\nConversation history:\n")
	b.WriteString(strings.Join(turns, "\n\n"))
	b.WriteString("\n")
	return b.String()
}

// Build assembles the provider payload for a normalized request.
func Build(req models.ChatRequest, search models.SearchContext) models.Prompt {
	return models.Prompt{
		Text:     Assemble(req.SystemPrompt(), search.Render(), req.History()),
		Messages: req.Messages,
	}
}
