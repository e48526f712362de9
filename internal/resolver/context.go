package resolver

import (
	"strings"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/provider"
)

// BuildContext assembles the prompt: system instruction, the last n turns of
// history oldest first, then the new user message.
func BuildContext(system string, history domain.Transcript, userText string, n int) []provider.Message {
	recent := history.Last(n)
	messages := make([]provider.Message, 0, len(recent)+2)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: system})
	for _, turn := range recent {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := provider.RoleUser
		if turn.Speaker == domain.SpeakerAssistant {
			role = provider.RoleAssistant
		}
		messages = append(messages, provider.Message{Role: role, Content: text})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: strings.TrimSpace(userText)})
	return messages
}
