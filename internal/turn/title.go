package turn

import (
	"context"
	"strings"

	"github.com/tandem-chat/backend/internal/llm"
	"github.com/tandem-chat/backend/internal/prompts"
)

// RunTitle asks the model for a short conversation title. Always a single
// non-streaming call; persona style fields do not apply.
func (s *Sequencer) RunTitle(ctx context.Context, history []prompts.HistoryEntry, settings Settings) (string, error) {
	built, err := prompts.Build(prompts.MessageTypeTitleGeneration, settings.Persona, history)
	if err != nil {
		return "", err
	}

	msgs := make([]llm.Message, 0, len(built.History)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: built.System})
	msgs = append(msgs, built.History...)
	msgs = append(msgs, llm.Message{Role: "user", Content: "Title this conversation."})

	res, err := s.client.Complete(ctx, llm.Request{
		Model:     settings.Model,
		Messages:  msgs,
		MaxTokens: 32,
	})
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(res.Text)
	title = strings.Trim(title, `"'`)
	return title, nil
}
