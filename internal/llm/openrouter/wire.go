package openrouter

import (
	"github.com/tandem-chat/backend/internal/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`

	// Reasoning opts the request into reasoning-token output on providers
	// that support it (OpenRouter extension).
	Reasoning *reasoningOptions `json:"reasoning,omitempty"`
}

type reasoningOptions struct {
	Enabled bool `json:"enabled"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content,omitempty"`
			Reasoning string `json:"reasoning,omitempty"`
		} `json:"message,omitempty"`
	} `json:"choices"`
	Usage map[string]any `json:"usage,omitempty"`
}

type chatCompletionStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content,omitempty"`
			Reasoning        string `json:"reasoning,omitempty"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
		} `json:"delta,omitempty"`
	} `json:"choices"`
	Error any `json:"error,omitempty"`
}

type modelsResponse struct {
	Data []struct {
		ID           string `json:"id"`
		Architecture struct {
			InputModalities []string `json:"input_modalities"`
		} `json:"architecture"`
	} `json:"data"`
}

func toChatMessages(messages []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Parts != nil {
			out = append(out, chatMessage{Role: m.Role, Content: m.Parts})
			continue
		}
		out = append(out, chatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
