package openrouter

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/tandem-chat/backend/internal/llm"
)

// Transcoder reads the provider's SSE framing ("data: <json>" lines,
// terminated by "data: [DONE]") and emits the normalized event sequence.
// It is finite and not restartable: after the terminal event Next reports
// ok=false forever. Malformed frames are skipped; if the transport ends
// without [DONE] a done event is synthesized so consumers always observe
// exactly one terminal event.
type Transcoder struct {
	br       *bufio.Reader
	finished bool
}

func NewTranscoder(r io.Reader) *Transcoder {
	return &Transcoder{br: bufio.NewReader(r)}
}

func (t *Transcoder) Next() (llm.StreamEvent, bool) {
	if t.finished {
		return llm.StreamEvent{}, false
	}

	for {
		line, err := t.br.ReadString('\n')
		if err != nil && len(line) == 0 {
			t.finished = true
			if errors.Is(err, io.EOF) {
				return llm.StreamEvent{Type: llm.StreamEventDone}, true
			}
			return llm.StreamEvent{Type: llm.StreamEventError, Message: err.Error()}, true
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			t.finished = true
			return llm.StreamEvent{Type: llm.StreamEventDone}, true
		}

		var chunk chatCompletionStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// One corrupt frame must not take down the whole turn.
			continue
		}

		if chunk.Error != nil {
			t.finished = true
			return llm.StreamEvent{Type: llm.StreamEventError, Message: streamErrorMessage(chunk.Error)}, true
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			return llm.StreamEvent{Type: llm.StreamEventContent, Delta: delta.Content}, true
		}
		if r := reasoningDelta(delta.Reasoning, delta.ReasoningContent); r != "" {
			return llm.StreamEvent{Type: llm.StreamEventReasoning, Delta: r}, true
		}
		// Keep-alive or role-only chunk.
	}
}

func reasoningDelta(reasoning, reasoningContent string) string {
	if reasoning != "" {
		return reasoning
	}
	return reasoningContent
}

func streamErrorMessage(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if m, ok := e["message"].(string); ok && strings.TrimSpace(m) != "" {
			return m
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "upstream stream error"
	}
	return string(b)
}
