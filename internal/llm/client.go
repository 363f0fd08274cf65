package llm

import "context"

// EventStream is a finite, non-restartable sequence of normalized stream
// events. Recv returns ok=false after the terminal event has been delivered.
type EventStream interface {
	Recv() (StreamEvent, bool)
	Close() error
}

// Client issues completion calls against the upstream provider.
type Client interface {
	// Complete performs a single request/response exchange.
	Complete(ctx context.Context, req Request) (*CompletionResult, error)

	// Stream performs the same logical request with streaming enabled and
	// returns the transcoded event sequence.
	Stream(ctx context.Context, req Request) (EventStream, error)

	// ListModels fetches the provider's model catalog.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Assemble drains a stream, concatenating content and reasoning deltas in
// arrival order, and returns the completion once the terminal event is seen.
// A terminal error event is returned as *StreamError.
func Assemble(stream EventStream, onEvent func(StreamEvent)) (*CompletionResult, error) {
	var text, reasoning []byte
	for {
		ev, ok := stream.Recv()
		if !ok {
			break
		}
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case StreamEventContent:
			text = append(text, ev.Delta...)
		case StreamEventReasoning:
			reasoning = append(reasoning, ev.Delta...)
		case StreamEventDone:
			return &CompletionResult{Text: string(text), Reasoning: string(reasoning)}, nil
		case StreamEventError:
			return nil, &StreamError{Message: ev.Message}
		}
	}
	return &CompletionResult{Text: string(text), Reasoning: string(reasoning)}, nil
}

// StreamError is a terminal error event surfaced while assembling a stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e == nil || e.Message == "" {
		return "stream error"
	}
	return "stream error: " + e.Message
}
