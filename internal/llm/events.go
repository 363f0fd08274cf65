package llm

type StreamEventType string

const (
	StreamEventContent   StreamEventType = "content"
	StreamEventReasoning StreamEventType = "reasoning"
	StreamEventDone      StreamEventType = "done"
	StreamEventError     StreamEventType = "error"
)

// StreamEvent is the normalized internal event the rest of the application
// consumes. A stream is zero or more content/reasoning events followed by
// exactly one terminal event (done or error); nothing follows the terminal.
type StreamEvent struct {
	Type    StreamEventType
	Delta   string
	Message string
}

func (e StreamEvent) Terminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}
