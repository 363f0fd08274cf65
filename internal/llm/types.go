package llm

// ContentPart is one element of a multimodal user message. Type is either
// "text" or "image_url"; order within a message is significant.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

func ImagePart(url string) ContentPart {
	return ContentPart{Type: ContentTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// Message is one chat-completions message. When Parts is non-nil the message
// is sent with an array content (multimodal); otherwise Content is sent as a
// plain string.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// Request is one outbound completion call. Built fresh per actor call and
// never mutated after send.
type Request struct {
	Model       string
	Messages    []Message
	Stream      bool
	Temperature float64
	MaxTokens   int

	// Reasoning asks the provider to emit reasoning tokens alongside content.
	Reasoning bool
}

// CompletionResult is the finalized output of one call, either parsed from a
// single JSON response or assembled from a stream.
type CompletionResult struct {
	Text      string
	Reasoning string
	Model     string

	GenerationTimeMs int64
}

// ModelInfo is one entry of the provider's model catalog.
type ModelInfo struct {
	ID              string
	InputModalities []string
}

// ImageModality is the marker the provider uses for image input support.
const ImageModality = "image"

func (m ModelInfo) ImageCapable() bool {
	for _, mod := range m.InputModalities {
		if mod == ImageModality {
			return true
		}
	}
	return false
}
