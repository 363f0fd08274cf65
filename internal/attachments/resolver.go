// Package attachments turns image URLs embedded in chat text, plus uploaded
// files, into multimodal content parts.
package attachments

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/tandem-chat/backend/internal/llm"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".svg":  {},
	".ico":  {},
	".tiff": {},
}

// FileRef is an uploaded attachment already resolved to a renderable URL.
type FileRef struct {
	ID         string `json:"id"`
	Filename   string `json:"filename,omitempty"`
	DisplayURL string `json:"displayUrl"`
}

// Resolved is the outcome of scanning one message.
type Resolved struct {
	// Text is the input with extracted image URLs removed and whitespace
	// collapsed. Unchanged from the input when nothing was extracted.
	Text string

	// Parts is the full multimodal content: a leading text part followed by
	// one image part per attachment. Nil when the message carries no
	// attachments at all.
	Parts []llm.ContentPart

	// URLs lists the image URLs extracted from the text, in first-seen order.
	URLs []string
}

// HasImages reports whether the message carries at least one image part.
func (r Resolved) HasImages() bool { return len(r.Parts) > 0 }

// Message renders the resolved input as an outbound chat message.
func (r Resolved) Message(role string) llm.Message {
	if !r.HasImages() {
		return llm.Message{Role: role, Content: r.Text}
	}
	return llm.Message{Role: role, Parts: r.Parts}
}

// Resolve scans rawText for http(s) URLs pointing at image files and combines
// them with uploaded file attachments. Each distinct image URL becomes one
// image part and is removed from the text; file attachments follow in caller
// order. When there is nothing to attach the text passes through untouched
// with nil parts.
func Resolve(rawText string, files []FileRef) Resolved {
	var urls []string
	var kept strings.Builder

	seen := make(map[string]struct{})
	prev := 0
	for _, span := range urlPattern.FindAllStringIndex(rawText, -1) {
		u := trimTrailingPunct(rawText[span[0]:span[1]])
		if !isImageURL(u) {
			continue
		}
		// Trailing punctuation stays in the text; only the URL itself goes.
		kept.WriteString(rawText[prev:span[0]])
		prev = span[0] + len(u)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	kept.WriteString(rawText[prev:])

	if len(urls) == 0 && len(files) == 0 {
		return Resolved{Text: rawText}
	}

	text := rawText
	if len(urls) > 0 {
		text = strings.Join(strings.Fields(kept.String()), " ")
	}

	parts := make([]llm.ContentPart, 0, 1+len(urls)+len(files))
	parts = append(parts, llm.TextPart(text))
	for _, u := range urls {
		parts = append(parts, llm.ImagePart(u))
	}
	for _, f := range files {
		parts = append(parts, llm.ImagePart(f.DisplayURL))
	}

	return Resolved{Text: text, Parts: parts, URLs: urls}
}

func trimTrailingPunct(u string) string {
	return strings.TrimRight(u, `.,;:!?)]}'"`)
}

func isImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := imageExtensions[ext]
	return ok
}
