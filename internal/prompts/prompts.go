// Package prompts builds the role-specific system prompts and history views
// for the three-actor turn protocol.
package prompts

import (
	"fmt"

	"github.com/tandem-chat/backend/internal/llm"
)

// Role identifies who a conversation message is attributed to.
type Role string

const (
	// RoleUser is the learner.
	RoleUser Role = "user"
	// RoleChatMate is the native-speaker persona.
	RoleChatMate Role = "chat-mate"
	// RoleEditorMate is the teacher persona.
	RoleEditorMate Role = "editor-mate"
)

// MessageType selects the prompt template for one completion call.
type MessageType string

const (
	MessageTypeChatMateResponse          MessageType = "chat-mate-response"
	MessageTypeEditorMateUserComment     MessageType = "editor-mate-user-comment"
	MessageTypeEditorMateChatMateComment MessageType = "editor-mate-chatmate-comment"
	MessageTypeTitleGeneration           MessageType = "title-generation"
)

// ApprovalToken is the single-token reply the editor mate gives when the
// inspected message needs no correction.
const ApprovalToken = "👍"

// Persona carries the effective per-turn persona and style settings. It is
// passed explicitly into every build; nothing is read from ambient state.
type Persona struct {
	TargetLanguage string

	ChatMateBackground    string
	ChatMatePersonality   string
	EditorMateExpertise   string
	EditorMatePersonality string
	FeedbackStyle         string

	CulturalContext       bool
	ProgressiveComplexity bool
}

// HistoryEntry is one prior conversation message as stored. Type is the
// message type that produced the entry; zero for plain learner messages.
type HistoryEntry struct {
	Role    Role
	Content string
	Type    MessageType
}

// Built is the rendered prompt material for one call.
type Built struct {
	System  string
	History []llm.Message
}

// Build renders the system prompt for the given message type and re-renders
// the prior messages into the two-wire-role history view: the learner's
// messages keep the user role, both personas map to assistant, and every
// message's content is prefixed with its original role tag.
func Build(mt MessageType, p Persona, history []HistoryEntry) (Built, error) {
	system, err := systemPrompt(mt, p)
	if err != nil {
		return Built{}, err
	}
	view, err := HistoryView(history)
	if err != nil {
		return Built{}, err
	}
	return Built{System: system, History: view}, nil
}

// HistoryView maps stored messages onto the wire roles. An unrecognized role
// is an error, never a silently dropped message.
func HistoryView(history []HistoryEntry) ([]llm.Message, error) {
	out := make([]llm.Message, 0, len(history))
	for i, h := range history {
		wire, err := wireRole(h.Role)
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		out = append(out, llm.Message{
			Role:    wire,
			Content: fmt.Sprintf("[%s]: %s", h.Role, h.Content),
		})
	}
	return out, nil
}

func wireRole(r Role) (string, error) {
	switch r {
	case RoleUser:
		return "user", nil
	case RoleChatMate, RoleEditorMate:
		return "assistant", nil
	default:
		return "", fmt.Errorf("unknown conversation role %q", r)
	}
}
