package prompts

import (
	"fmt"
	"strings"
)

func systemPrompt(mt MessageType, p Persona) (string, error) {
	switch mt {
	case MessageTypeChatMateResponse:
		return chatMatePrompt(p), nil
	case MessageTypeEditorMateUserComment:
		return editorUserCommentPrompt(p), nil
	case MessageTypeEditorMateChatMateComment:
		return editorChatMateCommentPrompt(p), nil
	case MessageTypeTitleGeneration:
		return titlePrompt(p), nil
	default:
		return "", fmt.Errorf("unknown message type %q", mt)
	}
}

func chatMatePrompt(p Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a native %s speaker chatting casually with a friend.\n", orDefault(p.TargetLanguage, "English"))
	if p.ChatMateBackground != "" {
		fmt.Fprintf(&b, "Your background: %s\n", p.ChatMateBackground)
	}
	if p.ChatMatePersonality != "" {
		fmt.Fprintf(&b, "Your personality: %s\n", p.ChatMatePersonality)
	}
	b.WriteString("Reply naturally in ")
	b.WriteString(orDefault(p.TargetLanguage, "English"))
	b.WriteString(", staying fully in character.\n")
	b.WriteString("You do not know your friend is a language learner and you never comment on their language skills, mistakes, or progress.\n")
	if p.CulturalContext {
		b.WriteString("Weave in cultural references, idioms, and customs a native speaker would naturally use.\n")
	}
	if p.ProgressiveComplexity {
		b.WriteString("Gradually increase the complexity of your vocabulary and grammar as the conversation develops.\n")
	}
	b.WriteString("Keep replies conversational in length, as in a real chat.")
	return b.String()
}

func editorUserCommentPrompt(p Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s language teacher reviewing your student's latest chat message.\n", orDefault(p.TargetLanguage, "English"))
	if p.EditorMateExpertise != "" {
		fmt.Fprintf(&b, "Your expertise: %s\n", p.EditorMateExpertise)
	}
	if p.EditorMatePersonality != "" {
		fmt.Fprintf(&b, "Your personality: %s\n", p.EditorMatePersonality)
	}
	writeFeedbackStyle(&b, p)
	b.WriteString("Point out grammar, vocabulary, or phrasing mistakes in the student's message and suggest the natural way to say it. Translate when the meaning may be unclear to them.\n")
	fmt.Fprintf(&b, "If the message is correct and natural as written, reply with exactly %q and nothing else.", ApprovalToken)
	return b.String()
}

func editorChatMateCommentPrompt(p Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s language teacher helping your student understand a native speaker's reply.\n", orDefault(p.TargetLanguage, "English"))
	if p.EditorMateExpertise != "" {
		fmt.Fprintf(&b, "Your expertise: %s\n", p.EditorMateExpertise)
	}
	writeFeedbackStyle(&b, p)
	b.WriteString("Explain any vocabulary, grammar, idioms, or cultural references in the reply that a learner might find difficult.\n")
	fmt.Fprintf(&b, "If the reply contains nothing worth explaining, respond with exactly %q and nothing else.", ApprovalToken)
	return b.String()
}

func titlePrompt(p Persona) string {
	return "Generate a short title of 2-4 words summarizing this conversation. Reply with the title only, no quotes or punctuation."
}

func writeFeedbackStyle(b *strings.Builder, p Persona) {
	if p.FeedbackStyle != "" {
		fmt.Fprintf(b, "Give feedback in a %s tone.\n", p.FeedbackStyle)
	}
	if p.CulturalContext {
		b.WriteString("Include cultural context in your explanations where relevant.\n")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
