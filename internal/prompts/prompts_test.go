package prompts

import (
	"strings"
	"testing"
)

func TestBuildSelectsTemplatePerMessageType(t *testing.T) {
	p := Persona{TargetLanguage: "Swedish", FeedbackStyle: "encouraging"}

	chat, err := Build(MessageTypeChatMateResponse, p, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(chat.System, "Swedish") {
		t.Fatalf("chat-mate prompt missing target language: %q", chat.System)
	}
	if !strings.Contains(chat.System, "never comment on their language skills") {
		t.Fatalf("chat-mate prompt must keep the persona unaware: %q", chat.System)
	}
	if strings.Contains(chat.System, ApprovalToken) {
		t.Fatalf("chat-mate prompt must not mention the approval token")
	}

	user, err := Build(MessageTypeEditorMateUserComment, p, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(user.System, ApprovalToken) {
		t.Fatalf("editor prompt missing approval token: %q", user.System)
	}
	if !strings.Contains(user.System, "student's message") {
		t.Fatalf("editor prompt should target the student's own message: %q", user.System)
	}

	mate, err := Build(MessageTypeEditorMateChatMateComment, p, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(mate.System, "native speaker's reply") {
		t.Fatalf("editor prompt should target the persona's reply: %q", mate.System)
	}

	title, err := Build(MessageTypeTitleGeneration, p, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(title.System, "2-4 words") {
		t.Fatalf("title prompt: %q", title.System)
	}
}

func TestBuildUnknownMessageType(t *testing.T) {
	if _, err := Build(MessageType("weird"), Persona{}, nil); err == nil {
		t.Fatalf("expected error for unknown message type")
	}
}

func TestHistoryViewRoleMapping(t *testing.T) {
	view, err := HistoryView([]HistoryEntry{
		{Role: RoleUser, Content: "Hej!"},
		{Role: RoleChatMate, Content: "Hej, hur mår du?"},
		{Role: RoleEditorMate, Content: ApprovalToken},
	})
	if err != nil {
		t.Fatalf("HistoryView: %v", err)
	}
	if len(view) != 3 {
		t.Fatalf("len=%d", len(view))
	}
	if view[0].Role != "user" || view[0].Content != "[user]: Hej!" {
		t.Fatalf("view[0]=%+v", view[0])
	}
	if view[1].Role != "assistant" || view[1].Content != "[chat-mate]: Hej, hur mår du?" {
		t.Fatalf("view[1]=%+v", view[1])
	}
	if view[2].Role != "assistant" || !strings.HasPrefix(view[2].Content, "[editor-mate]: ") {
		t.Fatalf("view[2]=%+v", view[2])
	}
}

func TestHistoryViewRejectsUnknownRole(t *testing.T) {
	_, err := HistoryView([]HistoryEntry{{Role: Role("narrator"), Content: "x"}})
	if err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if !strings.Contains(err.Error(), "narrator") {
		t.Fatalf("error should name the role: %v", err)
	}
}

func TestPersonaFlagsShapePrompts(t *testing.T) {
	base := Persona{TargetLanguage: "French"}
	withFlags := base
	withFlags.CulturalContext = true
	withFlags.ProgressiveComplexity = true

	plain := chatMatePrompt(base)
	rich := chatMatePrompt(withFlags)
	if strings.Contains(plain, "cultural") {
		t.Fatalf("cultural section present without flag")
	}
	if !strings.Contains(rich, "cultural") {
		t.Fatalf("cultural section missing with flag")
	}
	if !strings.Contains(rich, "complexity") {
		t.Fatalf("progressive-complexity section missing with flag")
	}
}
