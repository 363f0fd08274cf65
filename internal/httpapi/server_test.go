package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tandem-chat/backend/internal/catalog"
	"github.com/tandem-chat/backend/internal/config"
	"github.com/tandem-chat/backend/internal/llm"
	"github.com/tandem-chat/backend/internal/llm/llmtest"
	"github.com/tandem-chat/backend/internal/platform/logger"
	"github.com/tandem-chat/backend/internal/prompts"
	"github.com/tandem-chat/backend/internal/store"
	"github.com/tandem-chat/backend/internal/turn"
)

type staticSource struct {
	models []llm.ModelInfo
}

func (s *staticSource) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return s.models, nil
}

type testServer struct {
	router http.Handler
	fake   *llmtest.Fake
	convs  *store.Conversations
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	convs := store.NewConversations(db)
	atts := store.NewAttachments(db)

	fake := llmtest.New()
	log := logger.NewNop()
	provider := catalog.NewProvider(&staticSource{models: []llm.ModelInfo{
		{ID: "openai/gpt-4o", InputModalities: []string{"text", "image"}},
		{ID: "meta/llama-3-8b", InputModalities: []string{"text"}},
	}}, catalog.NewMemoryCache(time.Minute), log)
	seq := turn.NewSequencer(fake, provider, log)

	defaults := config.TurnDefaults{Model: "meta/llama-3-8b", Temperature: 0.7, MaxTokens: 1024}
	router := NewRouter(RouterConfig{
		Log:                 log,
		ConversationHandler: NewConversationHandler(log, convs),
		TurnHandler:         NewTurnHandler(log, convs, atts, seq, defaults),
		AttachmentHandler:   NewAttachmentHandler(log, atts),
		ModelsHandler:       NewModelsHandler(log, provider),
	})
	return &testServer{router: router, fake: fake, convs: convs}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createConversation(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/conversations", jsonBody{"targetLanguage": "Swedish", "model": "meta/llama-3-8b"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation: status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.ID
}

type jsonBody = map[string]any

func sseFrames(t *testing.T, body string) ([]turnEventFrame, bool) {
	t.Helper()
	var frames []turnEventFrame
	sawDone := false
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		var f turnEventFrame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			t.Fatalf("bad frame %q: %v", payload, err)
		}
		frames = append(frames, f)
	}
	return frames, sawDone
}

func TestConversationCRUD(t *testing.T) {
	s := newTestServer(t)
	id := s.createConversation(t)

	w := s.do(t, http.MethodGet, "/v1/conversations/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status=%d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/conversations", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), id) {
		t.Fatalf("list: status=%d body=%s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodDelete, "/v1/conversations/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status=%d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/conversations/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status=%d", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil || env.Error.Code != "not_found" {
		t.Fatalf("error envelope=%s", w.Body.String())
	}
}

func TestTurnEndpointStreamsThreeSteps(t *testing.T) {
	s := newTestServer(t)
	id := s.createConversation(t)

	s.fake.QueueText("Nästan rätt!")
	s.fake.QueueText("Hej! Hur mår du?")
	s.fake.QueueText(prompts.ApprovalToken)

	w := s.do(t, http.MethodPost, "/v1/conversations/"+id+"/turns", jsonBody{
		"message":   "Hej",
		"streaming": false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content-type=%q", ct)
	}

	frames, sawDone := sseFrames(t, w.Body.String())
	if !sawDone {
		t.Fatalf("missing [DONE] terminator")
	}

	var stepDone, turnDone int
	var types []string
	for _, f := range frames {
		switch f.Type {
		case string(turn.EventStepDone):
			stepDone++
			types = append(types, f.MessageType)
			if f.Message == nil || f.Message.ID == "" {
				t.Fatalf("step.done without persisted message: %+v", f)
			}
		case string(turn.EventTurnDone):
			turnDone++
		}
	}
	if stepDone != 3 || turnDone != 1 {
		t.Fatalf("stepDone=%d turnDone=%d", stepDone, turnDone)
	}
	want := []string{
		string(prompts.MessageTypeEditorMateUserComment),
		string(prompts.MessageTypeChatMateResponse),
		string(prompts.MessageTypeEditorMateChatMateComment),
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("step %d type=%s want %s", i+1, types[i], want[i])
		}
	}

	// Learner message plus the three actor messages are persisted.
	conv, err := s.convs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(conv.Messages) != 4 {
		t.Fatalf("persisted messages=%d, want 4", len(conv.Messages))
	}
	if conv.Messages[0].Role != "user" || conv.Messages[0].Content != "Hej" {
		t.Fatalf("first message=%+v", conv.Messages[0])
	}
}

func TestTurnEndpointCapabilityError(t *testing.T) {
	s := newTestServer(t)
	id := s.createConversation(t)

	w := s.do(t, http.MethodPost, "/v1/conversations/"+id+"/turns", jsonBody{
		"message":   "Titta https://x.com/katt.jpg",
		"streaming": false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	frames, sawDone := sseFrames(t, w.Body.String())
	if !sawDone {
		t.Fatalf("missing [DONE] terminator")
	}
	last := frames[len(frames)-1]
	if last.Type != string(turn.EventTurnError) {
		t.Fatalf("last frame=%+v", last)
	}
	if last.Error == nil || last.Error.Code != "capability_error" {
		t.Fatalf("error=%+v", last.Error)
	}
	if !strings.Contains(last.Error.Message, "meta/llama-3-8b") {
		t.Fatalf("error should name the model: %q", last.Error.Message)
	}
	if len(s.fake.Requests()) != 0 {
		t.Fatalf("completion call issued despite capability failure")
	}

	// The learner's message is kept even though the turn failed.
	conv, err := s.convs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("persisted messages=%d, want 1", len(conv.Messages))
	}
}

func TestTurnEndpointUnknownConversation(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/conversations/ghost/turns", jsonBody{"message": "Hej"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestAttachmentsFlowThroughTurn(t *testing.T) {
	s := newTestServer(t)
	id := s.createConversation(t)

	w := s.do(t, http.MethodPost, "/v1/attachments", jsonBody{
		"filename":   "katt.png",
		"mimeType":   "image/png",
		"size":       1234,
		"displayUrl": "https://cdn.example/katt.png",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create attachment: status=%d body=%s", w.Code, w.Body.String())
	}
	var att struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &att); err != nil {
		t.Fatalf("decode: %v", err)
	}

	s.fake.QueueText("ok")
	s.fake.QueueText("En fin katt!")
	s.fake.QueueText(prompts.ApprovalToken)

	w = s.do(t, http.MethodPost, "/v1/conversations/"+id+"/turns", jsonBody{
		"message":       "vad tycker du?",
		"attachmentIds": []string{att.ID},
		"model":         "openai/gpt-4o",
		"streaming":     false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if _, sawDone := sseFrames(t, w.Body.String()); !sawDone {
		t.Fatalf("missing [DONE]")
	}

	reqs := s.fake.Requests()
	if len(reqs) != 3 {
		t.Fatalf("requests=%d", len(reqs))
	}
	found := false
	for _, m := range reqs[0].Messages {
		for _, p := range m.Parts {
			if p.ImageURL != nil && p.ImageURL.URL == "https://cdn.example/katt.png" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("uploaded attachment not forwarded upstream")
	}
}

func TestTitleEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := s.createConversation(t)

	s.fake.QueueText("Swedish Greetings")
	w := s.do(t, http.MethodPost, "/v1/conversations/"+id+"/title", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Swedish Greetings") {
		t.Fatalf("body=%s", w.Body.String())
	}

	conv, err := s.convs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv.Title != "Swedish Greetings" {
		t.Fatalf("title=%q", conv.Title)
	}
}

func TestModelsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp struct {
		Data []modelResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("models=%d", len(resp.Data))
	}
	if !resp.Data[0].ImageCapable || resp.Data[1].ImageCapable {
		t.Fatalf("capability flags=%+v", resp.Data)
	}
}
