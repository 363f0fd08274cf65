package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tandem-chat/backend/internal/attachments"
	"github.com/tandem-chat/backend/internal/catalog"
	"github.com/tandem-chat/backend/internal/config"
	"github.com/tandem-chat/backend/internal/llm/openrouter"
	"github.com/tandem-chat/backend/internal/platform/logger"
	"github.com/tandem-chat/backend/internal/prompts"
	"github.com/tandem-chat/backend/internal/store"
	"github.com/tandem-chat/backend/internal/turn"
)

type TurnHandler struct {
	log      *logger.Logger
	convs    *store.Conversations
	atts     *store.Attachments
	seq      *turn.Sequencer
	defaults config.TurnDefaults
}

func NewTurnHandler(log *logger.Logger, convs *store.Conversations, atts *store.Attachments, seq *turn.Sequencer, defaults config.TurnDefaults) *TurnHandler {
	return &TurnHandler{
		log:      log.With("handler", "TurnHandler"),
		convs:    convs,
		atts:     atts,
		seq:      seq,
		defaults: defaults,
	}
}

type turnRequest struct {
	Message       string   `json:"message" binding:"required"`
	AttachmentIDs []string `json:"attachmentIds"`

	Model          string `json:"model"`
	TargetLanguage string `json:"targetLanguage"`
	Streaming      *bool  `json:"streaming"`
	Reasoning      bool   `json:"reasoning"`

	ChatMateBackground    string `json:"chatMateBackground"`
	ChatMatePersonality   string `json:"chatMatePersonality"`
	EditorMateExpertise   string `json:"editorMateExpertise"`
	EditorMatePersonality string `json:"editorMatePersonality"`
	FeedbackStyle         string `json:"feedbackStyle"`
	CulturalContext       bool   `json:"culturalContext"`
	ProgressiveComplexity bool   `json:"progressiveComplexity"`
}

// turnEventFrame is one SSE payload sent to the client.
type turnEventFrame struct {
	Type        string           `json:"type"`
	Step        int              `json:"step,omitempty"`
	Role        string           `json:"role,omitempty"`
	MessageType string           `json:"messageType,omitempty"`
	Delta       string           `json:"delta,omitempty"`
	Message     *messageResponse `json:"message,omitempty"`
	Error       *APIError        `json:"error,omitempty"`
}

func (h *TurnHandler) settings(req turnRequest, conv *store.Conversation) turn.Settings {
	model := req.Model
	if model == "" {
		model = conv.Model
	}
	if model == "" {
		model = h.defaults.Model
	}
	lang := req.TargetLanguage
	if lang == "" {
		lang = conv.TargetLanguage
	}
	streaming := true
	if req.Streaming != nil {
		streaming = *req.Streaming
	}
	return turn.Settings{
		Model: model,
		Persona: prompts.Persona{
			TargetLanguage:        lang,
			ChatMateBackground:    req.ChatMateBackground,
			ChatMatePersonality:   req.ChatMatePersonality,
			EditorMateExpertise:   req.EditorMateExpertise,
			EditorMatePersonality: req.EditorMatePersonality,
			FeedbackStyle:         req.FeedbackStyle,
			CulturalContext:       req.CulturalContext,
			ProgressiveComplexity: req.ProgressiveComplexity,
		},
		Streaming:   streaming,
		Reasoning:   req.Reasoning,
		Temperature: h.defaults.Temperature,
		MaxTokens:   h.defaults.MaxTokens,
	}
}

// POST /v1/conversations/:id/turns
// Runs the three-actor turn and streams its events to the client as SSE.
// Completed steps are persisted as they finish, so a failed or cancelled
// turn keeps its partial progress.
func (h *TurnHandler) Run(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ctx := c.Request.Context()
	conv, err := h.convs.Get(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}

	history, err := h.convs.History(ctx, conv.ID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}

	stored, err := h.atts.ForIDs(ctx, req.AttachmentIDs)
	if errors.Is(err, store.ErrNotFound) {
		RespondError(c, http.StatusBadRequest, "unknown_attachment", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	files := make([]attachments.FileRef, 0, len(stored))
	for _, a := range stored {
		files = append(files, attachments.FileRef{ID: a.ID, Filename: a.Filename, DisplayURL: a.DisplayURL})
	}

	userMsg := &store.Message{
		ConversationID: conv.ID,
		Role:           string(prompts.RoleUser),
		Content:        req.Message,
	}
	if err := h.convs.AppendMessage(ctx, userMsg); err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	if err := h.atts.Claim(ctx, userMsg.ID, req.AttachmentIDs); err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}

	input := turn.Input{
		Text:     req.Message,
		Files:    files,
		History:  history,
		Settings: h.settings(req, conv),
	}

	h.streamTurn(c, conv.ID, input)
}

func (h *TurnHandler) streamTurn(c *gin.Context, conversationID string, input turn.Input) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	// Persistence must survive the client hanging up mid-turn.
	persistCtx := context.WithoutCancel(ctx)

	for ev := range h.seq.RunTurn(ctx, input) {
		frame := turnEventFrame{
			Type:        string(ev.Type),
			Step:        ev.Step,
			Role:        string(ev.Role),
			MessageType: string(ev.MessageType),
			Delta:       ev.Delta,
		}

		switch ev.Type {
		case turn.EventStepDone:
			m := &store.Message{
				ConversationID:   conversationID,
				Role:             string(ev.Result.Role),
				MessageType:      string(ev.Result.MessageType),
				Content:          ev.Result.Text,
				Reasoning:        ev.Result.Reasoning,
				Model:            ev.Result.Model,
				GenerationTimeMs: ev.Result.GenerationTimeMs,
			}
			if err := h.convs.AppendMessage(persistCtx, m); err != nil {
				h.log.Error("persist step result failed", "conversation_id", conversationID, "error", err)
			}
			mr := toMessageResponse(*m)
			frame.Message = &mr
		case turn.EventTurnError:
			frame.Error = &APIError{Message: ev.Err.Error(), Code: errorCode(ev.Err)}
		}

		writeSSE(c, frame)
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func writeSSE(c *gin.Context, frame turnEventFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	c.Writer.Flush()
}

func errorCode(err error) string {
	var cerr *catalog.CapabilityError
	if errors.As(err, &cerr) {
		return "capability_error"
	}
	var herr *openrouter.HTTPError
	if errors.As(err, &herr) {
		return "upstream_error"
	}
	return "turn_error"
}

// POST /v1/conversations/:id/title
// Generates and stores a short title for the conversation.
func (h *TurnHandler) GenerateTitle(c *gin.Context) {
	ctx := c.Request.Context()
	conv, err := h.convs.Get(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}

	history, err := h.convs.History(ctx, conv.ID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}

	settings := h.settings(turnRequest{}, conv)
	title, err := h.seq.RunTitle(ctx, history, settings)
	if err != nil {
		h.log.Warn("title generation failed", "conversation_id", conv.ID, "error", err)
		RespondError(c, http.StatusBadGateway, "upstream_error", err)
		return
	}

	if err := h.convs.SetTitle(ctx, conv.ID, title); err != nil {
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	RespondOK(c, gin.H{"title": title})
}
