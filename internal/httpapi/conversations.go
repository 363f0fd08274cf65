package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tandem-chat/backend/internal/platform/logger"
	"github.com/tandem-chat/backend/internal/store"
)

type ConversationHandler struct {
	log   *logger.Logger
	convs *store.Conversations
}

func NewConversationHandler(log *logger.Logger, convs *store.Conversations) *ConversationHandler {
	return &ConversationHandler{
		log:   log.With("handler", "ConversationHandler"),
		convs: convs,
	}
}

type createConversationRequest struct {
	TargetLanguage string `json:"targetLanguage"`
	Model          string `json:"model"`
}

type conversationResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	TargetLanguage string    `json:"targetLanguage"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Messages []messageResponse `json:"messages,omitempty"`
}

type messageResponse struct {
	ID               string    `json:"id"`
	Role             string    `json:"role"`
	MessageType      string    `json:"messageType,omitempty"`
	Content          string    `json:"content"`
	Reasoning        string    `json:"reasoning,omitempty"`
	Model            string    `json:"model,omitempty"`
	GenerationTimeMs int64     `json:"generationTimeMs,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`

	Attachments []attachmentResponse `json:"attachments,omitempty"`
}

func toConversationResponse(c *store.Conversation, withMessages bool) conversationResponse {
	out := conversationResponse{
		ID:             c.ID,
		Title:          c.Title,
		TargetLanguage: c.TargetLanguage,
		Model:          c.Model,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if !withMessages {
		return out
	}
	for _, m := range c.Messages {
		out.Messages = append(out.Messages, toMessageResponse(m))
	}
	return out
}

func toMessageResponse(m store.Message) messageResponse {
	out := messageResponse{
		ID:               m.ID,
		Role:             m.Role,
		MessageType:      m.MessageType,
		Content:          m.Content,
		Reasoning:        m.Reasoning,
		Model:            m.Model,
		GenerationTimeMs: m.GenerationTimeMs,
		CreatedAt:        m.CreatedAt,
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, toAttachmentResponse(a))
	}
	return out
}

// POST /v1/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	conv, err := h.convs.Create(c.Request.Context(), req.TargetLanguage, req.Model)
	if err != nil {
		h.log.Error("create conversation failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	c.JSON(http.StatusCreated, toConversationResponse(conv, false))
}

// GET /v1/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.convs.List(c.Request.Context())
	if err != nil {
		h.log.Error("list conversations failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	out := make([]conversationResponse, 0, len(convs))
	for i := range convs {
		out = append(out, toConversationResponse(&convs[i], false))
	}
	RespondOK(c, gin.H{"conversations": out})
}

// GET /v1/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.convs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		h.log.Error("load conversation failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	RespondOK(c, toConversationResponse(conv, true))
}

// DELETE /v1/conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	err := h.convs.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		h.log.Error("delete conversation failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	c.Status(http.StatusNoContent)
}
