package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tandem-chat/backend/internal/platform/logger"
	"github.com/tandem-chat/backend/internal/store"
)

type AttachmentHandler struct {
	log  *logger.Logger
	atts *store.Attachments
}

func NewAttachmentHandler(log *logger.Logger, atts *store.Attachments) *AttachmentHandler {
	return &AttachmentHandler{
		log:  log.With("handler", "AttachmentHandler"),
		atts: atts,
	}
}

type createAttachmentRequest struct {
	Filename   string `json:"filename" binding:"required"`
	MimeType   string `json:"mimeType" binding:"required"`
	Size       int64  `json:"size"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	DisplayURL string `json:"displayUrl" binding:"required"`
}

type attachmentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	DisplayURL string    `json:"displayUrl"`
	SavedAt    time.Time `json:"savedAt"`
}

func toAttachmentResponse(a store.FileAttachment) attachmentResponse {
	return attachmentResponse{
		ID:         a.ID,
		Filename:   a.Filename,
		MimeType:   a.MimeType,
		Size:       a.Size,
		Width:      a.Width,
		Height:     a.Height,
		DisplayURL: a.DisplayURL,
		SavedAt:    a.SavedAt,
	}
}

// POST /v1/attachments
// Registers metadata for an already-uploaded file; the binary itself lives
// with the upload subsystem.
func (h *AttachmentHandler) Create(c *gin.Context) {
	var req createAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	a := &store.FileAttachment{
		Filename:   req.Filename,
		MimeType:   req.MimeType,
		Size:       req.Size,
		Width:      req.Width,
		Height:     req.Height,
		DisplayURL: req.DisplayURL,
	}
	if err := h.atts.Create(c.Request.Context(), a); err != nil {
		h.log.Error("create attachment failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	c.JSON(http.StatusCreated, toAttachmentResponse(*a))
}

// GET /v1/attachments/:id
func (h *AttachmentHandler) Get(c *gin.Context) {
	a, err := h.atts.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		h.log.Error("load attachment failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "storage_error", err)
		return
	}
	RespondOK(c, toAttachmentResponse(*a))
}
