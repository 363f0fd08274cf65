package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tandem-chat/backend/internal/catalog"
	"github.com/tandem-chat/backend/internal/platform/logger"
)

type ModelsHandler struct {
	log     *logger.Logger
	catalog *catalog.Provider
}

func NewModelsHandler(log *logger.Logger, cat *catalog.Provider) *ModelsHandler {
	return &ModelsHandler{
		log:     log.With("handler", "ModelsHandler"),
		catalog: cat,
	}
}

type modelResponse struct {
	ID              string   `json:"id"`
	InputModalities []string `json:"inputModalities"`
	ImageCapable    bool     `json:"imageCapable"`
}

// GET /v1/models
func (h *ModelsHandler) List(c *gin.Context) {
	models, err := h.catalog.Models(c.Request.Context())
	if err != nil {
		h.log.Error("model catalog unavailable", "error", err)
		RespondError(c, http.StatusBadGateway, "catalog_unavailable", err)
		return
	}
	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, modelResponse{
			ID:              m.ID,
			InputModalities: m.InputModalities,
			ImageCapable:    m.ImageCapable(),
		})
	}
	RespondOK(c, gin.H{"data": out})
}
