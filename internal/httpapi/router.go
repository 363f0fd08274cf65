// Package httpapi exposes the conversation, turn, attachment, and model
// endpoints over gin.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tandem-chat/backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	AllowedOrigins  []string
	MaxRequestBytes int64

	ConversationHandler *ConversationHandler
	TurnHandler         *TurnHandler
	AttachmentHandler   *AttachmentHandler
	ModelsHandler       *ModelsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(cfg.Log))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(MaxRequestBytes(cfg.MaxRequestBytes))

	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		if cfg.ConversationHandler != nil {
			v1.POST("/conversations", cfg.ConversationHandler.Create)
			v1.GET("/conversations", cfg.ConversationHandler.List)
			v1.GET("/conversations/:id", cfg.ConversationHandler.Get)
			v1.DELETE("/conversations/:id", cfg.ConversationHandler.Delete)
		}

		if cfg.TurnHandler != nil {
			v1.POST("/conversations/:id/turns", cfg.TurnHandler.Run)
			v1.POST("/conversations/:id/title", cfg.TurnHandler.GenerateTitle)
		}

		if cfg.AttachmentHandler != nil {
			v1.POST("/attachments", cfg.AttachmentHandler.Create)
			v1.GET("/attachments/:id", cfg.AttachmentHandler.Get)
		}

		if cfg.ModelsHandler != nil {
			v1.GET("/models", cfg.ModelsHandler.List)
		}
	}

	return r
}
