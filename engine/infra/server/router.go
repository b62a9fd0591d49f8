package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loopline-ai/loopline/engine/core"
	"github.com/loopline-ai/loopline/engine/llm/orchestrator"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// ChatService is the part of the llm service the router needs.
type ChatService interface {
	Chat(ctx context.Context, request orchestrator.Request) (*orchestrator.Output, error)
}

func NewRouter(svc ChatService, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware(log))
	r.Use(LoggerMiddleware())

	r.GET("/healthz", healthHandler)
	api := r.Group("/api/v1")
	api.POST("/chat", chatHandler(svc))
	return r
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func chatHandler(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid request body",
				Details: map[string]any{"reason": err.Error()},
			})
			return
		}
		output, err := svc.Chat(c.Request.Context(), req.toOrchestratorRequest())
		if err != nil {
			status := http.StatusInternalServerError
			if core.CodeOf(err) == orchestrator.ErrCodeInvalidRequest {
				status = http.StatusBadRequest
			}
			c.JSON(status, ErrorResponse{
				Error:   core.RedactError(err),
				Details: core.DetailsOf(err),
			})
			return
		}
		c.JSON(http.StatusOK, ChatResponse{
			Content:      output.Content,
			ImageDataURI: output.ImageDataURI,
			Model:        output.Model,
			ToolCalls:    output.ToolCalls,
			ToolResults:  output.ToolResults,
		})
	}
}
