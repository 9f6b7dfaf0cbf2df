package server

import (
	"net/http"

	"github.com/cozy-creator/vision-ai/internal/api"
	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Health check endpoint
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Not an API, just a simple file server endpoint
	s.ginEngine.GET("/file/:filename", handlerWrapper(app, api.GetFile))

	apiV1 := s.ginEngine.Group("/api/v1")

	apiV1.GET("/models", handlerWrapper(app, api.GetModelStatuses))
	apiV1.GET("/models/:pipeline", handlerWrapper(app, api.GetModelStatus))
	apiV1.POST("/models/:pipeline/download", handlerWrapper(app, api.DownloadModel))
	apiV1.POST("/models/:pipeline/prepare", handlerWrapper(app, api.PrepareModel))

	apiV1.POST("/run/:pipeline", handlerWrapper(app, api.RunPipeline))

	apiV1.GET("/outputs", handlerWrapper(app, api.ListOutputs))
	apiV1.DELETE("/outputs", handlerWrapper(app, api.CleanOutputs))

	apiV1.GET("/history", handlerWrapper(app, api.ListHistory))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
