package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/gin-gonic/gin"
)

const prepareTimeout = 10 * time.Minute

func pipelineParam(c *gin.Context) (types.PipelineID, bool) {
	id, err := types.ParsePipelineID(c.Param("pipeline"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return "", false
	}

	return id, true
}

func GetModelStatuses(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   app.ModelStatuses(),
	})
}

func GetModelStatus(c *gin.Context) {
	id, ok := pipelineParam(c)
	if !ok {
		return
	}

	app := c.MustGet("app").(*app.App)
	status, err := app.ModelStatus(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   status,
	})
}

// DownloadModel starts the download and returns without waiting for it.
func DownloadModel(c *gin.Context) {
	id, ok := pipelineParam(c)
	if !ok {
		return
	}

	app := c.MustGet("app").(*app.App)
	state, err := app.Download(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "ok",
		"data":   state,
	})
}

func PrepareModel(c *gin.Context) {
	id, ok := pipelineParam(c)
	if !ok {
		return
	}

	app := c.MustGet("app").(*app.App)
	ctx, cancel := context.WithTimeout(c.Request.Context(), prepareTimeout)
	defer cancel()

	if err := app.Prepare(ctx, id); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		c.JSON(code, gin.H{"message": err.Error()})
		return
	}

	status, _ := app.ModelStatus(id)
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   status,
	})
}
