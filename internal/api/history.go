package api

import (
	"net/http"
	"strconv"

	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

func ListHistory(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	if app.InferenceRepository == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "history is not enabled"})
		return
	}

	var pipeline types.PipelineID
	if p := c.Query("pipeline"); p != "" {
		id, err := types.ParsePipelineID(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		pipeline = id
	}

	limit := defaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid limit"})
			return
		}
		limit = n
	}

	items, err := app.InferenceRepository.List(c.Request.Context(), pipeline, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   items,
	})
}
