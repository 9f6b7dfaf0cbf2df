package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/dispatcher"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/imageutil"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

type RunRequest struct {
	ImagePath string `json:"image_path" form:"image_path"`
}

// RunPipeline accepts either a multipart "file" upload or a JSON body with
// an image_path readable by the server, and waits for the delivered result.
func RunPipeline(c *gin.Context) {
	id, ok := pipelineParam(c)
	if !ok {
		return
	}

	app := c.MustGet("app").(*app.App)
	token := uuid.NewString()

	var imagePath string
	cleanup := func() {}
	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		path, err := saveUpload(c, app.Config().DataDir, token)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		imagePath = path
		cleanup = func() { os.RemoveAll(filepath.Dir(path)) }
	} else {
		var req RunRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ImagePath == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse request body"})
			return
		}
		imagePath = req.ImagePath
	}

	results := make(chan types.InferenceResult, 1)
	_, err := app.Submit(types.InferenceRequest{
		Pipeline:  id,
		ImagePath: imagePath,
		Token:     token,
	}, func(result types.InferenceResult) {
		// The upload outlives the request when the client goes away first.
		cleanup()
		results <- result
	})
	if err != nil {
		cleanup()
	}
	switch {
	case errors.Is(err, dispatcher.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
		return
	case errors.Is(err, dispatcher.ErrModelNotReady):
		status, _ := app.ModelStatus(id)
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": err.Error(), "data": status})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	select {
	case result := <-results:
		code := http.StatusOK
		if !result.OK {
			code = http.StatusUnprocessableEntity
		}
		c.JSON(code, result)
	case <-c.Request.Context().Done():
		// The pipeline keeps running; its result is dropped by the buffered channel.
		c.Status(http.StatusRequestTimeout)
	}
}

// saveUpload stores the uploaded image under <data>/uploads/<token>/ keeping
// its original base name, so detection outputs are named after it.
func saveUpload(c *gin.Context, dataDir, token string) (string, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", errors.New("failed to get file")
	}

	name := filepath.Base(file.Filename)
	if !imageutil.IsInputFile(name) {
		return "", imageutil.ErrUnsupportedFormat
	}

	dir := filepath.Join(dataDir, "uploads", token)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	dest := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	return dest, nil
}
