package fileuploader

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cozy-creator/vision-ai/internal/services/filestorage"

	"github.com/gammazero/workerpool"
)

// Result is the outcome of one upload.
type Result struct {
	Path string
	URL  string
	Err  error
}

// Uploader copies generated files to a FileStorage on a bounded worker pool.
type Uploader struct {
	wp          *workerpool.WorkerPool
	filestorage filestorage.FileStorage
}

func NewFileUploader(filestorage filestorage.FileStorage, maxWorkers int) *Uploader {
	return &Uploader{
		wp:          workerpool.New(maxWorkers),
		filestorage: filestorage,
	}
}

// Stop waits for queued uploads to finish.
func (u *Uploader) Stop() {
	u.wp.StopWait()
}

// UploadFile reads path and uploads it under its base name. done is called
// from a worker goroutine.
func (u *Uploader) UploadFile(ctx context.Context, path string, done func(Result)) {
	u.wp.Submit(func() {
		done(u.upload(ctx, path))
	})
}

func (u *Uploader) upload(ctx context.Context, path string) Result {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path, Err: err}
	}

	url, err := u.filestorage.Upload(ctx, filestorage.FileInfo{Name: filepath.Base(path), Content: content})
	return Result{Path: path, URL: url, Err: err}
}
