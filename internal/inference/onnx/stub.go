//go:build !cgo

package onnx

import (
	"errors"

	"github.com/cozy-creator/vision-ai/internal/inference"
)

// ErrCGORequired is returned by every load when built without cgo.
var ErrCGORequired = errors.New("onnx: cgo required but not available")

type Engine struct {
	LibraryPath string
	NumThreads  int
}

// NewEngine returns an engine; numThreads <= 0 keeps the runtime default.
func NewEngine(libraryPath string, numThreads int) *Engine {
	return &Engine{LibraryPath: libraryPath, NumThreads: numThreads}
}

func (e *Engine) Load(path string) (inference.Session, error) {
	return nil, ErrCGORequired
}

func Destroy() error {
	return nil
}
