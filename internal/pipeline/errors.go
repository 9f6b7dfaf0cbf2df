package pipeline

import (
	"errors"
	"fmt"

	"github.com/cozy-creator/vision-ai/internal/types"
)

var ErrNoSession = errors.New("onnx session was not initialized, check if the model has been downloaded")

// DecodeError means the input image could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not load image at %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InferenceError wraps a failure inside the runtime.
type InferenceError struct {
	Pipeline types.PipelineID
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Pipeline, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// OutputError means the model produced outputs of an unexpected shape or count.
type OutputError struct {
	Pipeline types.PipelineID
	Reason   string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("unexpected %s output: %s", e.Pipeline, e.Reason)
}

// LabelError means a label file is missing or does not cover a predicted class.
type LabelError struct {
	Path string
	Err  error
}

func (e *LabelError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("labels: %v", e.Err)
	}
	return fmt.Sprintf("labels %s: %v", e.Path, e.Err)
}

func (e *LabelError) Unwrap() error { return e.Err }
