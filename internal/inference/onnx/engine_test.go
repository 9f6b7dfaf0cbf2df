package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEngineKeepsSettings(t *testing.T) {
	e := NewEngine("/opt/onnxruntime/lib/libonnxruntime.so", 4)
	assert.Equal(t, "/opt/onnxruntime/lib/libonnxruntime.so", e.LibraryPath)
	assert.Equal(t, 4, e.NumThreads)
}
