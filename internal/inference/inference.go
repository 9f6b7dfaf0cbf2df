// Package inference defines the engine-neutral session contract the pipelines run against.
package inference

import (
	"errors"
	"fmt"
)

var ErrTensorType = errors.New("unsupported tensor element type")

// Tensor is a dense tensor. Exactly one of the data slices is set.
type Tensor struct {
	Shape   []int64
	Float32 []float32
	Uint8   []uint8
	Int64   []int64
}

func NewFloat32(shape []int64, data []float32) Tensor {
	return Tensor{Shape: shape, Float32: data}
}

func NewUint8(shape []int64, data []uint8) Tensor {
	return Tensor{Shape: shape, Uint8: data}
}

func (t Tensor) Len() int {
	switch {
	case t.Float32 != nil:
		return len(t.Float32)
	case t.Uint8 != nil:
		return len(t.Uint8)
	default:
		return len(t.Int64)
	}
}

// Floats returns the tensor data as float32, converting integer element types.
func (t Tensor) Floats() []float32 {
	switch {
	case t.Float32 != nil:
		return t.Float32
	case t.Int64 != nil:
		out := make([]float32, len(t.Int64))
		for i, v := range t.Int64 {
			out[i] = float32(v)
		}
		return out
	case t.Uint8 != nil:
		out := make([]float32, len(t.Uint8))
		for i, v := range t.Uint8 {
			out[i] = float32(v)
		}
		return out
	}

	return nil
}

func (t Tensor) String() string {
	kind := "float32"
	switch {
	case t.Uint8 != nil:
		kind = "uint8"
	case t.Int64 != nil:
		kind = "int64"
	}

	return fmt.Sprintf("%s%v", kind, t.Shape)
}

// Session is a loaded model ready to run. Implementations must allow Run to be
// called from any goroutine, though callers never run one session concurrently.
type Session interface {
	InputNames() []string
	OutputNames() []string
	Run(inputs []Tensor, outputs []string) (map[string]Tensor, error)
	Close() error
}

// Engine turns a model file into a Session.
type Engine interface {
	Load(path string) (Session, error)
}
