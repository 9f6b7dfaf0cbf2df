//go:build cgo

// Package onnx runs models through ONNX Runtime.
package onnx

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cozy-creator/vision-ai/internal/inference"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ErrRuntimeInit   = errors.New("onnx runtime initialization failed")
	ErrSessionCreate = errors.New("onnx session creation failed")
	ErrUnknownOutput = errors.New("unknown output name")
)

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// Engine loads ONNX models. LibraryPath points at the onnxruntime shared
// library; empty uses the platform default lookup.
type Engine struct {
	LibraryPath string
	NumThreads  int
}

// NewEngine returns an engine; numThreads <= 0 keeps the runtime default.
func NewEngine(libraryPath string, numThreads int) *Engine {
	return &Engine{LibraryPath: libraryPath, NumThreads: numThreads}
}

func (e *Engine) initRuntime() error {
	runtimeInitOnce.Do(func() {
		if e.LibraryPath != "" {
			ort.SetSharedLibraryPath(e.LibraryPath)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	if runtimeInitErr != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeInit, runtimeInitErr)
	}

	return nil
}

func (e *Engine) Load(path string) (inference.Session, error) {
	if err := e.initRuntime(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading model info: %v", ErrSessionCreate, err)
	}

	s := &Session{}
	for _, info := range inputs {
		s.inputs = append(s.inputs, info.Name)
	}
	for _, info := range outputs {
		s.outputs = append(s.outputs, info.Name)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}
	defer opts.Destroy()

	if e.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(e.NumThreads); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
		}
	}

	s.inner, err = ort.NewDynamicAdvancedSession(path, s.inputs, s.outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}

	return s, nil
}

// Destroy releases the runtime environment. Call once at process exit.
func Destroy() error {
	if !ort.IsInitialized() {
		return nil
	}

	return ort.DestroyEnvironment()
}

type Session struct {
	mu      sync.Mutex
	inner   *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

func (s *Session) InputNames() []string {
	return s.inputs
}

func (s *Session) OutputNames() []string {
	return s.outputs
}

// Run feeds inputs in declaration order and returns the requested outputs.
// Output tensors are allocated by the runtime since their shapes can depend on the input.
func (s *Session) Run(inputs []inference.Tensor, names []string) (map[string]inference.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inner == nil {
		return nil, errors.New("session closed")
	}
	if len(inputs) != len(s.inputs) {
		return nil, fmt.Errorf("expected %d inputs, got %d", len(s.inputs), len(inputs))
	}

	in := make([]ort.ArbitraryTensor, len(inputs))
	defer func() {
		for _, t := range in {
			if t != nil {
				t.Destroy()
			}
		}
	}()
	for i, t := range inputs {
		v, err := toOrt(t)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", s.inputs[i], err)
		}
		in[i] = v
	}

	out := make([]ort.ArbitraryTensor, len(s.outputs))
	defer func() {
		for _, t := range out {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	if err := s.inner.Run(in, out); err != nil {
		return nil, err
	}

	result := make(map[string]inference.Tensor, len(names))
	for _, name := range names {
		idx := indexOf(s.outputs, name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, name)
		}

		t, err := fromOrt(out[idx])
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", name, err)
		}
		result[name] = t
	}

	return result, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inner == nil {
		return nil
	}
	err := s.inner.Destroy()
	s.inner = nil
	return err
}

func toOrt(t inference.Tensor) (ort.ArbitraryTensor, error) {
	shape := ort.NewShape(t.Shape...)
	switch {
	case t.Float32 != nil:
		return ort.NewTensor(shape, t.Float32)
	case t.Uint8 != nil:
		return ort.NewTensor(shape, t.Uint8)
	case t.Int64 != nil:
		return ort.NewTensor(shape, t.Int64)
	default:
		return nil, inference.ErrTensorType
	}
}

// fromOrt copies the runtime-owned data so the ort value can be destroyed.
func fromOrt(v ort.ArbitraryTensor) (inference.Tensor, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return inference.NewFloat32(copyShape(t.GetShape()), append([]float32(nil), t.GetData()...)), nil
	case *ort.Tensor[uint8]:
		return inference.NewUint8(copyShape(t.GetShape()), append([]uint8(nil), t.GetData()...)), nil
	case *ort.Tensor[int64]:
		return inference.Tensor{Shape: copyShape(t.GetShape()), Int64: append([]int64(nil), t.GetData()...)}, nil
	case *ort.Tensor[int32]:
		data := t.GetData()
		out := make([]int64, len(data))
		for i, d := range data {
			out[i] = int64(d)
		}
		return inference.Tensor{Shape: copyShape(t.GetShape()), Int64: out}, nil
	case nil:
		return inference.Tensor{}, errors.New("output not allocated")
	default:
		return inference.Tensor{}, fmt.Errorf("%w: %T", inference.ErrTensorType, v)
	}
}

func copyShape(s ort.Shape) []int64 {
	return append([]int64(nil), s...)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}

	return -1
}
