// Package inferencetest provides in-memory engines and sessions for tests.
package inferencetest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cozy-creator/vision-ai/internal/inference"
)

// Session returns canned outputs and records the inputs it was given.
type Session struct {
	Inputs  []string
	Outputs map[string]inference.Tensor
	// Order of OutputNames; defaults to the Outputs keys in no fixed order.
	OutputOrder []string
	Err         error
	Delay       time.Duration
	// Gate, when set, blocks Run until it is closed.
	Gate chan struct{}

	mu       sync.Mutex
	received [][]inference.Tensor
	closed   bool
}

func (s *Session) InputNames() []string {
	if len(s.Inputs) == 0 {
		return []string{"input"}
	}
	return s.Inputs
}

func (s *Session) OutputNames() []string {
	if len(s.OutputOrder) > 0 {
		return s.OutputOrder
	}

	names := make([]string, 0, len(s.Outputs))
	for name := range s.Outputs {
		names = append(names, name)
	}
	return names
}

func (s *Session) Run(inputs []inference.Tensor, outputs []string) (map[string]inference.Tensor, error) {
	s.mu.Lock()
	s.received = append(s.received, inputs)
	s.mu.Unlock()

	if s.Gate != nil {
		<-s.Gate
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.Err != nil {
		return nil, s.Err
	}

	result := make(map[string]inference.Tensor, len(outputs))
	for _, name := range outputs {
		t, ok := s.Outputs[name]
		if !ok {
			return nil, errors.New("unknown output " + name)
		}
		result[name] = t
	}

	return result, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Received returns the inputs of every Run call so far.
func (s *Session) Received() [][]inference.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]inference.Tensor(nil), s.received...)
}

// Engine hands out Session for every path, or fails with Err.
type Engine struct {
	Session inference.Session
	Err     error
	Delay   time.Duration

	loads atomic.Int32
}

func (e *Engine) Load(path string) (inference.Session, error) {
	e.loads.Add(1)
	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Session == nil {
		return &Session{}, nil
	}

	return e.Session, nil
}

func (e *Engine) Loads() int {
	return int(e.loads.Load())
}
