// Package dispatcher accepts inference requests, runs them off the caller's
// goroutine and delivers every result through one serialized channel.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cozy-creator/vision-ai/internal/equeue"
	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/pipeline"
	"github.com/cozy-creator/vision-ai/internal/types"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusy            = errors.New("pipeline is already running")
	ErrModelNotReady   = errors.New("model is not ready")
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrClosed          = errors.New("dispatcher closed")
)

// Handler receives the result of one request on the consumer goroutine.
type Handler func(result types.InferenceResult)

type Artifacts interface {
	State(id types.PipelineID) types.ArtifactState
	EnsurePresent(ctx context.Context, id types.PipelineID) (types.ArtifactState, error)
}

type Sessions interface {
	Ready(id types.PipelineID) bool
	Get(ctx context.Context, id types.PipelineID) (inference.Session, error)
	Warm(id types.PipelineID)
}

type Executor interface {
	Execute(ctx context.Context, sess inference.Session, imagePath string) (pipeline.Output, error)
}

// Recorder persists delivered results. It runs on the worker goroutine.
type Recorder interface {
	Record(ctx context.Context, req types.InferenceRequest, result types.InferenceResult, took time.Duration) error
}

type Dispatcher struct {
	ctx       context.Context
	artifacts Artifacts
	sessions  Sessions
	pipelines map[types.PipelineID]Executor
	recorder  Recorder
	logger    *zap.Logger

	workers int
	pool    *workerpool.WorkerPool
	queue   *equeue.Queue[func()]

	mu      sync.Mutex
	running map[types.PipelineID]bool
	closed  bool
}

type Option func(d *Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a dispatcher. ctx bounds downloads and runs it starts.
func New(ctx context.Context, artifacts Artifacts, sessions Sessions, pipelines map[types.PipelineID]Executor, options ...Option) *Dispatcher {
	d := &Dispatcher{
		ctx:       ctx,
		artifacts: artifacts,
		sessions:  sessions,
		pipelines: pipelines,
		logger:    zap.NewNop(),
		workers:   len(pipelines),
		queue:     equeue.New[func()](),
		running:   make(map[types.PipelineID]bool),
	}

	for _, opt := range options {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	d.pool = workerpool.New(d.workers)

	return d
}

// Running reports whether a request for id is in flight or awaiting delivery.
func (d *Dispatcher) Running(id types.PipelineID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[id]
}

// Submit starts req and returns its correlation token. It fails fast with
// ErrBusy while the pipeline has a result outstanding, and with
// ErrModelNotReady while the model is not loaded; in that case the missing
// artifact is downloaded or the session warmed in the background.
func (d *Dispatcher) Submit(req types.InferenceRequest, handler Handler) (string, error) {
	exec, ok := d.pipelines[req.Pipeline]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPipeline, req.Pipeline)
	}
	if req.Token == "" {
		req.Token = uuid.NewString()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrClosed
	}
	if d.running[req.Pipeline] {
		d.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrBusy, req.Pipeline)
	}
	if !d.sessions.Ready(req.Pipeline) {
		d.mu.Unlock()
		return "", d.prepare(req.Pipeline)
	}
	d.running[req.Pipeline] = true
	// Close cannot stop the pool until mu is released.
	defer d.mu.Unlock()

	d.logger.Debug("submitting inference",
		zap.String("pipeline", string(req.Pipeline)),
		zap.String("token", req.Token),
		zap.String("image", req.ImagePath),
	)

	d.pool.Submit(func() {
		d.execute(exec, req, handler)
	})

	return req.Token, nil
}

// prepare kicks off whatever the pipeline is missing and returns the not-ready error.
func (d *Dispatcher) prepare(id types.PipelineID) error {
	st := d.artifacts.State(id)
	switch st.Status {
	case types.ArtifactPresent:
		d.sessions.Warm(id)
		return fmt.Errorf("%w: %s session is loading", ErrModelNotReady, id)
	case types.ArtifactDownloading:
		return fmt.Errorf("%w: %s model is downloading (%d/%d bytes)", ErrModelNotReady, id, st.Completed, st.Total)
	default:
		if _, err := d.artifacts.EnsurePresent(d.ctx, id); err != nil {
			return fmt.Errorf("%w: %v", ErrModelNotReady, err)
		}
		return fmt.Errorf("%w: %s model download started", ErrModelNotReady, id)
	}
}

func (d *Dispatcher) execute(exec Executor, req types.InferenceRequest, handler Handler) {
	start := time.Now()

	result := types.InferenceResult{Pipeline: req.Pipeline, Token: req.Token}
	out, err := d.run(exec, req)
	if err != nil {
		result.Message = fmt.Sprintf("%s error: %v", title(req.Pipeline), err)
		d.logger.Error("inference failed", zap.String("pipeline", string(req.Pipeline)), zap.String("token", req.Token), zap.Error(err))
	} else {
		result.OK = true
		result.Message = out.Message
	}
	took := time.Since(start)

	if d.recorder != nil {
		if err := d.recorder.Record(d.ctx, req, result, took); err != nil {
			d.logger.Warn("failed to record inference", zap.String("token", req.Token), zap.Error(err))
		}
	}

	err = d.queue.Push(func() {
		d.mu.Lock()
		d.running[req.Pipeline] = false
		d.mu.Unlock()

		handler(result)
	})
	if err != nil {
		d.logger.Error("dropping result, delivery queue closed", zap.String("token", req.Token))
	}
}

func (d *Dispatcher) run(exec Executor, req types.InferenceRequest) (pipeline.Output, error) {
	sess, err := d.sessions.Get(d.ctx, req.Pipeline)
	if err != nil {
		return pipeline.Output{}, err
	}

	return exec.Execute(d.ctx, sess, req.ImagePath)
}

// Post queues fn for the consumer goroutine behind any pending results.
func (d *Dispatcher) Post(fn func()) error {
	return d.queue.Push(fn)
}

// Run delivers queued results and posted funcs one at a time until ctx is
// done or the dispatcher is closed and drained. Call it from exactly one goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		fn, err := d.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, equeue.ErrQueueClosed) {
				return nil
			}
			return err
		}

		fn()
	}
}

// Close waits for in-flight requests, then stops accepting deliveries.
// Results already queued are still delivered by Run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.pool.StopWait()
	d.queue.Close()
	d.logger.Debug("dispatcher closed", zap.Int("pending_deliveries", d.queue.Len()))
}

func title(id types.PipelineID) string {
	s := string(id)
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
