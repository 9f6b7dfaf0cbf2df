// Package sessions loads each pipeline's model at most once and caches the handle.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/types"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrNotReady = errors.New("model artifact is not present")

// LoadError records a failed session load for one artifact file.
type LoadError struct {
	Pipeline types.PipelineID
	Path     string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s session from %s: %v", e.Pipeline, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Artifacts resolves where a pipeline's model lives and whether it is there.
type Artifacts interface {
	Path(id types.PipelineID) (string, error)
	State(id types.PipelineID) types.ArtifactState
}

// LoadEvent is emitted after a background Warm finishes.
type LoadEvent struct {
	Pipeline types.PipelineID
	Err      error
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

type failure struct {
	stamp fileStamp
	err   *LoadError
}

type Registry struct {
	engine    inference.Engine
	artifacts Artifacts
	notify    func(LoadEvent)
	logger    *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	sessions map[types.PipelineID]inference.Session
	failures map[types.PipelineID]failure

	wg sync.WaitGroup
}

type Option func(r *Registry)

func WithNotifier(n func(LoadEvent)) Option {
	return func(r *Registry) {
		r.notify = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(engine inference.Engine, artifacts Artifacts, options ...Option) *Registry {
	r := &Registry{
		engine:    engine,
		artifacts: artifacts,
		notify:    func(LoadEvent) {},
		logger:    zap.NewNop(),
		sessions:  make(map[types.PipelineID]inference.Session),
		failures:  make(map[types.PipelineID]failure),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Ready reports whether a session for id is loaded.
func (r *Registry) Ready(id types.PipelineID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[id]
	return ok
}

// LoadError returns the recorded load failure for id, or nil.
func (r *Registry) LoadError(id types.PipelineID) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.failures[id]; ok {
		return f.err
	}

	return nil
}

// Get returns the session for id, loading it on first use. Concurrent callers
// share one load. A failed load is returned again without reloading until the
// artifact file changes.
func (r *Registry) Get(ctx context.Context, id types.PipelineID) (inference.Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if r.artifacts.State(id).Status != types.ArtifactPresent {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, id)
	}

	path, err := r.artifacts.Path(id)
	if err != nil {
		return nil, err
	}

	ch := r.group.DoChan(string(id), func() (any, error) {
		return r.load(id, path)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(inference.Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) load(id types.PipelineID, path string) (inference.Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	r.mu.RLock()
	sess, ok := r.sessions[id]
	f, failed := r.failures[id]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}
	if failed && f.stamp == stamp {
		return nil, f.err
	}

	start := time.Now()
	sess, err = r.engine.Load(path)
	if err != nil {
		lerr := &LoadError{Pipeline: id, Path: path, Err: err}
		r.mu.Lock()
		r.failures[id] = failure{stamp: stamp, err: lerr}
		r.mu.Unlock()

		r.logger.Error("session load failed", zap.String("pipeline", string(id)), zap.Error(err))
		return nil, lerr
	}

	r.mu.Lock()
	r.sessions[id] = sess
	delete(r.failures, id)
	r.mu.Unlock()

	r.logger.Info("session loaded",
		zap.String("pipeline", string(id)),
		zap.Strings("inputs", sess.InputNames()),
		zap.Strings("outputs", sess.OutputNames()),
		zap.Duration("took", time.Since(start)),
	)
	return sess, nil
}

// Warm loads the session for id in the background and reports the outcome
// through the notifier. It is a no-op when the session is already loaded.
func (r *Registry) Warm(id types.PipelineID) {
	if r.Ready(id) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		_, err := r.Get(context.Background(), id)
		r.notify(LoadEvent{Pipeline: id, Err: err})
	}()
}

// Close waits for background loads and releases every session.
func (r *Registry) Close() error {
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, sess := range r.sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
		delete(r.sessions, id)
	}

	return errors.Join(errs...)
}
