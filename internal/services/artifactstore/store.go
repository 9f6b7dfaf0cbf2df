// Package artifactstore tracks model files on disk and drives their downloads.
package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cozy-creator/vision-ai/internal/services/model_downloader"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/hashutil"
	"github.com/cozy-creator/vision-ai/internal/utils/pathutil"

	"go.uber.org/zap"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrNotStarted      = errors.New("artifact is absent and no download is in progress")
)

// Fetcher transfers one artifact to dest. *model_downloader.Downloader implements it.
type Fetcher interface {
	Fetch(ctx context.Context, desc types.ModelDescriptor, dest string, progress model_downloader.ProgressFunc) error
}

// DownloadEvent is emitted on every progress update and once on completion.
type DownloadEvent struct {
	Pipeline types.PipelineID
	State    types.ArtifactState
	Done     bool
	Err      error
}

type Notifier func(ev DownloadEvent)

type Store struct {
	dir     string
	descs   map[types.PipelineID]types.ModelDescriptor
	fetcher Fetcher
	notify  Notifier
	subs    *model_downloader.SubscriptionManager
	logger  *zap.Logger

	mu       sync.Mutex
	states   map[types.PipelineID]types.ArtifactState
	verified map[types.PipelineID]fileStamp
	wg       sync.WaitGroup
}

// fileStamp identifies one version of a file on disk.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}

	return fileStamp{size: info.Size(), modTime: info.ModTime()}, nil
}

type Option func(s *Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notify = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(dir string, descs map[types.PipelineID]types.ModelDescriptor, fetcher Fetcher, options ...Option) *Store {
	s := &Store{
		dir:     dir,
		descs:   descs,
		fetcher: fetcher,
		notify:  func(DownloadEvent) {},
		subs:    model_downloader.NewSubscriptionManager(),
		logger:  zap.NewNop(),
		states:  make(map[types.PipelineID]types.ArtifactState),

		verified: make(map[types.PipelineID]fileStamp),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

func (s *Store) Descriptor(id types.PipelineID) (types.ModelDescriptor, error) {
	desc, ok := s.descs[id]
	if !ok {
		return types.ModelDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownPipeline, id)
	}

	return desc, nil
}

// Path is the canonical location of the artifact for id.
func (s *Store) Path(id types.PipelineID) (string, error) {
	desc, err := s.Descriptor(id)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.dir, desc.Filename), nil
}

// State returns a snapshot of the artifact for id.
func (s *Store) State(id types.PipelineID) types.ArtifactState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, _ := s.stateLocked(id)
	return st
}

func (s *Store) stateLocked(id types.PipelineID) (types.ArtifactState, string) {
	path, err := s.Path(id)
	if err != nil {
		return types.ArtifactState{Status: types.ArtifactAbsent, Err: err}, ""
	}

	st := s.states[id]
	if st.Status == types.ArtifactDownloading {
		return st, path
	}

	if pathutil.FileExists(path) {
		if err := s.verifyLocked(id, path); err != nil {
			st.Status = types.ArtifactAbsent
			st.Err = err
		} else {
			st.Status = types.ArtifactPresent
			st.Err = nil
		}
	} else {
		st.Status = types.ArtifactAbsent
	}
	s.states[id] = st

	return st, path
}

// verifyLocked checks a file already on disk against the descriptor checksum.
// A file version that passed once is not hashed again.
func (s *Store) verifyLocked(id types.PipelineID, path string) error {
	desc := s.descs[id]
	if desc.Checksum == "" {
		return nil
	}

	stamp, err := stampOf(path)
	if err != nil {
		return err
	}
	if s.verified[id] == stamp {
		return nil
	}

	sum, err := hashutil.Blake3File(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, desc.Checksum) {
		s.logger.Warn("model file does not match its checksum",
			zap.String("pipeline", string(id)), zap.String("path", path))
		return fmt.Errorf("%w: expected %s, got %s", model_downloader.ErrChecksumMismatch, desc.Checksum, sum)
	}

	s.verified[id] = stamp
	return nil
}

// EnsurePresent returns immediately. A present artifact is reported as such,
// an in-flight download is reported without starting another, and an absent
// artifact starts a download bounded by ctx.
func (s *Store) EnsurePresent(ctx context.Context, id types.PipelineID) (types.ArtifactState, error) {
	desc, err := s.Descriptor(id)
	if err != nil {
		return types.ArtifactState{Status: types.ArtifactAbsent, Err: err}, err
	}

	s.mu.Lock()
	st, path := s.stateLocked(id)
	if st.Status != types.ArtifactAbsent {
		s.mu.Unlock()
		return st, nil
	}

	st = types.ArtifactState{Status: types.ArtifactDownloading, Total: desc.SizeHint}
	s.states[id] = st
	s.subs.SetModelStatus(id, model_downloader.StatusDownloading, nil)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.download(ctx, id, desc, path)

	return st, nil
}

func (s *Store) download(ctx context.Context, id types.PipelineID, desc types.ModelDescriptor, path string) {
	defer s.wg.Done()

	err := s.fetcher.Fetch(ctx, desc, path, func(completed, total int64) {
		s.mu.Lock()
		st := s.states[id]
		if completed > st.Completed {
			st.Completed = completed
		}
		if total > 0 {
			st.Total = total
		}
		s.states[id] = st
		s.mu.Unlock()

		s.notify(DownloadEvent{Pipeline: id, State: st})
	})

	s.mu.Lock()
	st := s.states[id]
	if err != nil {
		st = types.ArtifactState{Status: types.ArtifactAbsent, Err: err}
	} else {
		st.Status = types.ArtifactPresent
		st.Err = nil
		if st.Total <= 0 {
			st.Total = st.Completed
		}
		// Fetch has already checked the checksum of this version.
		if stamp, serr := stampOf(path); serr == nil {
			s.verified[id] = stamp
		}
	}
	s.states[id] = st
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("model download failed", zap.String("pipeline", string(id)), zap.Error(err))
		s.subs.SetModelStatus(id, model_downloader.StatusFailed, err)
	} else {
		s.logger.Info("model ready", zap.String("pipeline", string(id)), zap.String("path", path))
		s.subs.SetModelStatus(id, model_downloader.StatusReady, nil)
	}

	s.notify(DownloadEvent{Pipeline: id, State: st, Done: true, Err: err})
}

// Wait blocks until the artifact for id is present or its current download fails.
func (s *Store) Wait(ctx context.Context, id types.PipelineID) error {
	st := s.State(id)
	switch st.Status {
	case types.ArtifactPresent:
		return nil
	case types.ArtifactAbsent:
		if st.Err != nil {
			return st.Err
		}
		return ErrNotStarted
	}

	select {
	case err := <-s.subs.Subscribe(id):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for in-flight downloads. Cancel their context first to abort them.
func (s *Store) Close() {
	s.wg.Wait()
}
