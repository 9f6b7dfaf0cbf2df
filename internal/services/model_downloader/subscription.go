package model_downloader

import (
	"errors"
	"sync"

	"github.com/cozy-creator/vision-ai/internal/types"
)

type DownloadStatus string

const (
	StatusDownloading DownloadStatus = "downloading"
	StatusReady       DownloadStatus = "ready"
	StatusFailed      DownloadStatus = "failed"
)

var ErrModelDownloadFailed = errors.New("model download failed")

// SubscriptionManager lets callers wait for a download to reach a terminal state.
type SubscriptionManager struct {
	mu              sync.RWMutex
	modelStatus     map[types.PipelineID]DownloadStatus
	lastErr         map[types.PipelineID]error
	pendingRequests map[types.PipelineID][]chan error
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		modelStatus:     make(map[types.PipelineID]DownloadStatus),
		lastErr:         make(map[types.PipelineID]error),
		pendingRequests: make(map[types.PipelineID][]chan error),
	}
}

// SetModelStatus records status for id. Terminal statuses release every pending subscriber.
// cause is reported to subscribers when status is StatusFailed.
func (sm *SubscriptionManager) SetModelStatus(id types.PipelineID, status DownloadStatus, cause error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.modelStatus[id] = status
	if status == StatusDownloading {
		delete(sm.lastErr, id)
		return
	}

	var err error
	if status == StatusFailed {
		err = ErrModelDownloadFailed
		if cause != nil {
			err = errors.Join(ErrModelDownloadFailed, cause)
		}
		sm.lastErr[id] = err
	}

	for _, ch := range sm.pendingRequests[id] {
		ch <- err
		close(ch)
	}
	delete(sm.pendingRequests, id)
}

func (sm *SubscriptionManager) GetModelStatus(id types.PipelineID) DownloadStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.modelStatus[id]
}

// Subscribe returns a channel that yields once when id is ready (nil) or failed.
// The channel for an id with no recorded status stays pending until one is set.
func (sm *SubscriptionManager) Subscribe(id types.PipelineID) <-chan error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	resultChan := make(chan error, 1)

	switch sm.modelStatus[id] {
	case StatusReady:
		resultChan <- nil
		close(resultChan)
		return resultChan
	case StatusFailed:
		resultChan <- sm.lastErr[id]
		close(resultChan)
		return resultChan
	}

	sm.pendingRequests[id] = append(sm.pendingRequests[id], resultChan)
	return resultChan
}
