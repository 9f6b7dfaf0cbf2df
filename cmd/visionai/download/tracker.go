package cmd

import (
	"io"
	"sync"

	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/services/model_downloader"
	"github.com/cozy-creator/vision-ai/internal/types"
)

// Tracker draws one progress bar per downloading model from app events.
type Tracker struct {
	mu   sync.Mutex
	bars *model_downloader.ProgressBars
	live map[types.PipelineID]tracked
}

type tracked struct {
	update model_downloader.ProgressFunc
	done   func(abort bool)
}

func NewTracker(out io.Writer) *Tracker {
	return &Tracker{
		bars: model_downloader.NewProgressBars(out),
		live: make(map[types.PipelineID]tracked),
	}
}

func (t *Tracker) Handle(ev app.Event) {
	if ev.Kind != app.EventDownload {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bar, ok := t.live[ev.Pipeline]
	if !ok {
		if ev.Done && ev.Err == nil && ev.State.Completed == 0 {
			return
		}
		update, done := t.bars.Track(string(ev.Pipeline), ev.State.Total)
		bar = tracked{update: update, done: done}
		t.live[ev.Pipeline] = bar
	}

	bar.update(ev.State.Completed, ev.State.Total)
	if ev.Done {
		bar.done(ev.Err != nil)
		delete(t.live, ev.Pipeline)
	}
}

// Wait blocks until every bar has finished drawing.
func (t *Tracker) Wait() {
	t.bars.Wait()
}
