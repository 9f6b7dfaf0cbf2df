package model_downloader

import (
	"bytes"
	"testing"
	"time"
)

func TestProgressBarsTrack(t *testing.T) {
	var out bytes.Buffer
	bars := NewProgressBars(&out)

	update, done := bars.Track("detection", 100)
	update(40, 100)
	update(40, 100)
	update(30, 100)
	update(100, 100)
	done(false)

	failed, abort := bars.Track("species", 0)
	failed(10, 0)
	abort(true)

	finished := make(chan struct{})
	go func() {
		bars.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("progress bars never finished")
	}
}
