package model_downloader

import (
	"io"
	"time"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

// ProgressBars renders download progress for the CLI.
type ProgressBars struct {
	progress *mpb.Progress
}

func NewProgressBars(out io.Writer) *ProgressBars {
	return &ProgressBars{
		progress: mpb.New(
			mpb.WithOutput(out),
			mpb.WithWidth(60),
			mpb.WithRefreshRate(180*time.Millisecond),
		),
	}
}

// Track adds a bar named name and returns a ProgressFunc driving it, and a
// func that finishes the bar. abort is true when the download failed.
func (p *ProgressBars) Track(name string, sizeHint int64) (ProgressFunc, func(abort bool)) {
	bar := p.progress.AddBar(sizeHint,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	var prev int64
	last := time.Now()
	update := func(completed, total int64) {
		if total > 0 {
			bar.SetTotal(total, false)
		}
		if completed <= prev {
			return
		}

		now := time.Now()
		bar.IncrInt64(completed - prev)
		// EWMA decorators need an increment before each update
		bar.DecoratorEwmaUpdate(now.Sub(last))
		prev, last = completed, now
	}

	done := func(abort bool) {
		if abort {
			bar.Abort(false)
			return
		}
		bar.SetTotal(-1, true)
	}

	return update, done
}

// Wait blocks until every tracked bar has completed or aborted.
func (p *ProgressBars) Wait() {
	p.progress.Wait()
}
