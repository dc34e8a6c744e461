package extract

import (
	"context"
	"sync/atomic"
	"time"
)

// Worker keeps the most recent days extracted in the background so that
// network fetches run off the interactive path.
type Worker struct {
	extractor *Extractor
	interval  time.Duration
	days      int

	done  atomic.Int64
	total atomic.Int64
	runs  atomic.Int64
}

// NewWorker creates a Worker refreshing the last days UTC days every
// interval.
func NewWorker(extractor *Extractor, interval time.Duration, days int) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if days <= 0 {
		days = 1
	}
	return &Worker{extractor: extractor, interval: interval, days: days}
}

// Progress returns the number of days extracted and the number of stale
// days found by the current or last refresh.
func (w *Worker) Progress() (done, total int) {
	return int(w.done.Load()), int(w.total.Load())
}

// Runs returns how many refreshes have completed.
func (w *Worker) Runs() int {
	return int(w.runs.Load())
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.RefreshOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.extractor.logger.Warn("extract worker: refresh failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RefreshOnce extracts the stale days among the last w.days days.
func (w *Worker) RefreshOnce(ctx context.Context) error {
	now := w.extractor.now()
	from := dayStart(now).Add(-time.Duration(w.days-1) * day)

	stale, err := w.extractor.StaleDays(ctx, from, now)
	if err != nil {
		return err
	}

	w.total.Store(int64(len(stale)))
	w.done.Store(0)
	defer w.runs.Add(1)

	if len(stale) == 0 {
		return nil
	}

	rs, err := w.extractor.engine.Compile(ctx)
	if err != nil {
		return err
	}
	for _, d := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.extractor.ExtractDay(ctx, rs, d); err != nil {
			return err
		}
		w.done.Add(1)
	}
	return nil
}
