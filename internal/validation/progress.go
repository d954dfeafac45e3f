package validation

import (
	"time"
)

// Progress is one snapshot of per-record validation throughput
type Progress struct {
	Processed  int           `json:"processed"`
	Total      int           `json:"total"`
	Elapsed    time.Duration `json:"elapsed"`
	Throughput float64       `json:"throughput"` // Records per second
	ETA        time.Duration `json:"eta"`        // Linear extrapolation to completion
}

// ProgressFunc receives progress snapshots
type ProgressFunc func(p Progress)

// Tracker emits progress at a bounded frequency so reporting overhead stays
// negligible on small batches. The final snapshot is always emitted.
type Tracker struct {
	total     int
	interval  time.Duration
	emit      ProgressFunc
	processed int
	started   time.Time
	lastEmit  time.Time
}

// NewTracker creates a tracker over total records, emitting at most once per
// interval
func NewTracker(total int, interval time.Duration, emit ProgressFunc) *Tracker {
	now := time.Now()
	return &Tracker{
		total:    total,
		interval: interval,
		emit:     emit,
		started:  now,
		lastEmit: now,
	}
}

// Increment marks one record processed
func (t *Tracker) Increment() {
	t.processed++
	if t.emit == nil {
		return
	}
	now := time.Now()
	if now.Sub(t.lastEmit) < t.interval {
		return
	}
	t.lastEmit = now
	t.emit(t.snapshot(now))
}

// Finish emits the final snapshot
func (t *Tracker) Finish() {
	if t.emit != nil {
		t.emit(t.snapshot(time.Now()))
	}
}

func (t *Tracker) snapshot(now time.Time) Progress {
	elapsed := now.Sub(t.started)
	p := Progress{
		Processed: t.processed,
		Total:     t.total,
		Elapsed:   elapsed,
	}
	if elapsed > 0 {
		p.Throughput = float64(t.processed) / elapsed.Seconds()
	}
	if t.processed > 0 && t.processed < t.total {
		remaining := float64(elapsed) / float64(t.processed) * float64(t.total-t.processed)
		p.ETA = time.Duration(remaining)
	}
	return p
}
