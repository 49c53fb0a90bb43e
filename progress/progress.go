package progress

import (
	"sync"
)

// Sink receives job progress as whole percentages between 0 and 100.
type Sink interface {
	SetProgress(percent int)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(percent int)

func (f SinkFunc) SetProgress(percent int) {
	f(percent)
}

// Discard drops every update.
var Discard Sink = SinkFunc(func(int) {})

// Tracker converts processed file counts into percentages for a Sink. Updates never go
// backwards and never exceed 100.
type Tracker struct {
	sink      Sink
	total     int
	every     int
	processed int
	last      int
	lock      sync.Mutex
}

func NewTracker(sink Sink, total int) *Tracker {
	if sink == nil {
		sink = Discard
	}
	every := total / 100
	if every < 1 {
		every = 1
	}
	return &Tracker{
		sink:  sink,
		total: total,
		every: every,
		last:  -1,
	}
}

// FileDone records one processed file, reporting progress every 1% of files and on the last one.
func (t *Tracker) FileDone() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.processed++
	if t.processed%t.every == 0 || t.processed >= t.total {
		t.report(percentOf(t.processed, t.total))
	}
}

// Set reports an explicit percentage, subject to the same ordering rules.
func (t *Tracker) Set(percent int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.report(percent)
}

func (t *Tracker) Processed() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.processed
}

func (t *Tracker) report(percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent <= t.last {
		return
	}
	t.last = percent
	t.sink.SetProgress(percent)
}

func percentOf(processed int, total int) int {
	if total <= 0 {
		return 100
	}
	// Round half up without going through floats
	return (processed*200 + total) / (total * 2)
}
