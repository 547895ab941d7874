// Package progress carries percent-complete events for one long-running
// operation from the code doing the work to whoever renders it.
package progress

import "sync"

type Event struct {
	Stage   string
	Percent int
}

// Func receives a 0-100 percentage. A nil Func discards reports.
type Func func(percent int)

func (f Func) Report(percent int) {
	if f != nil {
		f(percent)
	}
}

// Tracker emits a single ordered event stream per operation. Percentages
// never go backwards, even when stages overlap or a collaborator reports
// out of order.
type Tracker struct {
	mu     sync.Mutex
	ch     chan Event
	last   int
	closed bool
}

func NewTracker(buffer int) *Tracker {
	if buffer < 1 {
		buffer = 1
	}
	return &Tracker{ch: make(chan Event, buffer), last: -1}
}

func (t *Tracker) Events() <-chan Event {
	return t.ch
}

// Stage returns a Func that maps a collaborator's 0-100 onto [lo, hi] of
// the overall operation.
func (t *Tracker) Stage(name string, lo, hi int) Func {
	return func(percent int) {
		t.Emit(name, lo+(hi-lo)*clamp(percent)/100)
	}
}

func (t *Tracker) Emit(stage string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	percent = clamp(percent)
	if percent < t.last {
		percent = t.last
	}
	t.last = percent
	t.ch <- Event{Stage: stage, Percent: percent}
}

func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	close(t.ch)
}

func clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return percent
}
