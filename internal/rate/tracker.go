// Package rate measures frame throughput over rolling one-second windows.
package rate

import (
	"sync"
	"time"
)

// Window is the minimum span a rate is computed over.
const Window = time.Second

// Tracker counts frames and reports frames per second. The rate is only
// recomputed once at least Window has passed since the window started;
// between recomputations the last value is returned unchanged.
type Tracker struct {
	mu          sync.Mutex
	now         func() time.Time
	windowStart time.Time
	frames      int64
	total       int64
	fps         float64
}

// New creates a tracker using the wall clock.
func New() *Tracker {
	return NewWithClock(time.Now)
}

// NewWithClock creates a tracker that reads time from now.
func NewWithClock(now func() time.Time) *Tracker {
	return &Tracker{now: now, windowStart: now()}
}

// RecordFrame counts one frame in the current window.
func (t *Tracker) RecordFrame() {
	t.mu.Lock()
	t.frames++
	t.total++
	t.mu.Unlock()
}

// CurrentFPS returns the frame rate of the last completed window, closing
// the current window first if it has run for at least Window.
func (t *Tracker) CurrentFPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	elapsedMs := now.Sub(t.windowStart).Milliseconds()
	if elapsedMs >= Window.Milliseconds() {
		t.fps = float64(t.frames) * 1000 / float64(elapsedMs)
		t.frames = 0
		t.windowStart = now
	}
	return t.fps
}

// LastFPS returns the rate of the last completed window without closing the
// current one.
func (t *Tracker) LastFPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fps
}

// Total returns the number of frames recorded since creation or the last Reset.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Reset clears all counters and starts a new window.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = 0
	t.total = 0
	t.fps = 0
	t.windowStart = t.now()
}
