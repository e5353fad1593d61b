package rate

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCurrentFPS(t *testing.T) {
	tests := []struct {
		name    string
		frames  int
		elapsed time.Duration
		want    float64
	}{
		{"thirty frames in one second", 30, time.Second, 30},
		{"sixty frames in one second", 60, time.Second, 60},
		{"thirty frames in 1.5 seconds", 30, 1500 * time.Millisecond, 20},
		{"no frames", 0, 2 * time.Second, 0},
		{"window not closed", 30, 999 * time.Millisecond, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1000, 0)}
			tr := NewWithClock(clock.now)
			for range tt.frames {
				tr.RecordFrame()
			}
			clock.advance(tt.elapsed)

			got := tr.CurrentFPS()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCurrentFPSHoldsBetweenWindows(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr := NewWithClock(clock.now)

	for range 30 {
		tr.RecordFrame()
	}
	clock.advance(time.Second)
	if got := tr.CurrentFPS(); got != 30 {
		t.Fatalf("first window: got %v, want 30", got)
	}

	// New window has only run 500ms; the previous rate stays.
	for range 10 {
		tr.RecordFrame()
	}
	clock.advance(500 * time.Millisecond)
	if got := tr.CurrentFPS(); got != 30 {
		t.Errorf("mid window: got %v, want 30", got)
	}

	clock.advance(500 * time.Millisecond)
	if got := tr.CurrentFPS(); got != 10 {
		t.Errorf("second window: got %v, want 10", got)
	}
}

func TestReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr := NewWithClock(clock.now)
	for range 5 {
		tr.RecordFrame()
	}
	clock.advance(2 * time.Second)
	tr.CurrentFPS()

	tr.Reset()
	if got := tr.Total(); got != 0 {
		t.Errorf("Total after reset = %d, want 0", got)
	}
	if got := tr.CurrentFPS(); got != 0 {
		t.Errorf("CurrentFPS after reset = %v, want 0", got)
	}
}

func TestLastFPSLeavesWindowOpen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr := NewWithClock(clock.now)

	for range 20 {
		tr.RecordFrame()
	}
	clock.advance(time.Second)
	if got := tr.LastFPS(); got != 0 {
		t.Errorf("LastFPS before any window closed = %v, want 0", got)
	}
	// The window LastFPS looked at is still counted by CurrentFPS.
	if got := tr.CurrentFPS(); got != 20 {
		t.Errorf("CurrentFPS = %v, want 20", got)
	}
	if got := tr.LastFPS(); got != 20 {
		t.Errorf("LastFPS = %v, want 20", got)
	}
	if got := tr.Total(); got != 20 {
		t.Errorf("Total = %d, want 20", got)
	}
}
