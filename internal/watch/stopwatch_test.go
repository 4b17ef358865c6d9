package watch

import (
	"testing"
	"time"
)

// fakeClock steps time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStopwatchStartStop(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	sw := NewStopwatch()
	sw.now = clock.now

	if sw.Duration() != 0 {
		t.Errorf("expected zero duration before start, got %v", sw.Duration())
	}

	sw.Start()
	clock.advance(10 * time.Second)
	if sw.Duration() != 10*time.Second {
		t.Errorf("expected 10s running, got %v", sw.Duration())
	}

	sw.Stop()
	clock.advance(30 * time.Second)
	if sw.Duration() != 10*time.Second {
		t.Errorf("expected frozen 10s after stop, got %v", sw.Duration())
	}
}

func TestStopwatchResumeKeepsAccumulated(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	sw := NewStopwatch()
	sw.now = clock.now

	sw.Start()
	clock.advance(20 * time.Second)
	sw.Stop()
	clock.advance(time.Hour) // pause, does not count

	sw.Resume()
	clock.advance(5 * time.Second)
	if sw.Duration() != 25*time.Second {
		t.Errorf("expected 25s after resume, got %v", sw.Duration())
	}
}

func TestStopwatchStartResets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	sw := NewStopwatch()
	sw.now = clock.now

	sw.Start()
	clock.advance(time.Minute)
	sw.Start()
	clock.advance(2 * time.Second)
	if sw.Duration() != 2*time.Second {
		t.Errorf("expected restart to reset elapsed, got %v", sw.Duration())
	}
}

func TestStopwatchDoubleStopResume(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	sw := NewStopwatch()
	sw.now = clock.now

	sw.Start()
	clock.advance(3 * time.Second)
	sw.Stop()
	sw.Stop() // no-op
	sw.Resume()
	sw.Resume() // no-op
	clock.advance(3 * time.Second)
	if sw.Duration() != 6*time.Second {
		t.Errorf("expected 6s, got %v", sw.Duration())
	}
}
