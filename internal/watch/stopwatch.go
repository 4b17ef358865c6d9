package watch

import "time"

// Stopwatch measures how long the current song has actually been
// playing, surviving pause/resume without losing accumulated time.
type Stopwatch struct {
	running     bool
	startedAt   time.Time
	accumulated time.Duration

	// now is a test seam.
	now func() time.Time
}

// NewStopwatch returns a stopped stopwatch with zero elapsed time.
func NewStopwatch() *Stopwatch {
	return &Stopwatch{now: time.Now}
}

// Start resets elapsed time to zero and begins measuring.
func (s *Stopwatch) Start() {
	s.accumulated = 0
	s.startedAt = s.now()
	s.running = true
}

// Stop freezes the elapsed time, keeping what has accumulated so far.
func (s *Stopwatch) Stop() {
	if !s.running {
		return
	}
	s.accumulated += s.now().Sub(s.startedAt)
	s.running = false
}

// Resume continues measuring without resetting the accumulated time.
func (s *Stopwatch) Resume() {
	if s.running {
		return
	}
	s.startedAt = s.now()
	s.running = true
}

// Duration returns the elapsed playback time as of now.
func (s *Stopwatch) Duration() time.Duration {
	if s.running {
		return s.accumulated + s.now().Sub(s.startedAt)
	}
	return s.accumulated
}
