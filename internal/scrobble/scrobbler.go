package scrobble

import (
	"context"
	"log/slog"
)

// Backend is one configured scrobbling destination. Implementations own
// their queue and journal file exclusively and run their own delivery
// loop; the manager only broadcasts into them.
type Backend interface {
	// Name returns the configured backend name, used in logs.
	Name() string

	// Start loads the backend's journal and launches its delivery loop.
	// The loop stops when ctx is canceled.
	Start(ctx context.Context) error

	// NowPlaying announces the current track. Fire and forget: the
	// notice is never queued or retried.
	NowPlaying(track Track)

	// Enqueue appends a completed listen to the backend's queue.
	Enqueue(sub Submission)

	// SubmitNow asks the backend to attempt delivery immediately,
	// skipping any backoff delay in progress.
	SubmitNow()

	// WriteJournal persists the current queue to the backend's journal.
	WriteJournal() error

	// PendingCount returns the number of submissions still queued.
	PendingCount() int
}

// Recorder archives successfully delivered submissions. Implemented by
// the history store; backends treat it as optional.
type Recorder interface {
	Record(ctx context.Context, backend string, sub Submission) error
}

// Manager fans playback events out to every configured backend. A
// failure in one backend never blocks or delays the others; backends are
// independent state machines sharing only this broadcast.
type Manager struct {
	logger   *slog.Logger
	backends []Backend
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Register adds a backend. All backends must be registered before Start.
func (m *Manager) Register(b Backend) {
	m.backends = append(m.backends, b)
}

// Backends returns the registered backends.
func (m *Manager) Backends() []Backend {
	out := make([]Backend, len(m.backends))
	copy(out, m.backends)
	return out
}

// Start starts every backend. A backend that fails to start (for
// example, an unreadable journal directory) is logged and skipped; the
// remaining backends run unaffected.
func (m *Manager) Start(ctx context.Context) {
	for _, b := range m.backends {
		if err := b.Start(ctx); err != nil {
			m.logger.Error("backend failed to start",
				slog.String("backend", b.Name()), slog.Any("err", err))
		}
	}
}

// NowPlaying broadcasts a now-playing notice to every backend.
func (m *Manager) NowPlaying(track Track) {
	for _, b := range m.backends {
		b.NowPlaying(track)
	}
}

// SongChange broadcasts a completed listen to every backend's queue.
func (m *Manager) SongChange(sub Submission) {
	m.logger.Info("queueing submission",
		slog.String("artist", sub.Artist), slog.String("title", sub.Title))
	for _, b := range m.backends {
		b.Enqueue(sub)
	}
}

// SubmitNow asks every backend to attempt delivery immediately.
func (m *Manager) SubmitNow() {
	for _, b := range m.backends {
		b.SubmitNow()
	}
}

// WriteJournal persists every backend's queue. Errors are logged per
// backend and do not stop the remaining journals from being written.
func (m *Manager) WriteJournal() {
	for _, b := range m.backends {
		if err := b.WriteJournal(); err != nil {
			m.logger.Error("write journal",
				slog.String("backend", b.Name()), slog.Any("err", err))
		}
	}
}

// PendingCount returns the total number of queued submissions across all
// backends.
func (m *Manager) PendingCount() int {
	total := 0
	for _, b := range m.backends {
		total += b.PendingCount()
	}
	return total
}
