// Package filesink implements a scrobbling backend that appends
// completed listens to a local file instead of a network service.
package filesink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"scrobbled/internal/journal"
	"scrobbled/internal/scrobble"
)

// Sink writes submissions as tab-separated lines. Writes happen
// synchronously on Enqueue; the journal only matters for entries
// buffered when a write failed or the process died first.
type Sink struct {
	name        string
	path        string
	journalPath string
	logger      *slog.Logger
	history     scrobble.Recorder

	mu    sync.Mutex
	queue *scrobble.Queue
}

// New creates a file-sink backend writing to path.
func New(name, path, journalPath string, queueLimit int, history scrobble.Recorder, logger *slog.Logger) *Sink {
	if queueLimit <= 0 {
		queueLimit = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		name:        name,
		path:        path,
		journalPath: journalPath,
		logger:      logger.With(slog.String("backend", name)),
		history:     history,
		queue:       scrobble.NewQueue(queueLimit),
	}
}

func (s *Sink) Name() string { return s.name }

// Start reloads the journal and flushes anything left over from a
// previous run. No delivery loop is needed; writes are synchronous.
func (s *Sink) Start(ctx context.Context) error {
	subs, err := journal.Load(s.journalPath, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.queue.Restore(subs)
	s.mu.Unlock()
	s.flush(ctx)
	return nil
}

// NowPlaying is a no-op for file sinks; only completed listens are
// recorded.
func (s *Sink) NowPlaying(track scrobble.Track) {}

// Enqueue buffers the submission and immediately flushes the queue to
// the output file.
func (s *Sink) Enqueue(sub scrobble.Submission) {
	s.mu.Lock()
	s.queue.Push(sub)
	s.mu.Unlock()
	s.flush(context.Background())
}

// SubmitNow flushes any buffered entries.
func (s *Sink) SubmitNow() {
	s.flush(context.Background())
}

// WriteJournal persists whatever is still buffered.
func (s *Sink) WriteJournal() error {
	s.mu.Lock()
	entries := s.queue.Entries()
	s.mu.Unlock()
	return journal.Save(s.journalPath, entries)
}

// PendingCount returns the number of buffered submissions.
func (s *Sink) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Sink) flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.queue.Entries()
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := s.append(batch); err != nil {
		s.logger.Error("write failed", slog.Any("err", err))
		return
	}

	s.mu.Lock()
	s.queue.Remove(batch)
	s.mu.Unlock()

	if s.history != nil {
		for _, sub := range batch {
			if err := s.history.Record(ctx, s.name, sub); err != nil {
				s.logger.Warn("history record failed", slog.Any("err", err))
			}
		}
	}
}

func (s *Sink) append(batch []scrobble.Submission) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create sink dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer f.Close()

	for _, sub := range batch {
		love := ""
		if sub.Love {
			love = "L"
		}
		_, err := fmt.Fprintf(f, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sub.Time.Format(time.RFC3339),
			sub.Artist,
			sub.Title,
			sub.Album,
			sub.Number,
			sub.MusicBrainzID,
			strconv.FormatInt(int64(sub.Duration/time.Second), 10),
			love)
		if err != nil {
			return fmt.Errorf("append sink: %w", err)
		}
	}
	return nil
}
