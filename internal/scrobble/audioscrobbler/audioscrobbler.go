// Package audioscrobbler implements the Audioscrobbler 1.2 submission
// protocol: a credentials handshake yielding a session token, a
// lightweight now-playing request, and batched submissions with
// exponential backoff between failed attempts.
package audioscrobbler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"scrobbled/internal/journal"
	"scrobbled/internal/scrobble"
)

const (
	protocolVersion = "1.2"

	// The protocol caps one submission request at 50 tracks.
	maxBatch = 50

	// How long the delivery loop sleeps when there is nothing to do.
	// Enqueue and SubmitNow wake it earlier.
	idleInterval = 5 * time.Minute

	requestTimeout = 30 * time.Second
)

// Config holds one network backend's configuration. Fields left zero
// fall back to the defaults documented on each field.
type Config struct {
	Name        string
	URL         string // handshake endpoint
	Username    string
	Password    string
	JournalPath string

	QueueLimit  int           // default 50
	BatchSize   int           // default 32, capped at the protocol's 50
	BackoffBase time.Duration // default 30s
	BackoffMax  time.Duration // default 8m

	ClientID      string // default "sbd"
	ClientVersion string // default "1.0"
}

// Scrobbler is one network scrobbling backend. It owns its queue and
// journal exclusively; the delivery loop is the only writer once
// started, external calls only append or snapshot under the mutex.
type Scrobbler struct {
	cfg     Config
	logger  *slog.Logger
	client  *http.Client
	history scrobble.Recorder

	mu            sync.Mutex
	queue         *scrobble.Queue
	session       string
	nowPlayingURL string
	submitURL     string
	backoff       time.Duration
	fatal         error

	wake chan struct{}

	// now is a test seam for the handshake timestamp.
	now func() time.Time
}

// New creates a network backend. client may carry a proxy-aware
// transport; nil uses a default client. history is optional.
func New(cfg Config, client *http.Client, history scrobble.Recorder, logger *slog.Logger) *Scrobbler {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.BatchSize > maxBatch {
		cfg.BatchSize = maxBatch
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Minute
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sbd"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "1.0"
	}
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scrobbler{
		cfg:     cfg,
		logger:  logger.With(slog.String("backend", cfg.Name)),
		client:  client,
		history: history,
		queue:   scrobble.NewQueue(cfg.QueueLimit),
		backoff: cfg.BackoffBase,
		wake:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

func (s *Scrobbler) Name() string { return s.cfg.Name }

// Start reloads the journal and launches the delivery loop.
func (s *Scrobbler) Start(ctx context.Context) error {
	subs, err := journal.Load(s.cfg.JournalPath, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.queue.Restore(subs)
	pending := s.queue.Len()
	s.mu.Unlock()
	if pending > 0 {
		s.logger.Info("reloaded journal", slog.Int("pending", pending))
	}
	go s.run(ctx)
	return nil
}

// Enqueue appends a completed listen and wakes the delivery loop.
func (s *Scrobbler) Enqueue(sub scrobble.Submission) {
	s.mu.Lock()
	added := s.queue.Push(sub)
	s.mu.Unlock()
	if added {
		s.nudge()
	}
}

// SubmitNow skips any backoff delay in progress and attempts delivery
// immediately.
func (s *Scrobbler) SubmitNow() {
	s.mu.Lock()
	s.backoff = s.cfg.BackoffBase
	s.mu.Unlock()
	s.nudge()
}

// WriteJournal persists the current queue to the journal file.
func (s *Scrobbler) WriteJournal() error {
	s.mu.Lock()
	entries := s.queue.Entries()
	s.mu.Unlock()
	return journal.Save(s.cfg.JournalPath, entries)
}

// PendingCount returns the number of submissions still queued.
func (s *Scrobbler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// NowPlaying sends the notice asynchronously. It is never queued or
// retried; without a session it is simply dropped.
func (s *Scrobbler) NowPlaying(track scrobble.Track) {
	s.mu.Lock()
	session, npURL := s.session, s.nowPlayingURL
	disabled := s.fatal != nil
	s.mu.Unlock()
	if disabled || session == "" {
		return
	}

	form := url.Values{}
	form.Set("s", session)
	form.Set("a", track.Artist)
	form.Set("t", track.Title)
	form.Set("b", track.Album)
	form.Set("n", track.Number)
	form.Set("m", track.MusicBrainzID)
	if track.Duration > 0 {
		form.Set("l", strconv.FormatInt(int64(track.Duration/time.Second), 10))
	} else {
		form.Set("l", "")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		status, err := s.post(ctx, npURL, form)
		if err != nil {
			s.logger.Debug("now-playing failed", slog.Any("err", err))
			return
		}
		if status != "OK" {
			s.logger.Debug("now-playing rejected", slog.String("response", status))
		}
	}()
}

func (s *Scrobbler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scrobbler) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		delay, stop := s.step(ctx)
		if stop {
			return
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// step performs one protocol action and returns how long to wait before
// the next one. stop is true once the backend is permanently disabled.
func (s *Scrobbler) step(ctx context.Context) (delay time.Duration, stop bool) {
	s.mu.Lock()
	session := s.session
	pending := s.queue.Len()
	disabled := s.fatal != nil
	s.mu.Unlock()

	if disabled {
		return 0, true
	}

	if session == "" {
		err := s.Handshake(ctx)
		switch {
		case err == nil:
			return 0, false
		case errors.Is(err, scrobble.ErrBadAuth), errors.Is(err, scrobble.ErrBanned):
			s.mu.Lock()
			s.fatal = err
			s.mu.Unlock()
			s.logger.Error("backend disabled", slog.Any("err", err))
			return 0, true
		default:
			d := s.failureDelay()
			s.logger.Warn("handshake failed",
				slog.Any("err", err), slog.Duration("retry_in", d))
			return d, false
		}
	}

	if pending == 0 {
		return idleInterval, false
	}

	err := s.SubmitBatch(ctx)
	switch {
	case err == nil:
		// More entries may remain beyond the batch size.
		return 0, false
	case errors.Is(err, scrobble.ErrBadSession):
		s.logger.Info("session expired, re-handshaking")
		return 0, false
	default:
		d := s.failureDelay()
		s.logger.Warn("submission failed",
			slog.Any("err", err), slog.Duration("retry_in", d))
		return d, false
	}
}

// failureDelay returns the current backoff delay and doubles it for the
// next consecutive failure, up to the configured cap.
func (s *Scrobbler) failureDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.backoff
	s.backoff = nextBackoff(s.backoff, s.cfg.BackoffMax)
	return d
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		cur = max
	}
	return cur
}

// Handshake establishes a session token. On success the backoff delay
// resets to its base value.
func (s *Scrobbler) Handshake(ctx context.Context) error {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("handshake url: %w", err)
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)
	q := u.Query()
	q.Set("hs", "true")
	q.Set("p", protocolVersion)
	q.Set("c", s.cfg.ClientID)
	q.Set("v", s.cfg.ClientVersion)
	q.Set("u", s.cfg.Username)
	q.Set("t", ts)
	q.Set("a", md5hex(md5hex(s.cfg.Password)+ts))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	lines, err := readLines(resp.Body)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: empty handshake response", scrobble.ErrHardFailure)
	}

	switch {
	case lines[0] == "OK":
		if len(lines) < 4 {
			return fmt.Errorf("%w: truncated handshake response", scrobble.ErrHardFailure)
		}
		s.mu.Lock()
		s.session = lines[1]
		s.nowPlayingURL = lines[2]
		s.submitURL = lines[3]
		s.backoff = s.cfg.BackoffBase
		s.mu.Unlock()
		s.logger.Info("handshake successful")
		return nil
	case lines[0] == "BADAUTH":
		return scrobble.ErrBadAuth
	case lines[0] == "BANNED":
		return scrobble.ErrBanned
	case lines[0] == "BADTIME":
		return fmt.Errorf("%w: service rejected timestamp, check the system clock", scrobble.ErrHardFailure)
	default:
		return fmt.Errorf("%w: %s", scrobble.ErrHardFailure, lines[0])
	}
}

// SubmitBatch attempts to deliver the oldest queued submissions, at most
// one batch worth. Accepted entries are removed from the queue and
// recorded in the history archive.
func (s *Scrobbler) SubmitBatch(ctx context.Context) error {
	s.mu.Lock()
	session, submitURL := s.session, s.submitURL
	batch := s.queue.Batch(s.cfg.BatchSize)
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	form := url.Values{}
	form.Set("s", session)
	for i, sub := range batch {
		idx := strconv.Itoa(i)
		form.Set("a["+idx+"]", sub.Artist)
		form.Set("t["+idx+"]", sub.Title)
		form.Set("i["+idx+"]", strconv.FormatInt(sub.Time.Unix(), 10))
		form.Set("o["+idx+"]", "P")
		love := ""
		if sub.Love {
			love = "L"
		}
		form.Set("r["+idx+"]", love)
		form.Set("l["+idx+"]", strconv.FormatInt(int64(sub.Duration/time.Second), 10))
		form.Set("b["+idx+"]", sub.Album)
		form.Set("n["+idx+"]", sub.Number)
		form.Set("m["+idx+"]", sub.MusicBrainzID)
	}

	status, err := s.post(ctx, submitURL, form)
	if err != nil {
		return err
	}

	switch {
	case status == "OK":
		s.mu.Lock()
		s.queue.Remove(batch)
		s.backoff = s.cfg.BackoffBase
		remaining := s.queue.Len()
		s.mu.Unlock()
		s.logger.Info("submitted",
			slog.Int("count", len(batch)), slog.Int("remaining", remaining))
		s.record(ctx, batch)
		return nil
	case status == "BADSESSION":
		s.mu.Lock()
		s.session = ""
		s.mu.Unlock()
		return scrobble.ErrBadSession
	default:
		return fmt.Errorf("%w: %s", scrobble.ErrHardFailure, status)
	}
}

func (s *Scrobbler) record(ctx context.Context, batch []scrobble.Submission) {
	if s.history == nil {
		return
	}
	for _, sub := range batch {
		if err := s.history.Record(ctx, s.cfg.Name, sub); err != nil {
			s.logger.Warn("history record failed", slog.Any("err", err))
		}
	}
}

// post sends a form and returns the first line of the response body.
func (s *Scrobbler) post(ctx context.Context, target string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %s", scrobble.ErrHardFailure, resp.Status)
	}
	lines, err := readLines(resp.Body)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: empty response", scrobble.ErrHardFailure)
	}
	return lines[0], nil
}

func readLines(r io.Reader) ([]string, error) {
	body, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(body), "\n") {
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return lines, nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
