// Package app wires the playback observer to the delivery engine and
// runs the daemon's coordination loop.
package app

import (
	"context"
	"log/slog"
	"time"

	"scrobbled/internal/mpd"
	"scrobbled/internal/scrobble"
	"scrobbled/internal/tags"
	"scrobbled/internal/watch"
)

// Delivery is the slice of the scrobble manager the instance needs.
type Delivery interface {
	NowPlaying(track scrobble.Track)
	SongChange(sub scrobble.Submission)
	SubmitNow()
	WriteJournal()
}

// Instance owns the playback observer and drives the journal timer. It
// implements watch.Listener.
type Instance struct {
	logger          *slog.Logger
	scrobblers      Delivery
	observer        *watch.Observer
	enricher        *tags.Enricher
	journalInterval time.Duration

	// startedAt is when the current song began playing; it becomes the
	// submission's capture timestamp.
	startedAt time.Time

	// now is a test seam.
	now func() time.Time
}

// New creates an instance. enricher may be nil.
func New(scrobblers Delivery, enricher *tags.Enricher, journalInterval time.Duration, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Instance{
		logger:          logger,
		scrobblers:      scrobblers,
		enricher:        enricher,
		journalInterval: journalInterval,
		now:             time.Now,
	}
	i.observer = watch.NewObserver(i, logger)
	return i
}

// Run consumes player snapshots until ctx is canceled. On shutdown the
// current song is flushed through the observer and every journal is
// written one final time.
func (i *Instance) Run(ctx context.Context, snapshots <-chan mpd.Snapshot) {
	ticker := time.NewTicker(i.journalInterval)
	defer ticker.Stop()

	submit := submitSignal()

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("shutting down")
			i.observer.Flush()
			i.scrobblers.WriteJournal()
			return
		case snap := <-snapshots:
			i.observer.Handle(i.convert(snap))
		case <-ticker.C:
			i.scrobblers.WriteJournal()
		case <-submit:
			i.logger.Info("submit signal received")
			i.scrobblers.SubmitNow()
		}
	}
}

// convert maps a player snapshot onto the observer's input, applying the
// album-artist fallback and optional tag enrichment.
func (i *Instance) convert(snap mpd.Snapshot) watch.Snapshot {
	out := watch.Snapshot{
		SongID:  snap.Status.SongID,
		Elapsed: snap.Status.Elapsed,
	}
	switch snap.Status.State {
	case mpd.StatePlay:
		out.State = watch.StatePlaying
	case mpd.StatePause:
		out.State = watch.StatePaused
	default:
		out.State = watch.StateStopped
	}

	if snap.Song != nil {
		artist := snap.Song.Artist
		if artist == "" {
			artist = snap.Song.AlbumArtist
		}
		track := scrobble.Track{
			Artist:        artist,
			Title:         snap.Song.Title,
			Album:         snap.Song.Album,
			Number:        snap.Song.Track,
			MusicBrainzID: snap.Song.MusicBrainzID,
			Duration:      snap.Song.Duration,
		}
		if i.enricher != nil {
			i.enricher.Enrich(&track, snap.Song.URI)
		}
		out.Song = &track
	}
	return out
}

// OnStarted announces the new song to every backend.
func (i *Instance) OnStarted(track scrobble.Track) {
	i.startedAt = i.now()
	i.logger.Info("new song detected",
		slog.String("artist", track.Artist), slog.String("title", track.Title))
	i.scrobblers.NowPlaying(track)
}

// OnPlaying is a progress tick.
func (i *Instance) OnPlaying(track scrobble.Track, elapsed time.Duration) {
	i.logger.Debug("playing",
		slog.String("title", track.Title), slog.Duration("elapsed", elapsed))
}

func (i *Instance) OnPaused() {
	i.logger.Debug("paused")
}

func (i *Instance) OnResumed() {
	i.logger.Debug("resumed")
}

// OnEnded queues a submission when the listen qualifies; everything else
// is silently dropped.
func (i *Instance) OnEnded(track scrobble.Track, elapsed time.Duration, love bool) {
	if !watch.PlayedLongEnough(elapsed, track.Duration) {
		i.logger.Debug("not played long enough",
			slog.String("title", track.Title), slog.Duration("elapsed", elapsed))
		return
	}
	if track.Artist == "" || track.Title == "" {
		i.logger.Warn("skipping submission with missing tags",
			slog.String("artist", track.Artist), slog.String("title", track.Title))
		return
	}
	if track.Duration == 0 {
		track.Duration = elapsed
	}

	when := i.startedAt
	if when.IsZero() {
		when = i.now()
	}
	i.scrobblers.SongChange(scrobble.Submission{
		Track: track,
		Time:  when,
		Love:  love,
	})
}
