// Package watch turns the raw stream of player status snapshots into
// discrete playback lifecycle events.
package watch

import (
	"log/slog"
	"time"

	"scrobbled/internal/scrobble"
)

// PlayState is the player's coarse state in a snapshot.
type PlayState int

const (
	StateStopped PlayState = iota
	StatePlaying
	StatePaused
)

// Snapshot is one observation of the player, captured at a point in
// time. Song is nil when nothing is loaded.
type Snapshot struct {
	Song    *scrobble.Track
	SongID  int
	Elapsed time.Duration
	State   PlayState
}

// Listener receives playback lifecycle events derived from the snapshot
// stream. OnEnded reports the elapsed playback time measured by the
// observer's stopwatch; deciding whether the listen qualifies for
// submission is the listener's business (see PlayedLongEnough).
type Listener interface {
	OnStarted(track scrobble.Track)
	OnPlaying(track scrobble.Track, elapsed time.Duration)
	OnPaused()
	OnResumed()
	OnEnded(track scrobble.Track, elapsed time.Duration, love bool)
}

// PlayedLongEnough implements the submission rule: a listen qualifies
// after 4 minutes of playback, or after half the track's length when the
// track is at least 30 seconds long. Tracks of unknown length only
// qualify via the absolute threshold.
//
// https://www.last.fm/api/scrobbling: "The track must have been played
// for a duration of at least 240 seconds or half the track's total
// length, whichever comes first."
func PlayedLongEnough(elapsed, length time.Duration) bool {
	return elapsed > 4*time.Minute ||
		(length >= 30*time.Second && elapsed > length/2)
}

// songRepeated detects a song silently restarting: the player still
// reports the same song, but its elapsed time dropped back near zero,
// and the drop spans enough playback to have counted as a full listen.
func songRepeated(elapsed, prevElapsed, length time.Duration) bool {
	return elapsed < time.Minute && prevElapsed > elapsed &&
		PlayedLongEnough(prevElapsed-elapsed, length)
}

// Observer is the playback state machine. It consumes snapshots, drives
// the stopwatch, and emits lifecycle events on the listener.
type Observer struct {
	listener  Listener
	logger    *slog.Logger
	stopwatch *Stopwatch

	current     *scrobble.Track
	currentID   int
	paused      bool
	lastElapsed time.Duration
}

// NewObserver creates an observer delivering events to listener.
func NewObserver(listener Listener, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		listener:  listener,
		logger:    logger,
		stopwatch: NewStopwatch(),
	}
}

// Handle processes one status snapshot. Snapshots must arrive in real
// time order.
func (o *Observer) Handle(snap Snapshot) {
	if o.current == nil {
		if snap.State == StatePlaying && snap.Song != nil {
			o.start(snap)
		}
		return
	}

	if snap.Song == nil || snap.State == StateStopped || snap.SongID != o.currentID {
		o.end(false)
		if snap.State == StatePlaying && snap.Song != nil {
			o.start(snap)
		}
		return
	}

	if o.paused {
		if snap.State == StatePlaying {
			o.paused = false
			o.stopwatch.Resume()
			o.listener.OnResumed()
		}
		return
	}

	if snap.State == StatePaused {
		o.paused = true
		o.stopwatch.Stop()
		o.listener.OnPaused()
		return
	}

	// Progress tick on the same song. An elapsed value that fell back
	// near zero after a full listen means the song restarted without the
	// player announcing a change.
	if songRepeated(snap.Elapsed, o.lastElapsed, o.current.Duration) {
		o.logger.Debug("repeated song detected",
			slog.String("artist", o.current.Artist),
			slog.String("title", o.current.Title))
		o.end(false)
		o.start(snap)
		return
	}

	o.lastElapsed = snap.Elapsed
	o.listener.OnPlaying(*o.current, snap.Elapsed)
}

func (o *Observer) start(snap Snapshot) {
	track := *snap.Song
	o.current = &track
	o.currentID = snap.SongID
	o.paused = snap.State == StatePaused
	o.lastElapsed = snap.Elapsed
	o.stopwatch.Start()
	o.listener.OnStarted(track)
}

func (o *Observer) end(love bool) {
	track := *o.current
	elapsed := o.stopwatch.Duration()
	o.current = nil
	o.paused = false
	o.lastElapsed = 0
	o.listener.OnEnded(track, elapsed, love)
}

// Flush ends the current song, if any, as if playback had stopped. Used
// during shutdown so a listen in progress still gets its chance to
// qualify.
func (o *Observer) Flush() {
	if o.current != nil {
		o.end(false)
	}
}
