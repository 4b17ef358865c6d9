package scrobble

import (
	"errors"
	"time"
)

var (
	// ErrBadAuth means the service rejected the configured credentials.
	ErrBadAuth = errors.New("authentication rejected")
	// ErrBanned means the service refuses this client permanently.
	ErrBanned = errors.New("client banned")
	// ErrBadSession means the session token is no longer valid and a new
	// handshake is required.
	ErrBadSession = errors.New("session invalid")
	// ErrHardFailure marks a response classified as a transient
	// service-side failure.
	ErrHardFailure = errors.New("service failure")
)

// Track describes one song as reported by the player. Immutable once
// captured from a status snapshot.
type Track struct {
	Artist        string
	Title         string
	Album         string
	Number        string
	MusicBrainzID string
	Duration      time.Duration
}

// Submission is a completed listen waiting for delivery. The track length
// is carried in Track.Duration; when the player did not report a length
// the tracker substitutes the measured elapsed time before queueing.
type Submission struct {
	Track
	Time time.Time
	Love bool
}
