// Package tags fills in metadata the player did not report by reading
// the audio file's own tags. Only songs stored below the configured
// music directory can be enriched.
package tags

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"scrobbled/internal/scrobble"
)

// Enricher reads tags from local audio files.
type Enricher struct {
	musicDir string
	logger   *slog.Logger
}

// New creates an enricher rooted at musicDir. An empty musicDir disables
// enrichment.
func New(musicDir string, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{musicDir: musicDir, logger: logger}
}

// Enabled reports whether a music directory is configured.
func (e *Enricher) Enabled() bool { return e.musicDir != "" }

// Enrich fills empty fields of track from the tags of the file at the
// player-reported uri. Fields the player already reported are never
// overwritten. Remote URIs and files outside the music directory are
// ignored.
func (e *Enricher) Enrich(track *scrobble.Track, uri string) {
	if !e.Enabled() || uri == "" || strings.Contains(uri, "://") {
		return
	}
	path := filepath.Join(e.musicDir, filepath.FromSlash(uri))

	f, err := os.Open(path)
	if err != nil {
		e.logger.Debug("cannot open song file for tag enrichment",
			slog.String("path", path), slog.Any("err", err))
		return
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		e.logger.Debug("cannot read tags",
			slog.String("path", path), slog.Any("err", err))
		return
	}

	if track.Artist == "" {
		track.Artist = meta.Artist()
	}
	if track.Title == "" {
		track.Title = meta.Title()
	}
	if track.Album == "" {
		track.Album = meta.Album()
	}
	if track.Number == "" {
		if n, _ := meta.Track(); n > 0 {
			track.Number = strconv.Itoa(n)
		}
	}
}
