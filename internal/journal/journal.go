// Package journal persists a backend's pending submissions across
// restarts. Each journal is a plain text file with one JSON record per
// line, replaced atomically on every save so a crash can never leave a
// truncated file behind.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"scrobbled/internal/scrobble"
)

type record struct {
	Artist        string `json:"artist"`
	Title         string `json:"title"`
	Album         string `json:"album,omitempty"`
	Number        string `json:"number,omitempty"`
	MusicBrainzID string `json:"mbid,omitempty"`
	Length        int64  `json:"length"`
	Time          int64  `json:"time"`
	Love          bool   `json:"love,omitempty"`
}

// Save writes the submissions to path, one record per line. The file is
// written to a temporary sibling first and then renamed into place.
func Save(path string, subs []scrobble.Submission) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, sub := range subs {
		rec := record{
			Artist:        sub.Artist,
			Title:         sub.Title,
			Album:         sub.Album,
			Number:        sub.Number,
			MusicBrainzID: sub.MusicBrainzID,
			Length:        int64(sub.Duration / time.Second),
			Time:          sub.Time.Unix(),
			Love:          sub.Love,
		}
		line, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("marshal journal record: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync journal: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close journal: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace journal: %w", err)
	}
	return nil
}

// Load reads the submissions stored at path. A missing file yields an
// empty queue. Malformed lines are logged and skipped so one bad record
// cannot block the rest of the journal from loading.
func Load(path string, logger *slog.Logger) ([]scrobble.Submission, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var subs []scrobble.Submission
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("skipping malformed journal record",
				slog.String("journal", path), slog.Int("line", lineno))
			continue
		}
		if rec.Artist == "" || rec.Title == "" {
			logger.Warn("skipping incomplete journal record",
				slog.String("journal", path), slog.Int("line", lineno))
			continue
		}
		subs = append(subs, scrobble.Submission{
			Track: scrobble.Track{
				Artist:        rec.Artist,
				Title:         rec.Title,
				Album:         rec.Album,
				Number:        rec.Number,
				MusicBrainzID: rec.MusicBrainzID,
				Duration:      time.Duration(rec.Length) * time.Second,
			},
			Time: time.Unix(rec.Time, 0),
			Love: rec.Love,
		})
	}
	if err := scanner.Err(); err != nil {
		return subs, fmt.Errorf("read journal: %w", err)
	}
	return subs, nil
}
