// Package history keeps a local archive of every successfully delivered
// scrobble in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scrobbled/internal/scrobble"
	_ "modernc.org/sqlite"
)

// Store is the archive of delivered scrobbles.
type Store struct {
	db *sql.DB
}

// Entry is one archived scrobble.
type Entry struct {
	Backend     string
	Track       scrobble.Track
	PlayedAt    time.Time
	Love        bool
	SubmittedAt time.Time
}

// Open creates or opens the archive at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS scrobbles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		backend TEXT NOT NULL,
		artist TEXT NOT NULL,
		title TEXT NOT NULL,
		album TEXT NOT NULL DEFAULT '',
		track_number TEXT NOT NULL DEFAULT '',
		mbid TEXT NOT NULL DEFAULT '',
		length_secs INTEGER NOT NULL DEFAULT 0,
		played_at INTEGER NOT NULL,
		love INTEGER NOT NULL DEFAULT 0,
		submitted_at INTEGER NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

// Record archives one delivered submission.
func (s *Store) Record(ctx context.Context, backend string, sub scrobble.Submission) error {
	love := 0
	if sub.Love {
		love = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrobbles (backend, artist, title, album, track_number, mbid, length_secs, played_at, love, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		backend, sub.Artist, sub.Title, sub.Album, sub.Number, sub.MusicBrainzID,
		int64(sub.Duration/time.Second), sub.Time.Unix(), love, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert scrobble: %w", err)
	}
	return nil
}

// Recent returns the most recently submitted entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT backend, artist, title, album, track_number, mbid, length_secs, played_at, love, submitted_at
		 FROM scrobbles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var lengthSecs, playedAt, love, submittedAt int64
		if err := rows.Scan(&e.Backend, &e.Track.Artist, &e.Track.Title,
			&e.Track.Album, &e.Track.Number, &e.Track.MusicBrainzID,
			&lengthSecs, &playedAt, &love, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Track.Duration = time.Duration(lengthSecs) * time.Second
		e.PlayedAt = time.Unix(playedAt, 0)
		e.Love = love == 1
		e.SubmittedAt = time.Unix(submittedAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
