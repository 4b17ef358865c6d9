// Package mpd is a minimal MPD client. It polls the player for its
// status and current song and hands out timestamped snapshots; no other
// part of the protocol is implemented.
package mpd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"
)

// State is the player's coarse playback state.
type State int

const (
	StateStop State = iota
	StatePlay
	StatePause
)

// Song is the current song as reported by the player.
type Song struct {
	URI           string
	ID            int
	Artist        string
	AlbumArtist   string
	Title         string
	Album         string
	Track         string
	MusicBrainzID string
	Duration      time.Duration
}

// Status is the player state portion of a snapshot.
type Status struct {
	State   State
	Elapsed time.Duration
	SongID  int
}

// Snapshot is one observation of the player.
type Snapshot struct {
	Status Status
	Song   *Song
	At     time.Time
}

// Config configures the client.
type Config struct {
	Host         string
	Port         int
	Password     string
	PollInterval time.Duration
	Logger       *slog.Logger

	// Dial is a test seam.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Client polls one MPD server.
type Client struct {
	cfg  Config
	conn net.Conn
	r    *bufio.Reader
}

// New creates a client; no connection is made until Connect or Run.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Client{cfg: cfg}
}

// Connect dials the server, checks the protocol banner and
// authenticates when a password is configured.
func (c *Client) Connect(ctx context.Context) error {
	dial := c.cfg.Dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: 5 * time.Second}).DialContext
	}
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect mpd: %w", err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)

	banner, err := c.r.ReadString('\n')
	if err != nil {
		c.Close()
		return fmt.Errorf("read mpd banner: %w", err)
	}
	if !strings.HasPrefix(banner, "OK MPD") {
		c.Close()
		return fmt.Errorf("unexpected mpd banner: %q", strings.TrimSpace(banner))
	}

	if c.cfg.Password != "" {
		if _, err := c.command("password " + quote(c.cfg.Password)); err != nil {
			c.Close()
			return fmt.Errorf("mpd password: %w", err)
		}
	}
	return nil
}

// Close drops the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.r = nil
	}
}

// Poll fetches one snapshot.
func (c *Client) Poll() (Snapshot, error) {
	statusFields, err := c.command("status")
	if err != nil {
		return Snapshot{}, err
	}
	songFields, err := c.command("currentsong")
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Status: parseStatus(statusFields),
		Song:   parseSong(songFields),
		At:     time.Now(),
	}, nil
}

// Run polls the server on the configured interval and sends snapshots
// until ctx is canceled, reconnecting with capped backoff and jitter
// when the connection drops.
func (c *Client) Run(ctx context.Context, out chan<- Snapshot) {
	baseDelay := time.Second
	maxDelay := 30 * time.Second
	delay := baseDelay
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for ctx.Err() == nil {
		if err := c.Connect(ctx); err != nil {
			jitter := time.Duration(float64(delay) * 0.2 * rng.Float64())
			c.cfg.Logger.Warn("mpd connection failed",
				slog.Any("err", err), slog.Duration("retry_in", delay+jitter))
			if !sleep(ctx, delay+jitter) {
				return
			}
			delay = min(delay*2, maxDelay)
			continue
		}
		c.cfg.Logger.Info("connected to mpd",
			slog.String("host", c.cfg.Host), slog.Int("port", c.cfg.Port))
		delay = baseDelay

		for {
			snap, err := c.Poll()
			if err != nil {
				c.cfg.Logger.Warn("mpd poll failed", slog.Any("err", err))
				c.Close()
				break
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				c.Close()
				return
			}
			if !sleep(ctx, c.cfg.PollInterval) {
				c.Close()
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// command sends one command and collects the key/value response. An ACK
// line is returned as an error.
func (c *Client) command(cmd string) (map[string]string, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("mpd not connected")
	}
	if _, err := fmt.Fprintf(c.conn, "%s\n", cmd); err != nil {
		return nil, fmt.Errorf("send %q: %w", cmd, err)
	}

	fields := make(map[string]string)
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "OK" {
			return fields, nil
		}
		if strings.HasPrefix(line, "ACK ") {
			return nil, fmt.Errorf("mpd error: %s", strings.TrimPrefix(line, "ACK "))
		}
		if key, value, ok := strings.Cut(line, ": "); ok {
			// First value wins for repeated tags.
			if _, seen := fields[key]; !seen {
				fields[key] = value
			}
		}
	}
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func parseStatus(fields map[string]string) Status {
	st := Status{SongID: -1}
	switch fields["state"] {
	case "play":
		st.State = StatePlay
	case "pause":
		st.State = StatePause
	default:
		st.State = StateStop
	}
	if v, err := strconv.ParseFloat(fields["elapsed"], 64); err == nil {
		st.Elapsed = time.Duration(v * float64(time.Second))
	} else if t, ok := fields["time"]; ok {
		// Older servers report "elapsed:total" in whole seconds.
		if elapsed, _, ok := strings.Cut(t, ":"); ok {
			if secs, err := strconv.Atoi(elapsed); err == nil {
				st.Elapsed = time.Duration(secs) * time.Second
			}
		}
	}
	if v, err := strconv.Atoi(fields["songid"]); err == nil {
		st.SongID = v
	}
	return st
}

func parseSong(fields map[string]string) *Song {
	uri, ok := fields["file"]
	if !ok {
		return nil
	}
	song := &Song{
		URI:           uri,
		ID:            -1,
		Artist:        fields["Artist"],
		AlbumArtist:   fields["AlbumArtist"],
		Title:         fields["Title"],
		Album:         fields["Album"],
		Track:         fields["Track"],
		MusicBrainzID: fields["MUSICBRAINZ_TRACKID"],
	}
	if v, err := strconv.Atoi(fields["Id"]); err == nil {
		song.ID = v
	}
	if v, err := strconv.ParseFloat(fields["duration"], 64); err == nil {
		song.Duration = time.Duration(v * float64(time.Second))
	} else if v, err := strconv.Atoi(fields["Time"]); err == nil {
		song.Duration = time.Duration(v) * time.Second
	}
	return song
}
