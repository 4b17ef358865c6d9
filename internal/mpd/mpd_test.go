package mpd

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	st := parseStatus(map[string]string{
		"state":   "play",
		"elapsed": "123.456",
		"songid":  "17",
	})
	if st.State != StatePlay {
		t.Errorf("expected playing state, got %v", st.State)
	}
	if st.SongID != 17 {
		t.Errorf("expected songid 17, got %d", st.SongID)
	}
	want := time.Duration(123.456 * float64(time.Second))
	if st.Elapsed != want {
		t.Errorf("expected elapsed %v, got %v", want, st.Elapsed)
	}
}

func TestParseStatusLegacyTimeField(t *testing.T) {
	st := parseStatus(map[string]string{
		"state": "pause",
		"time":  "42:300",
	})
	if st.State != StatePause {
		t.Errorf("expected paused state, got %v", st.State)
	}
	if st.Elapsed != 42*time.Second {
		t.Errorf("expected 42s elapsed, got %v", st.Elapsed)
	}
}

func TestParseStatusStopped(t *testing.T) {
	st := parseStatus(map[string]string{"state": "stop"})
	if st.State != StateStop {
		t.Errorf("expected stopped state, got %v", st.State)
	}
	if st.SongID != -1 {
		t.Errorf("expected songid -1 when absent, got %d", st.SongID)
	}
}

func TestParseSong(t *testing.T) {
	song := parseSong(map[string]string{
		"file":                "music/artist/album/03 song.flac",
		"Artist":              "Artist",
		"Title":               "Song",
		"Album":               "Album",
		"Track":               "3",
		"Id":                  "17",
		"duration":            "200.5",
		"MUSICBRAINZ_TRACKID": "mbid-1234",
	})
	if song == nil {
		t.Fatal("expected song")
	}
	if song.Artist != "Artist" || song.Title != "Song" || song.Track != "3" {
		t.Errorf("tags not parsed: %+v", song)
	}
	if song.ID != 17 {
		t.Errorf("expected id 17, got %d", song.ID)
	}
	if song.Duration != time.Duration(200.5*float64(time.Second)) {
		t.Errorf("unexpected duration: %v", song.Duration)
	}
	if song.MusicBrainzID != "mbid-1234" {
		t.Errorf("mbid not parsed: %q", song.MusicBrainzID)
	}
}

func TestParseSongEmpty(t *testing.T) {
	if song := parseSong(map[string]string{}); song != nil {
		t.Errorf("expected nil song for empty response, got %+v", song)
	}
}

// fakeServer speaks just enough of the MPD protocol for one client.
func fakeServer(t *testing.T, wantPassword string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("OK MPD 0.23.5\n"))

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(cmd, "password "):
				if wantPassword != "" && !strings.Contains(cmd, wantPassword) {
					conn.Write([]byte("ACK [3@0] {password} incorrect password\n"))
					continue
				}
				conn.Write([]byte("OK\n"))
			case cmd == "status":
				conn.Write([]byte("state: play\nelapsed: 63.2\nsongid: 5\nOK\n"))
			case cmd == "currentsong":
				conn.Write([]byte("file: a/b.flac\nArtist: Artist\nTitle: Song\nAlbum: Album\nTrack: 1\nId: 5\nduration: 180.0\nOK\n"))
			default:
				conn.Write([]byte("OK\n"))
			}
		}
	}()
	return ln.Addr().String()
}

func TestConnectAndPoll(t *testing.T) {
	addr := fakeServer(t, "hunter2")
	host, port := splitAddr(t, addr)

	c := New(Config{Host: host, Port: port, Password: "hunter2"})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	snap, err := c.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if snap.Status.State != StatePlay {
		t.Errorf("expected playing, got %v", snap.Status.State)
	}
	if snap.Status.SongID != 5 {
		t.Errorf("expected songid 5, got %d", snap.Status.SongID)
	}
	if snap.Song == nil || snap.Song.Title != "Song" {
		t.Fatalf("unexpected song: %+v", snap.Song)
	}
	if snap.Song.Duration != 180*time.Second {
		t.Errorf("unexpected duration: %v", snap.Song.Duration)
	}
	if snap.At.IsZero() {
		t.Error("snapshot must be timestamped")
	}
}

func TestConnectRejectsBadBanner(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("HTTP/1.1 400 Bad Request\n"))
		conn.Close()
	}()

	host, port := splitAddr(t, ln.Addr().String())
	c := New(Config{Host: host, Port: port})
	if err := c.Connect(context.Background()); err == nil {
		t.Error("expected banner rejection")
	}
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}
