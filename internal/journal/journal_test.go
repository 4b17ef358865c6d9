package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scrobbled/internal/scrobble"
)

func testSubmissions(n int) []scrobble.Submission {
	subs := make([]scrobble.Submission, 0, n)
	for i := 0; i < n; i++ {
		subs = append(subs, scrobble.Submission{
			Track: scrobble.Track{
				Artist:        "Artist",
				Title:         "Title " + string(rune('A'+i)),
				Album:         "Album",
				Number:        "7",
				MusicBrainzID: "mbid-1234",
				Duration:      3 * time.Minute,
			},
			Time: time.Unix(1700000000+int64(i), 0),
			Love: i%2 == 0,
		})
	}
	return subs
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.journal")
	want := testSubmissions(5)

	if err := Save(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Artist != want[i].Artist ||
			got[i].Title != want[i].Title ||
			got[i].Album != want[i].Album ||
			got[i].Number != want[i].Number ||
			got[i].MusicBrainzID != want[i].MusicBrainzID ||
			got[i].Duration != want[i].Duration ||
			!got[i].Time.Equal(want[i].Time) ||
			got[i].Love != want[i].Love {
			t.Errorf("entry %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	subs, err := Load(filepath.Join(t.TempDir(), "nope.journal"), nil)
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(subs))
	}
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.journal")
	valid := testSubmissions(3)
	if err := Save(path, valid); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Corrupt the journal with a truncated record in the middle.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	corrupted := append([]byte(`{"artist":"broken`+"\n"), data...)
	corrupted = append(corrupted, []byte(`{"title":"no artist","time":123}`+"\n")...)
	if err := os.WriteFile(path, corrupted, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load must not abort on malformed records: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 valid entries, got %d", len(got))
	}
	for i := range valid {
		if got[i].Title != valid[i].Title {
			t.Errorf("entry %d: got %q, want %q", i, got[i].Title, valid[i].Title)
		}
	}
}

func TestSaveReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.journal")
	if err := Save(path, testSubmissions(5)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Save(path, testSubmissions(2)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected journal replaced with 2 entries, got %d", len(got))
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after save")
	}
}

func TestSaveEmptyQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.journal")
	if err := Save(path, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty journal, got %d entries", len(got))
	}
}
