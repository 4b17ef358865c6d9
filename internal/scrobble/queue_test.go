package scrobble

import (
	"fmt"
	"testing"
	"time"
)

func sub(title string, at int64) Submission {
	return Submission{
		Track: Track{Artist: "Artist", Title: title, Duration: 3 * time.Minute},
		Time:  time.Unix(at, 0),
	}
}

func TestQueueOrder(t *testing.T) {
	q := NewQueue(10)
	q.Push(sub("one", 1))
	q.Push(sub("two", 2))
	q.Push(sub("three", 3))

	batch := q.Batch(2)
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(batch))
	}
	if batch[0].Title != "one" || batch[1].Title != "two" {
		t.Errorf("expected oldest-first batch, got %q, %q", batch[0].Title, batch[1].Title)
	}

	q.Remove(batch)
	if q.Len() != 1 {
		t.Fatalf("expected 1 entry after removal, got %d", q.Len())
	}
	if q.Entries()[0].Title != "three" {
		t.Errorf("expected 'three' to remain, got %q", q.Entries()[0].Title)
	}
}

func TestQueueRemoveSparesEntriesOutsideBatch(t *testing.T) {
	q := NewQueue(2)
	q.Push(sub("one", 1))
	q.Push(sub("two", 2))
	batch := q.Batch(2)

	// A push at capacity while the batch is out evicts "one".
	q.Push(sub("three", 3))

	q.Remove(batch)
	if q.Len() != 1 {
		t.Fatalf("expected 1 entry after removal, got %d", q.Len())
	}
	if q.Entries()[0].Title != "three" {
		t.Errorf("entry queued during delivery must survive, got %q", q.Entries()[0].Title)
	}
}

func TestQueueDeduplicates(t *testing.T) {
	q := NewQueue(10)
	if !q.Push(sub("one", 1)) {
		t.Fatal("first push rejected")
	}
	if q.Push(sub("one", 1)) {
		t.Error("duplicate (artist, title, time) must be rejected")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", q.Len())
	}

	// Same song played again at a different time is a new listen.
	if !q.Push(sub("one", 2)) {
		t.Error("same track at different time must be accepted")
	}
}

func TestQueueEvictsOldest(t *testing.T) {
	q := NewQueue(3)
	for i := 1; i <= 4; i++ {
		q.Push(sub(fmt.Sprintf("song-%d", i), int64(i)))
	}
	if q.Len() != 3 {
		t.Fatalf("expected capacity 3, got %d", q.Len())
	}
	entries := q.Entries()
	if entries[0].Title != "song-2" {
		t.Errorf("expected oldest entry evicted, front is %q", entries[0].Title)
	}
	if entries[2].Title != "song-4" {
		t.Errorf("expected newest entry kept, back is %q", entries[2].Title)
	}
}

func TestQueueRestore(t *testing.T) {
	q := NewQueue(2)
	q.Push(sub("stale", 0))
	q.Restore([]Submission{sub("one", 1), sub("two", 2), sub("three", 3)})

	entries := q.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected restore to respect capacity, got %d entries", len(entries))
	}
	if entries[0].Title != "two" || entries[1].Title != "three" {
		t.Errorf("expected newest entries kept, got %q, %q", entries[0].Title, entries[1].Title)
	}
}
