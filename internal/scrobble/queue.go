package scrobble

// Queue is the ordered set of submissions one backend still has to
// deliver. Oldest entries sit at the front and are delivered first. The
// queue is not safe for concurrent use; the owning backend serializes
// access.
type Queue struct {
	limit   int
	entries []Submission
}

// NewQueue creates a queue bounded to limit entries. A limit of zero or
// less means unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Push appends a submission. A submission whose artist, title and
// timestamp match an entry already queued is ignored, so a benign
// re-delivery trigger cannot double-submit. When the queue is full the
// oldest entry is evicted to admit the new one. Push reports whether the
// submission was added.
func (q *Queue) Push(sub Submission) bool {
	for _, e := range q.entries {
		if sameListen(e, sub) {
			return false
		}
	}
	if q.limit > 0 && len(q.entries) >= q.limit {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, sub)
	return true
}

// sameListen reports whether two submissions describe the same listen:
// same artist, title and capture timestamp.
func sameListen(a, b Submission) bool {
	return a.Artist == b.Artist && a.Title == b.Title && a.Time.Equal(b.Time)
}

// Len returns the number of queued submissions.
func (q *Queue) Len() int { return len(q.entries) }

// Batch returns up to n submissions from the front of the queue, oldest
// first. The returned slice is a copy.
func (q *Queue) Batch(n int) []Submission {
	if n > len(q.entries) {
		n = len(q.entries)
	}
	batch := make([]Submission, n)
	copy(batch, q.entries[:n])
	return batch
}

// Remove deletes the given submissions from the queue, matching each by
// artist, title and timestamp. Called after a batch was delivered;
// removal by identity keeps an eviction that happened while the batch
// was in flight from costing an entry that was never sent.
func (q *Queue) Remove(delivered []Submission) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		found := false
		for _, d := range delivered {
			if sameListen(e, d) {
				found = true
				break
			}
		}
		if !found {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// Entries returns a copy of all queued submissions in delivery order.
func (q *Queue) Entries() []Submission {
	out := make([]Submission, len(q.entries))
	copy(out, q.entries)
	return out
}

// Restore replaces the queue contents, used when reloading a journal.
func (q *Queue) Restore(entries []Submission) {
	q.entries = nil
	for _, e := range entries {
		q.Push(e)
	}
}
