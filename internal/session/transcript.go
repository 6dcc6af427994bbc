package session

import "time"

// EntryKind classifies a transcript entry by its author.
type EntryKind string

const (
	KindUser   EntryKind = "user"
	KindAgent  EntryKind = "agent"
	KindSystem EntryKind = "system"
)

// Entry is one immutable record in the session's durable log.
type Entry struct {
	Kind      EntryKind `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the ordered, append-only record of the session. Entries
// are never mutated or removed after append; corrections arrive only as
// new entries. Ordering is append order.
type Transcript struct {
	entries []Entry

	// now is overridable in tests for deterministic timestamps.
	now func() time.Time
}

// Append adds an entry and returns the new length.
func (t *Transcript) Append(kind EntryKind, content string) int {
	clock := t.now
	if clock == nil {
		clock = time.Now
	}
	t.entries = append(t.entries, Entry{
		Kind:      kind,
		Content:   content,
		CreatedAt: clock(),
	})
	return len(t.entries)
}

// Clear empties the transcript. It is only ever invoked by an explicit
// user reset action, never by protocol events.
func (t *Transcript) Clear() {
	t.entries = nil
}

// Entries returns a copy of the log.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int { return len(t.entries) }
