package client

import (
	"time"

	"messaging-core/internal/models"
)

// Entry is one slot in the conversation view: either a store-confirmed
// message or a locally-synthesized optimistic placeholder. The tagged
// variant makes reconciliation a typed merge instead of id-prefix games.
type Entry interface{ entry() }

// Confirmed wraps a message the store has assigned an id to.
type Confirmed struct {
	Message models.Message
}

// Pending is an optimistic placeholder shown the instant the user submits.
type Pending struct {
	LocalID string
	Content string
	SentAt  time.Time
}

func (Confirmed) entry() {}
func (Pending) entry()   {}

// Timeline holds the in-memory messages for one conversation view. It is
// not safe for concurrent use; the Manager serializes access.
type Timeline struct {
	entries []Entry
	seen    map[string]struct{}
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

// AppendConfirmed adds a store-confirmed message, deduplicating on the
// server-assigned id so a replayed broadcast never double-counts.
func (t *Timeline) AppendConfirmed(msg models.Message) bool {
	if _, ok := t.seen[msg.ID]; ok {
		return false
	}
	t.seen[msg.ID] = struct{}{}
	t.entries = append(t.entries, Confirmed{Message: msg})
	return true
}

// AppendPending adds an optimistic placeholder.
func (t *Timeline) AppendPending(localID, content string, at time.Time) {
	t.entries = append(t.entries, Pending{LocalID: localID, Content: content, SentAt: at})
}

// Confirm merges a confirmed message in: every outstanding placeholder is
// dropped (the store is the ordering authority, so placeholders are not
// matched one-by-one) and the message is appended unless already seen.
func (t *Timeline) Confirm(msg models.Message) {
	t.ClearPending()
	t.AppendConfirmed(msg)
}

// ClearPending removes every optimistic placeholder, returning their
// local ids so the caller can cancel the matching delivery timers.
func (t *Timeline) ClearPending() []string {
	var dropped []string
	kept := t.entries[:0]
	for _, e := range t.entries {
		if p, ok := e.(Pending); ok {
			dropped = append(dropped, p.LocalID)
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return dropped
}

// DropPending removes a single placeholder by local id.
func (t *Timeline) DropPending(localID string) bool {
	for i, e := range t.entries {
		if p, ok := e.(Pending); ok && p.LocalID == localID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// PendingCount returns the number of outstanding placeholders.
func (t *Timeline) PendingCount() int {
	n := 0
	for _, e := range t.entries {
		if _, ok := e.(Pending); ok {
			n++
		}
	}
	return n
}

// Entries returns a snapshot copy of the timeline.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	return len(t.entries)
}
