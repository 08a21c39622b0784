package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrNegativeCount is returned when an unread count below zero is set.
var ErrNegativeCount = errors.New("unread count must not be negative")

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Notifications []Notification
	UnreadCount   int
}

// Store holds received notifications (newest first) and the unread counter.
// The two are maintained independently: the counter is whatever the server
// last pushed, not a count of unread entries.
type Store struct {
	mu     sync.RWMutex
	items  []Notification
	unread int
	feed   *hub[Snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{feed: newHub[Snapshot]()}
}

// Prepend inserts n at the head of the collection. Duplicate ids are kept.
func (s *Store) Prepend(n Notification) {
	s.mu.Lock()
	items := make([]Notification, 0, len(s.items)+1)
	items = append(items, n)
	s.items = append(items, s.items...)
	s.publishLocked()
	s.mu.Unlock()
}

// SetUnreadCount overwrites the unread counter.
func (s *Store) SetUnreadCount(n int) error {
	if n < 0 {
		return ErrNegativeCount
	}
	s.mu.Lock()
	s.unread = n
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

// Clear empties the collection. The unread counter is left as is.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.publishLocked()
	s.mu.Unlock()
}

// Notifications returns a copy of the collection, newest first.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.items...)
}

// UnreadCount returns the last value set on the counter.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Snapshot returns the collection and counter as of the last mutation.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// ── Applying REST results ──────────────────────────────────

// MarkRead flags every entry with the given id as read. It reports whether
// any entry matched.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = true
			found = true
		}
	}
	if found {
		s.publishLocked()
	}
	return found
}

// MarkAllRead flags every entry as read.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.publishLocked()
}

// Remove drops every entry with the given id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0:0]
	for _, n := range s.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	removed := len(kept) != len(s.items)
	if removed {
		s.items = kept
		s.publishLocked()
	}
	return removed
}

// Replace swaps the whole collection, e.g. after loading the first page.
func (s *Store) Replace(list []Notification) {
	s.mu.Lock()
	s.items = append([]Notification(nil), list...)
	s.publishLocked()
	s.mu.Unlock()
}

// ── Change feed ────────────────────────────────────────────

// Subscribe returns a feed of snapshots, starting with the current one.
// Slow readers only see the latest snapshot.
func (s *Store) Subscribe(ctx context.Context) <-chan Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.subscribe(ctx, s.snapshotLocked())
}

func (s *Store) close() {
	s.feed.close()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Notifications: append([]Notification(nil), s.items...),
		UnreadCount:   s.unread,
	}
}

func (s *Store) publishLocked() {
	s.feed.publish(s.snapshotLocked())
}
