package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStorePrepend(t *testing.T) {
	t.Run("newest first", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("a"))
		s.Prepend(testNotification("b"))

		got := s.Notifications()
		if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
			t.Fatalf("expected [b a], got %+v", got)
		}
	})

	t.Run("duplicates kept", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("a"))
		s.Prepend(testNotification("a"))
		if n := len(s.Notifications()); n != 2 {
			t.Fatalf("expected 2 entries, got %d", n)
		}
	})

	t.Run("returns a copy", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("a"))
		got := s.Notifications()
		got[0].Title = "changed"
		if s.Notifications()[0].Title != "Hi" {
			t.Fatal("store was mutated through returned slice")
		}
	})
}

func TestStoreUnreadCount(t *testing.T) {
	t.Run("last write wins", func(t *testing.T) {
		s := NewStore()
		if err := s.SetUnreadCount(7); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.SetUnreadCount(3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.UnreadCount() != 3 {
			t.Fatalf("expected 3, got %d", s.UnreadCount())
		}
	})

	t.Run("negative rejected", func(t *testing.T) {
		s := NewStore()
		_ = s.SetUnreadCount(4)
		err := s.SetUnreadCount(-1)
		if !errors.Is(err, ErrNegativeCount) {
			t.Fatalf("expected ErrNegativeCount, got %v", err)
		}
		if s.UnreadCount() != 4 {
			t.Fatalf("expected counter to stay 4, got %d", s.UnreadCount())
		}
	})

	t.Run("independent of collection", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("a"))
		if s.UnreadCount() != 0 {
			t.Fatalf("prepend must not touch the counter, got %d", s.UnreadCount())
		}
	})
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Prepend(testNotification("a"))
	_ = s.SetUnreadCount(5)

	s.Clear()

	if n := len(s.Notifications()); n != 0 {
		t.Fatalf("expected empty collection, got %d", n)
	}
	if s.UnreadCount() != 5 {
		t.Fatalf("expected counter 5 after clear, got %d", s.UnreadCount())
	}
}

func TestStoreActions(t *testing.T) {
	t.Run("mark read", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("a"))
		s.Prepend(testNotification("b"))
		if !s.MarkRead("a") {
			t.Fatal("expected a match")
		}
		if s.MarkRead("missing") {
			t.Fatal("expected no match")
		}
		got := s.Notifications()
		if got[0].IsRead || !got[1].IsRead {
			t.Fatalf("expected only a read, got %+v", got)
		}
	})

	t.Run("mark all read keeps order", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("a"))
		s.Prepend(testNotification("b"))
		s.MarkAllRead()
		got := s.Notifications()
		if got[0].ID != "b" || !got[0].IsRead || !got[1].IsRead {
			t.Fatalf("unexpected %+v", got)
		}
	})

	t.Run("remove", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("a"))
		s.Prepend(testNotification("b"))
		if !s.Remove("a") {
			t.Fatal("expected removal")
		}
		if s.Remove("a") {
			t.Fatal("expected nothing left to remove")
		}
		if got := s.Notifications(); len(got) != 1 || got[0].ID != "b" {
			t.Fatalf("unexpected %+v", got)
		}
	})

	t.Run("replace", func(t *testing.T) {
		s := NewStore()
		s.Prepend(testNotification("old"))
		s.Replace([]Notification{testNotification("x"), testNotification("y")})
		got := s.Notifications()
		if len(got) != 2 || got[0].ID != "x" {
			t.Fatalf("unexpected %+v", got)
		}
	})
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	_ = s.SetUnreadCount(2)

	ctx, cancel := context.WithCancel(context.Background())
	feed := s.Subscribe(ctx)

	first := <-feed
	if first.UnreadCount != 2 {
		t.Fatalf("expected initial snapshot with count 2, got %+v", first)
	}

	s.Prepend(testNotification("a"))
	select {
	case snap := <-feed:
		if len(snap.Notifications) != 1 || snap.Notifications[0].ID != "a" {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after prepend")
	}

	cancel()
	waitFor(t, "feed to close", func() bool {
		select {
		case _, ok := <-feed:
			return !ok
		default:
			return false
		}
	})
}
