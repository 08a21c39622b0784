package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNotification(id string) Notification {
	return Notification{
		ID:          id,
		Title:       "Hi",
		Description: "d",
		OwnerID:     "u1",
		CreatedAt:   "t0",
		UpdatedAt:   "t0",
	}
}

func envelope(t *testing.T, typ string, payload any) Envelope {
	t.Helper()
	if payload == nil {
		return Envelope{Type: typ}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{Type: typ, Payload: b}
}

func newNotificationEnv(t *testing.T, success bool, n Notification) Envelope {
	return envelope(t, EventNewNotification, map[string]any{"success": success, "notification": n})
}

func countEnv(t *testing.T, success bool, count int) Envelope {
	return envelope(t, EventCountUpdate, map[string]any{"success": success, "unreadCount": count})
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ============================================================================
// Fake transport
// ============================================================================

type fakeConn struct {
	frames    chan Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Envelope, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (Envelope, error) {
	select {
	case env := <-c.frames:
		return env, nil
	case <-c.closed:
		return Envelope{}, errors.New("connection closed")
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeTransport hands out fakeConns. fail, when set, decides per dial
// (1-based) whether the handshake fails.
type fakeTransport struct {
	fail func(call int) error

	mu     sync.Mutex
	calls  int
	tokens []string
	conns  []*fakeConn
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Dial(ctx context.Context, token string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens = append(f.tokens, token)
	if f.fail != nil {
		if err := f.fail(f.calls); err != nil {
			return nil, err
		}
	}
	c := newFakeConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) liveConns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.conns {
		if !c.isClosed() {
			n++
		}
	}
	return n
}

func (f *fakeTransport) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

func fastConfig(tr Transport) Config {
	return Config{
		Transport:    tr,
		Backoff:      FixedBackoff{Delay: time.Millisecond, MaxAttempts: 5},
		PingInterval: -1,
		Logger:       quietLogger(),
	}
}

// ============================================================================
// Recording side effects
// ============================================================================

type recordingDispatcher struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *recordingDispatcher) Dispatch(n Notification) {
	r.mu.Lock()
	r.seen = append(r.seen, n)
	r.mu.Unlock()
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

type recordingNotifier struct {
	mu    sync.Mutex
	shown []string
	err   error
}

func (r *recordingNotifier) Notify(title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, title)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

type recordingSounder struct {
	mu    sync.Mutex
	plays int
	err   error
}

func (r *recordingSounder) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays++
	return r.err
}

func (r *recordingSounder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plays
}
