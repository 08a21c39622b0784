package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Actions
// ============================================================================

// ActionKind names a user action backed by the REST API.
type ActionKind string

const (
	ActionMarkRead    ActionKind = "mark_read"
	ActionMarkAllRead ActionKind = "mark_all_read"
	ActionDelete      ActionKind = "delete"
	ActionDeleteAll   ActionKind = "delete_all"
)

// Action is one queued user action.
type Action struct {
	ID             string     `json:"id"`
	Kind           ActionKind `json:"kind"`
	NotificationID string     `json:"notificationId,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	Retries        int        `json:"retries"`
	MaxRetries     int        `json:"maxRetries"`
	Error          string     `json:"error,omitempty"`

	// seq orders actions enqueued within the same clock tick.
	seq uint64
}

func (a *Action) send(ctx context.Context, api *NotificationsClient) error {
	switch a.Kind {
	case ActionMarkRead:
		return api.MarkRead(ctx, a.NotificationID)
	case ActionMarkAllRead:
		return api.MarkAllRead(ctx)
	case ActionDelete:
		return api.Delete(ctx, a.NotificationID)
	case ActionDeleteAll:
		return api.DeleteAll(ctx)
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}

// apply reflects a successful (or optimistically accepted) action locally.
func (a *Action) apply(s *Store) {
	switch a.Kind {
	case ActionMarkRead:
		s.MarkRead(a.NotificationID)
	case ActionMarkAllRead:
		s.MarkAllRead()
		_ = s.SetUnreadCount(0)
	case ActionDelete:
		s.Remove(a.NotificationID)
	case ActionDeleteAll:
		s.Clear()
		_ = s.SetUnreadCount(0)
	}
}

// retryable reports whether err is worth queueing: the request never got an
// answer, or the server failed on its side.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == 0
	}
	return true
}

// ============================================================================
// Outbox
// ============================================================================

// OutboxEventHandler observes outbox progress.
type OutboxEventHandler func(event string, action Action)

// Outbox holds actions whose REST call failed for a transient reason. They
// are replayed in creation order by Flush.
type Outbox struct {
	MaxRetries int

	mu        sync.Mutex
	ops       map[string]*Action
	nextSeq   uint64
	flushing  bool
	listeners []OutboxEventHandler
}

func NewOutbox(maxRetries int) *Outbox {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Outbox{MaxRetries: maxRetries, ops: make(map[string]*Action)}
}

// On registers a handler for "outbox.queued", "outbox.confirmed" and
// "outbox.failed".
func (o *Outbox) On(handler OutboxEventHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, handler)
}

func (o *Outbox) emit(event string, a Action) {
	o.mu.Lock()
	handlers := append([]OutboxEventHandler{}, o.listeners...)
	o.mu.Unlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, a)
		}()
	}
}

// Enqueue adds a pending action and returns its copy.
func (o *Outbox) Enqueue(kind ActionKind, notificationID string) Action {
	a := &Action{
		ID:             uuid.NewString(),
		Kind:           kind,
		NotificationID: notificationID,
		Status:         "pending",
		CreatedAt:      time.Now(),
		MaxRetries:     o.MaxRetries,
	}
	o.mu.Lock()
	o.nextSeq++
	a.seq = o.nextSeq
	o.ops[a.ID] = a
	cp := *a
	o.mu.Unlock()
	o.emit("outbox.queued", cp)
	return cp
}

// Pending returns the actions still waiting to be sent, oldest first.
func (o *Outbox) Pending() []Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Action
	for _, a := range o.ops {
		if a.Status == "pending" {
			out = append(out, *a)
		}
	}
	sortByQueueOrder(out)
	return out
}

// Failed returns the actions that ran out of retries or were rejected.
func (o *Outbox) Failed() []Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Action
	for _, a := range o.ops {
		if a.Status == "failed" {
			out = append(out, *a)
		}
	}
	sortByQueueOrder(out)
	return out
}

func sortByQueueOrder(actions []Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].seq < actions[j].seq })
}

func (o *Outbox) ack(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.ops, id)
}

func (o *Outbox) nack(id string, err error, permanent bool) Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	a := o.ops[id]
	if a == nil {
		return Action{}
	}
	a.Retries++
	a.Error = err.Error()
	if permanent || a.Retries >= a.MaxRetries {
		a.Status = "failed"
	}
	return *a
}

// Flush sends pending actions in order. Concurrent calls collapse into
// one. It stops early when ctx ends.
func (o *Outbox) Flush(ctx context.Context, api *NotificationsClient) {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.flushing = false
		o.mu.Unlock()
	}()

	for _, a := range o.Pending() {
		if ctx.Err() != nil {
			return
		}
		err := a.send(ctx, api)
		if err == nil {
			o.ack(a.ID)
			o.emit("outbox.confirmed", a)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		updated := o.nack(a.ID, err, !retryable(err))
		if updated.Status == "failed" {
			o.emit("outbox.failed", updated)
		}
	}
}
