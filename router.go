package notify

import (
	"log/slog"
	"sync"
)

// Dispatcher receives notifications that were applied to the store.
type Dispatcher interface {
	Dispatch(n Notification)
}

// RouterConfig wires a Router to its collaborators.
type RouterConfig struct {
	Store *Store
	// Effects is optional; nil means no side effects.
	Effects Dispatcher
	// Lifecycle receives connection lifecycle events, typically
	// Manager.ApplyLifecycle.
	Lifecycle func(Lifecycle)
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Router turns envelopes into store mutations and side effects. Route is
// called from a single goroutine, so events apply in delivery order.
type Router struct {
	store     *Store
	effects   Dispatcher
	lifecycle func(Lifecycle)
	log       *slog.Logger
	metrics   *Metrics

	mu             sync.RWMutex
	onNotification []func(Notification)
	onUnreadCount  []func(int)
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		store:     cfg.Store,
		effects:   cfg.Effects,
		lifecycle: cfg.Lifecycle,
		log:       cfg.Logger.With("component", "router"),
		metrics:   cfg.Metrics,
	}
}

// OnNotification registers a handler for every notification added to the
// store.
func (r *Router) OnNotification(fn func(Notification)) {
	r.mu.Lock()
	r.onNotification = append(r.onNotification, fn)
	r.mu.Unlock()
}

// OnUnreadCount registers a handler for every accepted count update.
func (r *Router) OnUnreadCount(fn func(int)) {
	r.mu.Lock()
	r.onUnreadCount = append(r.onUnreadCount, fn)
	r.mu.Unlock()
}

// Route decodes env and applies it. It returns the decoded event.
func (r *Router) Route(env Envelope) Event {
	ev := Decode(env)
	r.Apply(ev)
	return ev
}

// Apply applies an already decoded event.
func (r *Router) Apply(ev Event) {
	switch e := ev.(type) {
	case NotificationCreated:
		if !e.Success {
			r.log.Debug("discarding unsuccessful notification", "event", e.Name)
			r.metrics.discarded("unsuccessful")
			return
		}
		r.store.Prepend(e.Notification)
		r.metrics.routed("notification")
		if r.effects != nil {
			r.effects.Dispatch(e.Notification)
		}
		r.mu.RLock()
		handlers := append([]func(Notification){}, r.onNotification...)
		r.mu.RUnlock()
		for _, h := range handlers {
			r.call(func() { h(e.Notification) })
		}

	case UnreadCountUpdated:
		if !e.Success {
			r.log.Debug("discarding unsuccessful count update", "event", e.Name)
			r.metrics.discarded("unsuccessful")
			return
		}
		if err := r.store.SetUnreadCount(e.UnreadCount); err != nil {
			r.log.Warn("rejecting count update", "event", e.Name, "error", err)
			r.metrics.discarded("malformed")
			return
		}
		r.metrics.routed("unread_count")
		r.mu.RLock()
		handlers := append([]func(int){}, r.onUnreadCount...)
		r.mu.RUnlock()
		for _, h := range handlers {
			r.call(func() { h(e.UnreadCount) })
		}

	case Lifecycle:
		r.metrics.routed("lifecycle")
		if r.lifecycle != nil {
			r.lifecycle(e)
		}

	case MalformedEvent:
		r.log.Warn("malformed event", "event", e.Name, "reason", e.Reason)
		r.metrics.discarded("malformed")

	case UnknownEvent:
		r.log.Debug("ignoring unknown event", "event", e.Name)
		r.metrics.discarded("unknown")
	}
}

func (r *Router) call(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panicked", "panic", p)
		}
	}()
	fn()
}
