package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrNoSession means the caller asked for the session outside of an
	// authenticated session. It is a wiring bug.
	ErrNoSession = errors.New("notify: no active session")

	ErrSessionClosed = errors.New("notify: session closed")
)

// DefaultPageSize is the number of notifications loaded by Refresh.
const DefaultPageSize = 20

// SessionConfig configures every session built by a Provider.
type SessionConfig struct {
	Config

	// API is cloned per session with the session's token. Defaults to a
	// client at Config.URL.
	API *Client
	// Effects is shared by all sessions; nil disables side effects.
	Effects *Effects
	// OutboxRetries bounds replays of a queued action.
	OutboxRetries int
	// Prepare runs on every session a Provider builds, before it connects.
	// Handlers registered here see the first pushed event.
	Prepare func(ctx context.Context, s *Session)
}

// Session is the read/subscribe surface of one authenticated session: the
// connection, the store and the REST-backed actions, all scoped to one
// token.
type Session struct {
	token   string
	log     *slog.Logger
	store   *Store
	router  *Router
	manager *Manager
	api     *NotificationsClient
	outbox  *Outbox

	// routeMu serializes stream delivery and webhook ingress.
	routeMu sync.Mutex
	closed  bool
	cancel  context.CancelFunc
}

// NewSession builds a disconnected session for token. Call Start to
// connect.
func NewSession(token string, cfg SessionConfig) *Session {
	cfg.Config.defaults()

	api := cfg.API
	if api == nil {
		api = NewClient(token, WithBaseURL(cfg.URL))
	} else {
		api = api.WithToken(token)
	}

	s := &Session{
		token:  token,
		log:    cfg.Logger.With("component", "session"),
		store:  NewStore(),
		api:    api.Notifications,
		outbox: NewOutbox(cfg.OutboxRetries),
	}
	s.manager = NewManager(token, cfg.Config)

	var effects Dispatcher
	if cfg.Effects != nil {
		effects = cfg.Effects
	}
	s.router = NewRouter(RouterConfig{
		Store:     s.store,
		Effects:   effects,
		Lifecycle: s.manager.ApplyLifecycle,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	s.manager.SetSink(func(env Envelope) {
		s.routeMu.Lock()
		defer s.routeMu.Unlock()
		s.router.Route(env)
	})
	return s
}

// Start connects and begins replaying queued actions whenever the
// connection comes up.
func (s *Session) Start() {
	s.routeMu.Lock()
	if s.closed || s.cancel != nil {
		s.routeMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.routeMu.Unlock()

	states := s.manager.ObserveState(ctx)
	go func() {
		for sc := range states {
			if sc.Connected && len(s.outbox.Pending()) > 0 {
				s.outbox.Flush(ctx, s.api)
			}
		}
	}()
	s.manager.Connect()
}

// Close disconnects and ends all subscriptions. After Close returns the
// store no longer changes.
func (s *Session) Close() {
	s.manager.Close()

	s.routeMu.Lock()
	if s.closed {
		s.routeMu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.routeMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.store.close()
}

// Token returns the credential the session was built for.
func (s *Session) Token() string { return s.token }

// Router exposes handler registration for new notifications and counts.
func (s *Session) Router() *Router { return s.router }

// Outbox exposes actions waiting to be replayed.
func (s *Session) Outbox() *Outbox { return s.outbox }

// ── Connection ───────────────────────────────────────────

func (s *Session) State() State { return s.manager.State() }

func (s *Session) Connected() bool { return s.manager.State() == StateConnected }

func (s *Session) ObserveState(ctx context.Context) <-chan StateChange {
	return s.manager.ObserveState(ctx)
}

// Reconnect starts a new connection cycle if the previous one gave up.
func (s *Session) Reconnect() {
	s.manager.Connect()
}

// ── Store ────────────────────────────────────────────────

func (s *Session) Notifications() []Notification { return s.store.Notifications() }

func (s *Session) UnreadCount() int { return s.store.UnreadCount() }

func (s *Session) Snapshot() Snapshot { return s.store.Snapshot() }

// Subscribe streams store snapshots until ctx ends or the session closes.
func (s *Session) Subscribe(ctx context.Context) <-chan Snapshot {
	return s.store.Subscribe(ctx)
}

func (s *Session) AddNotification(n Notification) { s.store.Prepend(n) }

func (s *Session) SetUnreadCount(n int) error { return s.store.SetUnreadCount(n) }

func (s *Session) Clear() { s.store.Clear() }

// Ingest routes an envelope that arrived outside the stream, such as a
// webhook. Lifecycle events are ignored since they describe a connection
// this session does not own.
func (s *Session) Ingest(env Envelope) (Event, error) {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	ev := Decode(env)
	if _, ok := ev.(Lifecycle); ok {
		s.log.Debug("ignoring lifecycle event from ingress", "event", env.Type)
		return ev, nil
	}
	s.router.Apply(ev)
	return ev, nil
}

// ── REST-backed actions ──────────────────────────────────

// Refresh replaces the collection with the first page from the API and
// reloads the unread count.
func (s *Session) Refresh(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	page, err := s.api.List(ctx, &ListOptions{Page: 1, Limit: DefaultPageSize})
	if err != nil {
		return err
	}
	count, err := s.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	s.store.Replace(page.Notifications)
	return s.store.SetUnreadCount(count)
}

func (s *Session) MarkRead(ctx context.Context, id string) error {
	return s.perform(ctx, ActionMarkRead, id)
}

func (s *Session) MarkAllRead(ctx context.Context) error {
	return s.perform(ctx, ActionMarkAllRead, "")
}

func (s *Session) Delete(ctx context.Context, id string) error {
	return s.perform(ctx, ActionDelete, id)
}

func (s *Session) DeleteAll(ctx context.Context) error {
	return s.perform(ctx, ActionDeleteAll, "")
}

// perform sends an action and applies it to the store. Transient failures
// are applied optimistically and queued for replay.
func (s *Session) perform(ctx context.Context, kind ActionKind, id string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	a := Action{Kind: kind, NotificationID: id}
	err := a.send(ctx, s.api)
	if err != nil {
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		queued := s.outbox.Enqueue(kind, id)
		s.log.Warn("action queued", "action", kind, "id", queued.ID, "error", err)
	}
	a.apply(s.store)
	return nil
}

func (s *Session) isClosed() bool {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	return s.closed
}

// ============================================================================
// Provider
// ============================================================================

// Provider owns the session lifecycle: a session exists exactly while the
// credential source holds a token.
type Provider struct {
	creds CredentialSource
	cfg   SessionConfig
	log   *slog.Logger

	mu      sync.Mutex
	current *Session
	feed    *hub[*Session]
}

func NewProvider(creds CredentialSource, cfg SessionConfig) *Provider {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Provider{
		creds: creds,
		cfg:   cfg,
		log:   cfg.Logger.With("component", "provider"),
		feed:  newHub[*Session](),
	}
}

// Run follows the credential source until ctx ends, then closes the
// current session. Desktop permission is requested once, up front.
func (p *Provider) Run(ctx context.Context) error {
	if p.cfg.Effects != nil {
		p.cfg.Effects.RequestPermission(ctx)
	}
	for token := range p.creds.Watch(ctx) {
		p.switchTo(ctx, token)
	}
	p.switchTo(ctx, "")
	p.feed.close()
	return ctx.Err()
}

// switchTo is only called from Run. Sessions are closed and started outside
// p.mu so handlers running inside a session may call Session.
func (p *Provider) switchTo(ctx context.Context, token string) {
	p.mu.Lock()
	old := p.current
	if old != nil && old.token == token {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.mu.Unlock()

	if old != nil {
		p.log.Info("ending session")
		old.Close()
	}
	var next *Session
	if token != "" {
		p.log.Info("starting session")
		next = NewSession(token, p.cfg)
		if p.cfg.Prepare != nil {
			p.cfg.Prepare(ctx, next)
		}
		next.Start()
	}

	p.mu.Lock()
	p.current = next
	p.feed.publish(next)
	p.mu.Unlock()
}

// Session returns the active session or ErrNoSession.
func (p *Provider) Session() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, ErrNoSession
	}
	return p.current, nil
}

// MustSession is Session for callers that are only reachable inside a
// session. It panics otherwise.
func (p *Provider) MustSession() *Session {
	s, err := p.Session()
	if err != nil {
		panic(err)
	}
	return s
}

// Sessions streams the active session, nil while logged out.
func (p *Provider) Sessions(ctx context.Context) <-chan *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feed.subscribe(ctx, p.current)
}

// ============================================================================
// Context lookup
// ============================================================================

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session attached to ctx, if any.
func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// FromContext returns the session attached to ctx and panics with
// ErrNoSession when there is none.
func FromContext(ctx context.Context) *Session {
	s, ok := SessionFrom(ctx)
	if !ok {
		panic(ErrNoSession)
	}
	return s
}
