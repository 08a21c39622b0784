package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	DefaultURL              = "http://localhost:5000"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 25 * time.Second
)

// Config configures a Manager.
type Config struct {
	// URL is the server base URL; WebSocket and SSE paths hang off it.
	URL string
	// Transport defaults to WebSocket with SSE fallback at URL.
	Transport Transport
	// Backoff defaults to DefaultBackoff.
	Backoff          Backoff
	HandshakeTimeout time.Duration
	// PingInterval is how often a live connection is checked. Negative
	// disables the check.
	PingInterval time.Duration
	// HTTPClient is used by the SSE fallback.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *Metrics
}

func (c *Config) defaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Transport == nil {
		c.Transport = DefaultTransport(c.URL, c.HTTPClient)
	}
	if c.Backoff == nil {
		c.Backoff = DefaultBackoff
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// StateChange is one observed connection state. Disconnected is only
// published when the manager is idle: after Disconnect, or once the retry
// policy has given up.
type StateChange struct {
	State     State
	Connected bool
}

// EventSink receives every envelope of the live connection, in order.
type EventSink func(Envelope)

// ============================================================================
// Manager
// ============================================================================

// Manager owns the single live connection of a session. It dials,
// authenticates, reads and reconnects; inbound envelopes go to the sink on
// the connection's read goroutine.
type Manager struct {
	cfg    Config
	token  string
	log    *slog.Logger
	tracer trace.Tracer

	// deliverMu is held while an envelope is handed to the sink, so
	// Disconnect can wait out in-flight delivery.
	deliverMu sync.Mutex
	sink      EventSink

	mu       sync.Mutex
	state    State
	epoch    uint64
	conn     Conn
	cancel   context.CancelFunc
	attempts int
	states   *hub[StateChange]
}

// NewManager creates a disconnected manager for token. Call SetSink before
// Connect.
func NewManager(token string, cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:    cfg,
		token:  token,
		log:    cfg.Logger.With("component", "realtime"),
		tracer: otel.Tracer("github.com/jobportal/notify-go"),
		state:  StateDisconnected,
		states: newHub[StateChange](),
	}
}

// SetSink sets the receiver for inbound envelopes.
func (m *Manager) SetSink(sink EventSink) {
	m.deliverMu.Lock()
	m.sink = sink
	m.deliverMu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ObserveState streams state transitions, starting with the current state.
// Each call is an independent subscription that ends with ctx.
func (m *Manager) ObserveState(ctx context.Context) <-chan StateChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states.subscribe(ctx, stateChange(m.state))
}

// Connect starts connecting in the background. It is a no-op while a
// connection is being established or is up. Transport failures are never
// returned; they feed the retry cycle and show up as state transitions.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.attempts = 0
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.run(ctx, epoch)
}

// Disconnect tears down the connection and cancels pending retries. Once it
// returns, no envelope from the old connection reaches the sink. It must not
// be called from inside the sink.
func (m *Manager) Disconnect() {
	m.deliverMu.Lock()
	m.mu.Lock()
	m.epoch++
	cancel := m.cancel
	conn := m.conn
	m.cancel = nil
	m.conn = nil
	m.attempts = 0
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	m.deliverMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.log.Debug("close connection", "error", err)
		}
	}
}

// Close disconnects and ends all state subscriptions.
func (m *Manager) Close() {
	m.Disconnect()
	m.states.close()
}

// ── Connection cycle ─────────────────────────────────────

func (m *Manager) run(ctx context.Context, epoch uint64) {
	for {
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("connect failed", "transport", m.cfg.Transport.Name(), "error", err)
			if !m.retry(ctx, epoch) {
				return
			}
			continue
		}

		if !m.attach(epoch, conn) {
			conn.Close()
			return
		}
		m.log.Info("connected", "transport", m.cfg.Transport.Name())

		connCtx, stopConn := context.WithCancel(ctx)
		if m.cfg.PingInterval > 0 {
			if p, ok := conn.(Pinger); ok {
				go m.heartbeat(connCtx, conn, p)
			}
		}
		err = m.readLoop(connCtx, epoch, conn)
		stopConn()
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("connection lost", "error", err)
		if !m.detach(epoch, conn) {
			return
		}
		if !m.retry(ctx, epoch) {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	ctx, span := m.tracer.Start(ctx, "notify.dial",
		trace.WithAttributes(attribute.String("notify.transport", m.cfg.Transport.Name())))
	defer span.End()

	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := m.cfg.Transport.Dial(hctx, m.token)
	m.cfg.Metrics.dial(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		return nil, err
	}
	return conn, nil
}

func (m *Manager) attach(epoch uint64, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.conn = conn
	m.attempts = 0
	m.setStateLocked(StateConnected)
	return true
}

func (m *Manager) detach(epoch uint64, conn Conn) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	if m.conn == conn {
		m.conn = nil
	}
	// retry settles on reconnecting or, when the policy is spent,
	// disconnected. Observers never see disconnected while a redial is due.
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()
	conn.Close()
	return true
}

// retry waits for the next backoff slot. It returns false when the cycle
// is over: attempts exhausted, or Disconnect/Connect moved the epoch on.
func (m *Manager) retry(ctx context.Context, epoch uint64) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.attempts++
	attempt := m.attempts
	delay, ok := m.cfg.Backoff.Next(attempt)
	if !ok {
		cancel := m.cancel
		m.cancel = nil
		m.attempts = 0
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		m.log.Warn("giving up reconnecting", "attempts", attempt-1)
		return false
	}
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	m.cfg.Metrics.reconnect()
	m.log.Info("reconnecting", "attempt", attempt, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.setStateLocked(StateConnecting)
	return true
}

func (m *Manager) readLoop(ctx context.Context, epoch uint64, conn Conn) error {
	for {
		env, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !m.deliver(epoch, env) {
			return context.Canceled
		}
	}
}

// deliver hands env to the sink unless the connection it came from has
// been superseded.
func (m *Manager) deliver(epoch uint64, env Envelope) bool {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	current := m.epoch == epoch
	m.mu.Unlock()
	if !current {
		return false
	}
	if m.sink != nil {
		m.sink(env)
	}
	return true
}

func (m *Manager) heartbeat(ctx context.Context, conn Conn, p Pinger) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
			err := p.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				m.log.Warn("heartbeat failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

// ApplyLifecycle reacts to a server-sent lifecycle event. A disconnect or
// connect_error drops the current connection so the retry cycle takes over.
// It is called from the sink, on the read goroutine.
func (m *Manager) ApplyLifecycle(ev Lifecycle) {
	switch ev.Kind {
	case LifecycleConnected:
		m.mu.Lock()
		if m.conn != nil {
			m.setStateLocked(StateConnected)
		}
		m.mu.Unlock()
	case LifecycleDisconnected, LifecycleConnectError:
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn != nil {
			m.log.Info("server closed connection", "event", ev.Name, "reason", ev.Reason)
			conn.Close()
		}
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.cfg.Metrics.setState(s)
	m.states.publish(stateChange(s))
}

func stateChange(s State) StateChange {
	return StateChange{State: s, Connected: s == StateConnected}
}
