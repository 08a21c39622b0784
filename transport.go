package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// ErrHandshake wraps every failure to bring a connection up.
var ErrHandshake = errors.New("handshake failed")

// Conn is one live, authenticated connection.
type Conn interface {
	// Read blocks until the next envelope arrives. Frames that are not
	// valid JSON come back as an Envelope with an empty Type.
	Read(ctx context.Context) (Envelope, error)
	Close() error
}

// Pinger is implemented by connections that support a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Transport dials and authenticates a connection. Dial returns only after
// the server has acknowledged the handshake with a connected event; ctx
// bounds the handshake, not the connection's lifetime.
type Transport interface {
	Name() string
	Dial(ctx context.Context, token string) (Conn, error)
}

const maxFrameSize = 1 << 20

func endpointURL(base, scheme, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if scheme != "" {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// awaitConnected reads frames until the server's connected event.
func awaitConnected(ctx context.Context, c Conn) error {
	env, err := c.Read(ctx)
	if err != nil {
		return err
	}
	switch ev := Decode(env).(type) {
	case Lifecycle:
		switch ev.Kind {
		case LifecycleConnected:
			return nil
		case LifecycleConnectError:
			return fmt.Errorf("server rejected connection: %s", ev.Reason)
		}
	}
	return fmt.Errorf("expected %q, got %q", EventConnected, env.Type)
}

// ============================================================================
// WebSocket
// ============================================================================

// WebSocketTransport is the preferred streaming transport.
type WebSocketTransport struct {
	URL  string
	Path string
	// HTTPClient must not set Timeout; the handshake is bounded by ctx.
	HTTPClient *http.Client
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) Dial(ctx context.Context, token string) (Conn, error) {
	path := t.Path
	if path == "" {
		path = "/ws"
	}
	wsURL, err := endpointURL(t.URL, "ws", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: t.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial: %v", ErrHandshake, err)
	}
	ws.SetReadLimit(maxFrameSize)

	c := &wsConn{conn: ws}
	if err := c.send(ctx, &Command{
		Type:      "auth",
		Payload:   map[string]string{"token": token},
		RequestID: uuid.NewString(),
	}); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: send auth: %v", ErrHandshake, err)
	}
	if err := awaitConnected(ctx, c); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) (Envelope, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if json.Unmarshal(data, &env) != nil {
		return Envelope{Payload: data}, nil
	}
	return env, nil
}

func (c *wsConn) send(ctx context.Context, cmd *Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

// ============================================================================
// Server-Sent Events
// ============================================================================

// SSETransport is the polling-style fallback: a long-lived text/event-stream
// response carrying the same envelopes.
type SSETransport struct {
	URL        string
	Path       string
	HTTPClient *http.Client
	// StaleAfter closes the stream when nothing, heartbeats included, has
	// arrived for this long. Defaults to 45s.
	StaleAfter time.Duration
}

func (t *SSETransport) Name() string { return "sse" }

func (t *SSETransport) Dial(ctx context.Context, token string) (Conn, error) {
	path := t.Path
	if path == "" {
		path = "/sse"
	}
	sseURL, err := endpointURL(t.URL, "", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	stale := t.StaleAfter
	if stale == 0 {
		stale = 45 * time.Second
	}

	// The stream outlives the handshake context.
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sseURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create request: %v", ErrHandshake, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: SSE connect: %v", ErrHandshake, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: SSE HTTP %d", ErrHandshake, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	c := &sseConn{
		body:     resp.Body,
		scanner:  scanner,
		cancel:   cancel,
		stale:    stale,
		lastData: time.Now(),
	}
	if err := awaitConnected(ctx, c); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if !stop() {
		// ctx ended right after the handshake; the stream is already gone.
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, ctx.Err())
	}
	return c, nil
}

type sseConn struct {
	body    interface{ Close() error }
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	stale   time.Duration

	mu       sync.Mutex
	lastData time.Time
}

func (c *sseConn) Read(ctx context.Context) (Envelope, error) {
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()

	var event string
	var data []string
	for c.scanner.Scan() {
		line := c.scanner.Text()
		c.touch()

		switch {
		case line == "":
			if len(data) == 0 {
				event = ""
				continue
			}
			return parseSSEEvent(event, strings.Join(data, "\n")), nil
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := c.scanner.Err(); err != nil {
		return Envelope{}, err
	}
	if ctx.Err() != nil {
		return Envelope{}, ctx.Err()
	}
	return Envelope{}, errors.New("stream ended")
}

// parseSSEEvent accepts both full envelopes in the data field and
// named events whose data is the bare payload.
func parseSSEEvent(event, data string) Envelope {
	var env Envelope
	if json.Unmarshal([]byte(data), &env) == nil && env.Type != "" {
		return env
	}
	if event == "" || event == "message" {
		return Envelope{Payload: json.RawMessage(data)}
	}
	return Envelope{Type: event, Payload: json.RawMessage(data)}
}

func (c *sseConn) touch() {
	c.mu.Lock()
	c.lastData = time.Now()
	c.mu.Unlock()
}

// Ping fails once the stream has been silent for longer than StaleAfter.
func (c *sseConn) Ping(ctx context.Context) error {
	c.mu.Lock()
	idle := time.Since(c.lastData)
	c.mu.Unlock()
	if idle > c.stale {
		return fmt.Errorf("stream stale for %s", idle.Round(time.Second))
	}
	return nil
}

func (c *sseConn) Close() error {
	c.cancel()
	return c.body.Close()
}

// ============================================================================
// Fallback
// ============================================================================

// FallbackTransport tries each transport in order and returns the first
// connection that completes its handshake.
type FallbackTransport []Transport

// DefaultTransport prefers WebSocket and falls back to SSE.
func DefaultTransport(baseURL string, client *http.Client) FallbackTransport {
	return FallbackTransport{
		&WebSocketTransport{URL: baseURL},
		&SSETransport{URL: baseURL, HTTPClient: client},
	}
}

func (f FallbackTransport) Name() string {
	names := make([]string, len(f))
	for i, t := range f {
		names[i] = t.Name()
	}
	return strings.Join(names, "+")
}

func (f FallbackTransport) Dial(ctx context.Context, token string) (Conn, error) {
	if len(f) == 0 {
		return nil, fmt.Errorf("%w: no transports configured", ErrHandshake)
	}
	var errs []error
	for _, t := range f {
		c, err := t.Dial(ctx, token)
		if err == nil {
			return c, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
