// Package notify provides the real-time notification delivery layer for the
// job board: a persistent authenticated connection per session, typed event
// routing, an in-memory notification store and desktop side effects, plus a
// client for the notification REST API.
//
// Example:
//
//	creds := notify.NewCredentialVar("")
//	p := notify.NewProvider(creds, notify.SessionConfig{
//		Config: notify.Config{URL: "https://jobs.example.com"},
//	})
//	go p.Run(ctx)
//
//	creds.Set(token) // a session starts and connects
//	s, _ := p.Session()
//	for snap := range s.Subscribe(ctx) {
//		fmt.Println(snap.UnreadCount)
//	}
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultTimeout = 30 * time.Second

// ============================================================================
// Client
// ============================================================================

// Client talks to the notification REST API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client

	Notifications *NotificationsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a REST client authenticated with token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultURL,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Notifications = &NotificationsClient{client: c}
	return c
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := &Client{token: token, baseURL: c.baseURL, httpClient: c.httpClient}
	cp.Notifications = &NotificationsClient{client: cp}
	return cp
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query url.Values) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// do performs a request and returns the envelope of a successful response.
// Unsuccessful envelopes and non-2xx statuses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, query url.Values) (*APIResult, error) {
	data, status, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	result, err := decodeJSON[APIResult](data)
	if err != nil {
		if status >= 400 {
			return nil, &APIError{Code: "HTTP_ERROR", Message: http.StatusText(status), Status: status}
		}
		return nil, err
	}
	if status >= 400 && result.Success {
		result.Success = false
	}
	if err := result.Err(); err != nil {
		if apiErr, ok := err.(*APIError); ok {
			apiErr.Status = status
		}
		return nil, err
	}
	return result, nil
}

// ============================================================================
// Notifications API
// ============================================================================

// NotificationsClient wraps /api/notifications.
type NotificationsClient struct{ client *Client }

// List returns one page of the caller's notifications, newest first.
func (n *NotificationsClient) List(ctx context.Context, opts *ListOptions) (*NotificationPage, error) {
	q := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			q.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.IsRead != nil {
			q.Set("isRead", strconv.FormatBool(*opts.IsRead))
		}
	}
	res, err := n.client.do(ctx, "GET", "/api/notifications", nil, q)
	if err != nil {
		return nil, err
	}
	var page NotificationPage
	if err := res.Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return &page, nil
}

func (n *NotificationsClient) Get(ctx context.Context, id string) (*Notification, error) {
	res, err := n.client.do(ctx, "GET", "/api/notifications/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var out Notification
	if err := res.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return &out, nil
}

func (n *NotificationsClient) UnreadCount(ctx context.Context) (int, error) {
	res, err := n.client.do(ctx, "GET", "/api/notifications/unread-count", nil, nil)
	if err != nil {
		return 0, err
	}
	var out UnreadCountData
	if err := res.Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode unread count: %w", err)
	}
	return out.UnreadCount, nil
}

func (n *NotificationsClient) MarkRead(ctx context.Context, id string) error {
	_, err := n.client.do(ctx, "PATCH", "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
	return err
}

func (n *NotificationsClient) MarkAllRead(ctx context.Context) error {
	_, err := n.client.do(ctx, "PATCH", "/api/notifications/read-all", nil, nil)
	return err
}

func (n *NotificationsClient) Delete(ctx context.Context, id string) error {
	_, err := n.client.do(ctx, "DELETE", "/api/notifications/"+url.PathEscape(id), nil, nil)
	return err
}

func (n *NotificationsClient) DeleteAll(ctx context.Context) error {
	_, err := n.client.do(ctx, "DELETE", "/api/notifications", nil, nil)
	return err
}
