package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of a webhook body.
const SignatureHeader = "X-Notify-Signature"

const maxWebhookBody = 1 << 20

// ============================================================================
// Standalone Functions
// ============================================================================

// VerifyWebhookSignature verifies an HMAC-SHA256 signature of body, with or
// without the "sha256=" prefix. Uses constant-time comparison.
func VerifyWebhookSignature(body, signature, secret string) bool {
	if body == "" || signature == "" || secret == "" {
		return false
	}

	sig := strings.TrimPrefix(signature, "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(sig) != len(expected) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// SignWebhookBody returns the signature header value for body.
func SignWebhookBody(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhookEnvelope parses a webhook body. It carries the same envelope
// as the stream.
func ParseWebhookEnvelope(body string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("invalid JSON in webhook body: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("missing type field in webhook body")
	}
	return &env, nil
}

// ============================================================================
// WebhookReceiver
// ============================================================================

// SessionLookup returns the session webhook events are applied to.
// Provider.Session fits.
type SessionLookup func() (*Session, error)

// WebhookReceiver applies signed envelopes posted over HTTP to the current
// session. Posts that arrive with no session, or after it closed, are
// rejected and change nothing.
type WebhookReceiver struct {
	secret  string
	session SessionLookup
}

func NewWebhookReceiver(secret string, session SessionLookup) (*WebhookReceiver, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if session == nil {
		return nil, fmt.Errorf("session lookup is required")
	}
	return &WebhookReceiver{secret: secret, session: session}, nil
}

// Handle processes one webhook (verify + parse + apply) and returns the
// status code and response body for the caller to write.
func (w *WebhookReceiver) Handle(body, signature string) (int, any) {
	if !VerifyWebhookSignature(body, signature, w.secret) {
		return http.StatusUnauthorized, map[string]string{"error": "Invalid signature"}
	}

	env, err := ParseWebhookEnvelope(body)
	if err != nil {
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}

	s, err := w.session()
	if err != nil {
		return http.StatusConflict, map[string]string{"error": err.Error()}
	}
	ev, err := s.Ingest(*env)
	if errors.Is(err, ErrSessionClosed) {
		return http.StatusConflict, map[string]string{"error": err.Error()}
	}
	if err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}

	switch e := ev.(type) {
	case MalformedEvent:
		return http.StatusBadRequest, map[string]string{"error": e.Reason}
	case UnknownEvent:
		return http.StatusAccepted, map[string]any{"ok": true, "ignored": true}
	}
	return http.StatusOK, map[string]bool{"ok": true}
}

// HTTPHandler returns an http.Handler that processes webhook requests.
//
// Example:
//
//	wh, _ := notify.NewWebhookReceiver("secret", provider.Session)
//	http.Handle("/webhook", wh.HTTPHandler())
func (w *WebhookReceiver) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(rw, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
			return
		}

		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "Failed to read body"})
			return
		}
		defer r.Body.Close()

		statusCode, data := w.Handle(string(bodyBytes), r.Header.Get(SignatureHeader))
		writeJSON(rw, statusCode, data)
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
