package notify

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ============================================================================
// Wire Format
// ============================================================================

// Envelope is the wire format for all real-time events.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command is a client-to-server frame (WebSocket only).
type Command struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// Server event names.
const (
	EventConnected    = "connected"
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"

	EventNewNotification     = "new_notification"
	EventNotificationCreated = "notification.created"
	EventCountUpdate         = "notification_count_update"
	EventCountUpdated        = "notification.count_updated"
)

// NewNotificationPayload is the payload of a new_notification event.
type NewNotificationPayload struct {
	Success      bool          `json:"success"`
	Notification *Notification `json:"notification"`
}

// CountUpdatePayload is the payload of a notification_count_update event.
type CountUpdatePayload struct {
	Success     bool `json:"success"`
	UnreadCount *int `json:"unreadCount" validate:"required,min=0"`
}

// ConnectErrorPayload is the optional payload of a connect_error event.
type ConnectErrorPayload struct {
	Message string `json:"message"`
}

// ============================================================================
// Typed Events
// ============================================================================

// Event is a validated inbound event. The concrete type is one of
// NotificationCreated, UnreadCountUpdated, Lifecycle, MalformedEvent or
// UnknownEvent.
type Event interface {
	EventName() string
}

// NotificationCreated carries a new notification.
type NotificationCreated struct {
	Name         string
	Success      bool
	Notification Notification
}

// UnreadCountUpdated carries the server's authoritative unread count.
type UnreadCountUpdated struct {
	Name        string
	Success     bool
	UnreadCount int
}

// LifecycleKind classifies connection lifecycle events.
type LifecycleKind int

const (
	LifecycleConnected LifecycleKind = iota
	LifecycleDisconnected
	LifecycleConnectError
)

func (k LifecycleKind) String() string {
	switch k {
	case LifecycleConnected:
		return "connected"
	case LifecycleDisconnected:
		return "disconnected"
	case LifecycleConnectError:
		return "connect_error"
	}
	return "unknown"
}

// Lifecycle is a connection lifecycle event sent by the server.
type Lifecycle struct {
	Name   string
	Kind   LifecycleKind
	Reason string
}

// MalformedEvent is a known event whose payload failed validation.
type MalformedEvent struct {
	Name   string
	Reason string
	Raw    json.RawMessage
}

// UnknownEvent is an event name this client does not understand.
type UnknownEvent struct {
	Name string
}

func (e NotificationCreated) EventName() string { return e.Name }
func (e UnreadCountUpdated) EventName() string  { return e.Name }
func (e Lifecycle) EventName() string           { return e.Name }
func (e MalformedEvent) EventName() string      { return e.Name }
func (e UnknownEvent) EventName() string        { return e.Name }

// ============================================================================
// Decoding
// ============================================================================

var payloadValidator = validator.New()

// Decode classifies an envelope and validates its payload. It never fails:
// invalid input becomes a MalformedEvent.
func Decode(env Envelope) Event {
	switch env.Type {
	case "":
		return MalformedEvent{Reason: "missing event type", Raw: env.Payload}

	case EventConnected, EventConnect:
		return Lifecycle{Name: env.Type, Kind: LifecycleConnected}

	case EventDisconnect:
		return Lifecycle{Name: env.Type, Kind: LifecycleDisconnected}

	case EventConnectError:
		var p ConnectErrorPayload
		if len(env.Payload) > 0 {
			_ = json.Unmarshal(env.Payload, &p)
		}
		return Lifecycle{Name: env.Type, Kind: LifecycleConnectError, Reason: p.Message}

	case EventNewNotification, EventNotificationCreated:
		return decodeNotificationCreated(env)

	case EventCountUpdate, EventCountUpdated:
		return decodeCountUpdated(env)
	}
	return UnknownEvent{Name: env.Type}
}

func decodeNotificationCreated(env Envelope) Event {
	var p NewNotificationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return malformed(env, fmt.Errorf("decode payload: %w", err))
	}
	if !p.Success {
		ev := NotificationCreated{Name: env.Type}
		if p.Notification != nil {
			ev.Notification = *p.Notification
		}
		return ev
	}
	if p.Notification == nil {
		return MalformedEvent{Name: env.Type, Reason: "missing notification", Raw: env.Payload}
	}
	if err := payloadValidator.Struct(p.Notification); err != nil {
		return malformed(env, err)
	}
	return NotificationCreated{Name: env.Type, Success: true, Notification: *p.Notification}
}

func decodeCountUpdated(env Envelope) Event {
	var p CountUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return malformed(env, fmt.Errorf("decode payload: %w", err))
	}
	if !p.Success {
		return UnreadCountUpdated{Name: env.Type}
	}
	if err := payloadValidator.Struct(&p); err != nil {
		return malformed(env, err)
	}
	return UnreadCountUpdated{Name: env.Type, Success: true, UnreadCount: *p.UnreadCount}
}

func malformed(env Envelope, err error) MalformedEvent {
	return MalformedEvent{Name: env.Type, Reason: err.Error(), Raw: env.Payload}
}
