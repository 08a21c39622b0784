package notify

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error returned by the notification REST API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return e.Code + ": " + e.Message
}

// ============================================================================
// Notification Types
// ============================================================================

// Notification is a server-issued record for one user-facing event.
// Only IsRead ever changes after creation.
type Notification struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId" validate:"required"`
	IsRead      bool   `json:"isRead"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NotificationPage is the data of a list response.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Pagination    Pagination     `json:"pagination"`
}

// UnreadCountData is the data of an unread-count response.
type UnreadCountData struct {
	UnreadCount int `json:"unreadCount"`
}

// ListOptions filters a notification list request.
type ListOptions struct {
	Page   int
	Limit  int
	IsRead *bool
}

// ============================================================================
// REST Envelope
// ============================================================================

// APIResult is the generic REST response envelope.
type APIResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *APIResult) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns the failure carried by an unsuccessful result, or nil.
func (r *APIResult) Err() error {
	if r.Success {
		return nil
	}
	if r.Error != nil {
		return r.Error
	}
	msg := r.Message
	if msg == "" {
		msg = "request failed"
	}
	return &APIError{Code: "REQUEST_FAILED", Message: msg}
}
