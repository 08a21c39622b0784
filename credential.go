package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialSource is the authentication subsystem as seen by this package:
// a read-only, observable bearer token. An empty string means logged out.
type CredentialSource interface {
	Current() string
	// Watch streams the token, starting with the current value. Slow
	// readers only see the latest value.
	Watch(ctx context.Context) <-chan string
}

// CredentialVar is a settable CredentialSource.
type CredentialVar struct {
	mu    sync.Mutex
	token string
	feed  *hub[string]
}

func NewCredentialVar(token string) *CredentialVar {
	return &CredentialVar{token: token, feed: newHub[string]()}
}

func (v *CredentialVar) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token
}

// Set replaces the token. Setting the same value is not a change.
func (v *CredentialVar) Set(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.token == token {
		return
	}
	v.token = token
	v.feed.publish(token)
}

// Clear logs out.
func (v *CredentialVar) Clear() {
	v.Set("")
}

func (v *CredentialVar) Watch(ctx context.Context) <-chan string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.feed.subscribe(ctx, v.token)
}

// ============================================================================
// Token inspection
// ============================================================================

// TokenInfo is what can be read from a JWT bearer token without verifying
// it. It is for display only.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// InspectToken decodes the claims of a JWT without checking its signature.
func InspectToken(token string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse token: %w", err)
	}
	var info TokenInfo
	sub, err := claims.GetSubject()
	if err != nil {
		return TokenInfo{}, fmt.Errorf("read subject: %w", err)
	}
	info.Subject = sub
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenInfo{}, fmt.Errorf("read expiry: %w", err)
	}
	if exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
