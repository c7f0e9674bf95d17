// Package domain contains the contract with the remote identity provider.
package domain

import (
	"context"
	"time"
)

// Session is the ephemeral authenticated state issued by the provider.
type Session struct {
	IdentityID  string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SendCodeResult reports the provider's response to a one-time-code request.
type SendCodeResult struct {
	OK      bool
	Message string
}

// EventKind identifies provider session-stream events.
type EventKind string

const (
	EventEstablished EventKind = "established"
	EventEnded       EventKind = "ended"
)

// Event is one element of the provider's session event stream.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Provider is the remote passwordless identity/verification service.
// Transport failures are wrapped with the retry transient marker so callers
// can distinguish them from rejections.
type Provider interface {
	SendCode(ctx context.Context, email string) (*SendCodeResult, error)
	VerifyCode(ctx context.Context, email, code string) (*Session, error)
	CurrentSession(ctx context.Context) (*Session, error)
	ValidateToken(ctx context.Context, token string) (*Session, error)
	SignOut(ctx context.Context, token string, global bool) error
}
