// Package flowstate holds the small pieces of shared mutable state that
// coordinate the verification flow with the session manager: the redirect
// suppression flag, the resumable code-entry snapshot, and the cached bearer
// credential. It replaces what the legacy client kept in ambient globals
// with an explicit, injectable store.
package flowstate

import (
	"context"
	"time"
)

// Suppression gates automatic post-sign-in redirects. While a verification
// flow is deciding whether the user is first-time, the flag is Checking and
// no consumer may redirect. FirstSignIn keeps the user in onboarding; None
// means redirects proceed normally.
type Suppression string

const (
	SuppressionNone        Suppression = ""
	SuppressionChecking    Suppression = "checking"
	SuppressionFirstSignIn Suppression = "first_sign_in"
)

// ResumeSnapshot lets a restarted client resume mid-code-entry. It is only
// written while the flow sits in the code-sent step.
type ResumeSnapshot struct {
	Email      string    `json:"email"`
	Step       string    `json:"step"`
	CodeSentAt time.Time `json:"code_sent_at"`
}

// Store is the single holder of cross-flow coordination state. All methods
// are safe for concurrent use; the verification lock enforces the
// one-active-verification invariant.
type Store interface {
	SetSuppression(ctx context.Context, s Suppression) error
	Suppression(ctx context.Context) (Suppression, error)
	ClearSuppression(ctx context.Context) error

	SaveResume(ctx context.Context, snap ResumeSnapshot) error
	LoadResume(ctx context.Context) (ResumeSnapshot, bool, error)
	ClearResume(ctx context.Context) error

	SetBearerToken(ctx context.Context, token string) error
	BearerToken(ctx context.Context) (string, bool, error)
	ClearBearerToken(ctx context.Context) error

	// AcquireVerification grants the exclusive right to run a verification
	// attempt. A second concurrent acquire reports ok=false.
	AcquireVerification(ctx context.Context, ttl time.Duration) (token string, ok bool, err error)
	ReleaseVerification(ctx context.Context, token string) error

	// Purge removes every key in the store's namespace. Used by forced
	// sign-out when a profile turns out to be inactive.
	Purge(ctx context.Context) error
}
