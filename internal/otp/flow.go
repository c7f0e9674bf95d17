// Package otp implements the passwordless sign-in flow: request a one-time
// code, verify it, and decide whether the user lands in plan selection
// (first sign-in) or is redirected into the application.
package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumera-ai/lumera/internal/clock"
	"github.com/lumera-ai/lumera/internal/config"
	entitlementdomain "github.com/lumera-ai/lumera/internal/entitlement/domain"
	"github.com/lumera-ai/lumera/internal/flowstate"
	"github.com/lumera-ai/lumera/internal/identity"
	identitydomain "github.com/lumera-ai/lumera/internal/identity/domain"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"go.uber.org/zap"
)

// Step is the flow's current position in the sign-in state machine.
type Step string

const (
	StepEmail         Step = "email"
	StepCodeSent      Step = "code_sent"
	StepVerifying     Step = "verifying"
	StepPlanSelection Step = "plan_selection"
	StepRedirect      Step = "redirect"
)

const (
	codeLength         = 6
	codeExpiry         = 2 * time.Minute
	defaultDebounce    = 300 * time.Millisecond
	verificationTTL    = 30 * time.Second
	verifyFetchTimeout = 15 * time.Second
)

// State is a read-only snapshot of the flow.
type State struct {
	Step        Step
	Email       string
	CodeSentAt  time.Time
	HadError    bool
	FirstSignIn bool
}

// Result reports a successful verification.
type Result struct {
	FirstSignIn bool
	Session     *identitydomain.Session
}

// Flow drives one sign-in attempt. Safe for concurrent use; at most one
// verification runs at a time, enforced both locally and through the shared
// flowstate lock so a second tab or process cannot race this one.
type Flow struct {
	log          *zap.Logger
	provider     identitydomain.Provider
	profiles     profiledomain.Service
	entitlements entitlementdomain.Service
	flow         flowstate.Store
	bus          *identity.Bus
	clock        clock.Clock
	debounce     time.Duration

	mu            sync.Mutex
	step          Step
	email         string
	code          string
	sentAt        time.Time
	attempted     bool
	hadError      bool
	verifying     bool
	first         bool
	debounceTimer *time.Timer
	closed        bool
}

func NewFlow(
	log *zap.Logger,
	provider identitydomain.Provider,
	profiles profiledomain.Service,
	entitlements entitlementdomain.Service,
	flow flowstate.Store,
	bus *identity.Bus,
	clk clock.Clock,
) *Flow {
	return &Flow{
		log:          log.Named("otp.flow"),
		provider:     provider,
		profiles:     profiles,
		entitlements: entitlements,
		flow:         flow,
		bus:          bus,
		clock:        clk,
		debounce:     defaultDebounce,
		step:         StepEmail,
	}
}

// State returns the current snapshot.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Step:        f.step,
		Email:       f.email,
		CodeSentAt:  f.sentAt,
		HadError:    f.hadError,
		FirstSignIn: f.first,
	}
}

// CodeExpiresIn returns the remaining informational countdown. Expiry is
// enforced by the identity provider; this only drives the UI.
func (f *Flow) CodeExpiresIn() time.Duration {
	f.mu.Lock()
	sentAt := f.sentAt
	f.mu.Unlock()
	if sentAt.IsZero() {
		return 0
	}
	remaining := codeExpiry - f.clock.Now().Sub(sentAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Resume restores a mid-entry snapshot left by a previous run. Snapshots
// older than the code expiry window are discarded.
func (f *Flow) Resume(ctx context.Context) error {
	snap, ok, err := f.flow.LoadResume(ctx)
	if err != nil {
		return fmt.Errorf("load resume snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	if snap.Step != string(StepCodeSent) || f.clock.Now().Sub(snap.CodeSentAt) >= codeExpiry {
		if err := f.flow.ClearResume(ctx); err != nil {
			f.log.Warn("clear stale resume snapshot", zap.Error(err))
		}
		return nil
	}

	f.mu.Lock()
	f.email = snap.Email
	f.sentAt = snap.CodeSentAt
	f.step = StepCodeSent
	f.mu.Unlock()
	f.log.Info("resumed code entry", zap.String("email", snap.Email))
	return nil
}

// SendCode requests a one-time code and moves the flow to code entry.
func (f *Flow) SendCode(ctx context.Context, email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	res, err := f.provider.SendCode(ctx, email)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%w: %s", ErrSendRejected, res.Message)
	}

	sentAt := f.clock.Now()
	f.mu.Lock()
	f.email = email
	f.sentAt = sentAt
	f.step = StepCodeSent
	f.code = ""
	f.attempted = false
	f.hadError = false
	f.first = false
	f.stopDebounceLocked()
	f.mu.Unlock()

	if err := f.flow.SaveResume(ctx, flowstate.ResumeSnapshot{
		Email:      email,
		Step:       string(StepCodeSent),
		CodeSentAt: sentAt,
	}); err != nil {
		f.log.Warn("save resume snapshot", zap.Error(err))
	}
	return nil
}

// SetCode records the user's current code entry. When the entry reaches the
// full length it schedules a single automatic verification after a short
// debounce; shortening the entry re-arms the trigger and clears the error
// latch.
func (f *Flow) SetCode(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.code = code

	if len(code) < codeLength {
		f.attempted = false
		f.hadError = false
		f.stopDebounceLocked()
		return
	}
	if len(code) != codeLength || !digitsOnly(code) {
		return
	}
	if f.attempted || f.hadError || f.step != StepCodeSent {
		return
	}
	f.attempted = true
	f.stopDebounceLocked()
	f.debounceTimer = time.AfterFunc(f.debounce, func() {
		if _, err := f.Verify(context.Background()); err != nil {
			f.log.Warn("auto verification failed", zap.Error(err))
		}
	})
}

// SubmitCode records a complete entry and verifies it immediately, without
// waiting for the auto-verify debounce. Used by explicit submission paths.
func (f *Flow) SubmitCode(ctx context.Context, code string) (*Result, error) {
	f.mu.Lock()
	f.code = code
	f.attempted = true
	f.stopDebounceLocked()
	f.mu.Unlock()
	return f.Verify(ctx)
}

// Verify checks the entered code with the identity provider and routes the
// user. The suppression flag is set to "checking" before the provider call
// and resolved to its definitive value before any side effects run, so a
// concurrent session listener can never redirect past plan selection.
func (f *Flow) Verify(ctx context.Context) (*Result, error) {
	f.mu.Lock()
	if f.verifying {
		f.mu.Unlock()
		return nil, ErrVerificationInProgress
	}
	if f.step != StepCodeSent {
		f.mu.Unlock()
		return nil, ErrNoCodeSent
	}
	email, code := f.email, f.code
	f.mu.Unlock()

	if email == "" {
		return nil, ErrNoCodeSent
	}
	if len(code) != codeLength || !digitsOnly(code) {
		return nil, ErrCodeMalformed
	}

	lockToken, ok, err := f.flow.AcquireVerification(ctx, verificationTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire verification lock: %w", err)
	}
	if !ok {
		return nil, ErrVerificationInProgress
	}
	defer func() {
		if err := f.flow.ReleaseVerification(context.WithoutCancel(ctx), lockToken); err != nil {
			f.log.Warn("release verification lock", zap.Error(err))
		}
	}()

	f.mu.Lock()
	f.verifying = true
	f.step = StepVerifying
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.verifying = false
		f.mu.Unlock()
	}()

	if err := f.flow.SetSuppression(ctx, flowstate.SuppressionChecking); err != nil {
		f.log.Warn("set suppression flag", zap.Error(err))
	}

	sess, err := f.provider.VerifyCode(ctx, email, code)
	if err != nil {
		f.mu.Lock()
		f.hadError = true
		f.step = StepCodeSent
		f.mu.Unlock()
		if cerr := f.flow.ClearSuppression(ctx); cerr != nil {
			f.log.Warn("clear suppression flag", zap.Error(cerr))
		}
		return nil, err
	}

	first, err := f.determineFirstSignIn(ctx, sess)
	if err != nil {
		// Inactive account: tear the session down instead of publishing it.
		return nil, f.rejectInactive(ctx, sess)
	}

	// Definitive suppression value must land before any side effects.
	if first {
		err = f.flow.SetSuppression(ctx, flowstate.SuppressionFirstSignIn)
	} else {
		err = f.flow.ClearSuppression(ctx)
	}
	if err != nil {
		f.log.Warn("resolve suppression flag", zap.Error(err))
	}

	if err := f.flow.SetBearerToken(ctx, sess.AccessToken); err != nil {
		f.log.Warn("cache bearer token", zap.Error(err))
	}
	if err := f.flow.ClearResume(ctx); err != nil {
		f.log.Warn("clear resume snapshot", zap.Error(err))
	}
	f.profiles.CompleteRegistration(sess.IdentityID, map[string]any{
		"method":       "otp",
		"first_signin": first,
	})
	f.bus.Publish(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: sess})

	f.mu.Lock()
	f.hadError = false
	f.first = first
	if first {
		f.step = StepPlanSelection
	} else {
		f.step = StepRedirect
	}
	f.mu.Unlock()

	f.log.Info("verification succeeded",
		zap.String("identity_id", sess.IdentityID),
		zap.Bool("first_signin", first),
	)
	return &Result{FirstSignIn: first, Session: sess}, nil
}

// determineFirstSignIn decides the post-verification route. A user is
// first-time when their profile has no first-touch marker, or when a paid
// plan carries no active entitlement. When the check itself fails the user
// is routed to plan selection rather than redirected blind.
func (f *Flow) determineFirstSignIn(ctx context.Context, sess *identitydomain.Session) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyFetchTimeout)
	defer cancel()

	profile, err := f.profiles.Fetch(ctx, sess.IdentityID, sess.Email)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileInactive) {
			return false, err
		}
		f.log.Warn("first sign-in check failed, treating as first",
			zap.String("identity_id", sess.IdentityID),
			zap.Error(err),
		)
		return true, nil
	}
	if profile.FirstTouchAt == nil {
		return true, nil
	}
	if profile.Plan == config.FreePlanID {
		return false, nil
	}
	has, err := f.entitlements.HasPaidEntitlement(ctx, profile.ID)
	if err != nil {
		f.log.Warn("entitlement check failed, treating as first",
			zap.String("identity_id", sess.IdentityID),
			zap.Error(err),
		)
		return true, nil
	}
	return !has, nil
}

func (f *Flow) rejectInactive(ctx context.Context, sess *identitydomain.Session) error {
	if err := f.flow.ClearSuppression(ctx); err != nil {
		f.log.Warn("clear suppression flag", zap.Error(err))
	}
	if err := f.provider.SignOut(ctx, sess.AccessToken, true); err != nil {
		f.log.Warn("sign out inactive account", zap.Error(err))
	}
	if err := f.flow.Purge(ctx); err != nil {
		f.log.Warn("purge flow state", zap.Error(err))
	}

	f.mu.Lock()
	f.step = StepEmail
	f.code = ""
	f.attempted = false
	f.hadError = false
	f.stopDebounceLocked()
	f.mu.Unlock()
	return ErrAccountInactive
}

// Resend clears the current entry and error latch, then requests a new code
// for the same address.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	email := f.email
	f.code = ""
	f.attempted = false
	f.hadError = false
	f.stopDebounceLocked()
	f.mu.Unlock()

	if email == "" {
		return ErrEmailRequired
	}
	return f.SendCode(ctx, email)
}

// Back abandons code entry and returns to the email step.
func (f *Flow) Back(ctx context.Context) {
	f.mu.Lock()
	f.step = StepEmail
	f.code = ""
	f.sentAt = time.Time{}
	f.attempted = false
	f.hadError = false
	f.first = false
	f.stopDebounceLocked()
	f.mu.Unlock()

	if err := f.flow.ClearResume(ctx); err != nil {
		f.log.Warn("clear resume snapshot", zap.Error(err))
	}
}

// Close cancels pending timers. The flow must not be used afterwards.
func (f *Flow) Close() {
	f.mu.Lock()
	f.closed = true
	f.stopDebounceLocked()
	f.mu.Unlock()
}

func (f *Flow) stopDebounceLocked() {
	if f.debounceTimer != nil {
		f.debounceTimer.Stop()
		f.debounceTimer = nil
	}
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
