package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumera-ai/lumera/internal/flowstate"
	identitydomain "github.com/lumera-ai/lumera/internal/identity/domain"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"go.uber.org/zap"
)

type providerStub struct {
	mu           sync.Mutex
	validated    *identitydomain.Session
	validateErr  error
	current      *identitydomain.Session
	currentErr   error
	currentBlock chan struct{}
	signOuts     []bool // global flag per call
}

func (p *providerStub) SendCode(ctx context.Context, email string) (*identitydomain.SendCodeResult, error) {
	return &identitydomain.SendCodeResult{OK: true}, nil
}

func (p *providerStub) VerifyCode(ctx context.Context, email, code string) (*identitydomain.Session, error) {
	return nil, identitydomain.ErrCodeInvalid
}

func (p *providerStub) CurrentSession(ctx context.Context) (*identitydomain.Session, error) {
	if p.currentBlock != nil {
		select {
		case <-p.currentBlock:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentErr != nil {
		return nil, p.currentErr
	}
	return p.current, nil
}

func (p *providerStub) ValidateToken(ctx context.Context, token string) (*identitydomain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.validateErr != nil {
		return nil, p.validateErr
	}
	return p.validated, nil
}

func (p *providerStub) SignOut(ctx context.Context, token string, global bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts = append(p.signOuts, global)
	return nil
}

func (p *providerStub) signOutCalls() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.signOuts...)
}

type profileServiceStub struct {
	mu    sync.Mutex
	fetch func(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error)
	calls int
}

func (s *profileServiceStub) Fetch(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error) {
	s.mu.Lock()
	s.calls++
	fetch := s.fetch
	s.mu.Unlock()
	if fetch == nil {
		return profiledomain.Provisional(identityID, email), nil
	}
	return fetch(ctx, identityID, email)
}

func (s *profileServiceStub) Update(ctx context.Context, identityID string, patch profiledomain.UpdateRequest) (*profiledomain.UserProfile, error) {
	return nil, profiledomain.ErrProfileNotFound
}

func (s *profileServiceStub) CompleteRegistration(identityID string, metadata map[string]any) {}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testSession() *identitydomain.Session {
	return &identitydomain.Session{
		IdentityID:  "id-1",
		Email:       "user@example.com",
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func newTestManager(provider identitydomain.Provider, profiles profiledomain.Service, flow flowstate.Store, deadline time.Duration) *Manager {
	return New(zap.NewNop(), provider, profiles, flow, deadline)
}

func TestRestoreWithValidBearerToken(t *testing.T) {
	flow := flowstate.NewMemoryStore()
	_ = flow.SetBearerToken(context.Background(), "cached-token")

	provider := &providerStub{validated: testSession()}
	profiles := &profileServiceStub{}
	m := newTestManager(provider, profiles, flow, time.Second)
	defer m.Close()

	if err := m.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	waitFor(t, "user to settle", func() bool {
		st := m.Status()
		return st.User != nil && !st.Loading
	})
	if st := m.Status(); st.User.IdentityID != "id-1" {
		t.Fatalf("expected restored user, got %+v", st.User)
	}
}

func TestRestoreInvalidBearerFallsBackToProviderSession(t *testing.T) {
	flow := flowstate.NewMemoryStore()
	_ = flow.SetBearerToken(context.Background(), "stale-token")

	provider := &providerStub{
		validateErr: identitydomain.ErrTokenInvalid,
		current:     testSession(),
	}
	profiles := &profileServiceStub{}
	m := newTestManager(provider, profiles, flow, time.Second)
	defer m.Close()

	_ = m.Restore(context.Background())

	waitFor(t, "user to settle", func() bool {
		st := m.Status()
		return st.User != nil && !st.Loading
	})
	if _, ok, _ := flow.BearerToken(context.Background()); ok {
		t.Fatal("expected invalid bearer token to be cleared")
	}
}

func TestRestoreWithoutSessionSettlesUnauthenticated(t *testing.T) {
	provider := &providerStub{currentErr: identitydomain.ErrNoSession}
	m := newTestManager(provider, &profileServiceStub{}, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	_ = m.Restore(context.Background())

	st := m.Status()
	if st.User != nil {
		t.Fatal("expected no user")
	}
	if st.Loading {
		t.Fatal("expected loading resolved")
	}
}

func TestLoadingDeadlineAlwaysResolves(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	provider := &providerStub{currentBlock: block}

	m := newTestManager(provider, &profileServiceStub{}, flowstate.NewMemoryStore(), 30*time.Millisecond)
	defer m.Close()

	go func() { _ = m.Restore(context.Background()) }()

	waitFor(t, "loading deadline", func() bool { return !m.Status().Loading })
}

func TestIdentityEventPublishesStubThenAuthoritativeProfile(t *testing.T) {
	release := make(chan struct{})
	profiles := &profileServiceStub{
		fetch: func(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error) {
			<-release
			p := profiledomain.Provisional(identityID, email)
			p.Plan = "creator"
			return p, nil
		},
	}
	m := newTestManager(&providerStub{}, profiles, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: testSession()})

	// Stub is visible immediately, before the authoritative fetch lands.
	st := m.Status()
	if st.User == nil || st.User.Plan != "free" {
		t.Fatalf("expected provisional stub on free plan, got %+v", st.User)
	}

	close(release)
	waitFor(t, "authoritative profile", func() bool {
		st := m.Status()
		return st.User != nil && st.User.Plan == "creator" && !st.Loading
	})
}

func TestDuplicateFetchShortCircuits(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	profiles := &profileServiceStub{}
	profiles.fetch = func(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error) {
		started <- struct{}{}
		<-release
		return profiledomain.Provisional(identityID, email), nil
	}
	m := newTestManager(&providerStub{}, profiles, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	event := identitydomain.Event{Kind: identitydomain.EventEstablished, Session: testSession()}
	m.HandleIdentityEvent(event)
	<-started
	m.HandleIdentityEvent(event)

	// Give the duplicate a chance to start if the guard were broken.
	time.Sleep(50 * time.Millisecond)
	profiles.mu.Lock()
	calls := profiles.calls
	profiles.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected duplicate fetch to short-circuit, got %d calls", calls)
	}
	close(release)
}

func TestFetchForNewIdentitySupersedesInFlightFetch(t *testing.T) {
	releaseA := make(chan struct{})
	profiles := &profileServiceStub{}
	profiles.fetch = func(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error) {
		if identityID == "id-a" {
			<-releaseA
		}
		return profiledomain.Provisional(identityID, email), nil
	}
	m := newTestManager(&providerStub{}, profiles, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	sessA := &identitydomain.Session{IdentityID: "id-a", Email: "a@example.com", AccessToken: "tok-a", ExpiresAt: time.Now().Add(time.Hour)}
	sessB := &identitydomain.Session{IdentityID: "id-b", Email: "b@example.com", AccessToken: "tok-b", ExpiresAt: time.Now().Add(time.Hour)}

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: sessA})
	// B signs in while A's authoritative fetch is still blocked. The
	// duplicate guard is per identity, so B's fetch must run, not be
	// swallowed by A's.
	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: sessB})

	waitFor(t, "b's authoritative profile", func() bool {
		st := m.Status()
		return st.User != nil && st.User.IdentityID == "id-b" && !st.Loading
	})

	// A's fetch finally returns; its sequence is stale and must not commit
	// A's profile against B's session.
	close(releaseA)
	time.Sleep(50 * time.Millisecond)
	if st := m.Status(); st.User == nil || st.User.IdentityID != "id-b" {
		t.Fatalf("session is id-b but published profile is %+v", st.User)
	}
}

func TestExpiredSessionIsNotAdopted(t *testing.T) {
	sess := testSession()
	sess.ExpiresAt = time.Now().Add(-time.Minute)

	provider := &providerStub{current: sess}
	profiles := &profileServiceStub{}
	m := newTestManager(provider, profiles, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	_ = m.Restore(context.Background())

	st := m.Status()
	if st.User != nil {
		t.Fatalf("expected expired session to be discarded, got user %+v", st.User)
	}
	if st.Loading {
		t.Fatal("expected loading resolved")
	}
	profiles.mu.Lock()
	calls := profiles.calls
	profiles.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no profile fetch for an expired session, got %d", calls)
	}
}

func TestStaleFetchResultDiscarded(t *testing.T) {
	slowRelease := make(chan struct{})
	call := 0
	var mu sync.Mutex
	profiles := &profileServiceStub{}
	profiles.fetch = func(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error) {
		mu.Lock()
		call++
		mine := call
		mu.Unlock()
		p := profiledomain.Provisional(identityID, email)
		if mine == 1 {
			<-slowRelease
			p.Plan = "stale"
			return p, nil
		}
		p.Plan = "fresh"
		return p, nil
	}
	m := newTestManager(&providerStub{}, profiles, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: testSession()})
	waitFor(t, "first fetch to start", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return call == 1
	})

	// A retry bypasses the in-flight guard and issues a newer sequence.
	m.RefreshProfile()
	waitFor(t, "fresh profile", func() bool {
		st := m.Status()
		return st.User != nil && st.User.Plan == "fresh"
	})

	// Now let the stale first fetch return; it must not overwrite state.
	close(slowRelease)
	time.Sleep(50 * time.Millisecond)
	if st := m.Status(); st.User.Plan != "fresh" {
		t.Fatalf("stale fetch overwrote state: plan=%q", st.User.Plan)
	}
}

func TestInactiveProfileForcesSignOut(t *testing.T) {
	flow := flowstate.NewMemoryStore()
	_ = flow.SetBearerToken(context.Background(), "tok")

	profiles := &profileServiceStub{
		fetch: func(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error) {
			return nil, profiledomain.ErrProfileInactive
		},
	}
	provider := &providerStub{}
	m := newTestManager(provider, profiles, flow, time.Second)
	defer m.Close()

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: testSession()})

	waitFor(t, "forced sign-out", func() bool {
		calls := provider.signOutCalls()
		return len(calls) == 1 && calls[0]
	})
	waitFor(t, "user cleared", func() bool {
		st := m.Status()
		return st.User == nil && !st.Loading
	})
	if _, ok, _ := flow.BearerToken(context.Background()); ok {
		t.Fatal("expected forced sign-out to purge namespaced keys")
	}
}

func TestTerminalFetchFailureStillResolvesLoading(t *testing.T) {
	profiles := &profileServiceStub{
		fetch: func(ctx context.Context, identityID, email string) (*profiledomain.UserProfile, error) {
			return nil, errors.Join(profiledomain.ErrProfileUnavailable, errors.New("retry budget exhausted"))
		},
	}
	m := newTestManager(&providerStub{}, profiles, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: testSession()})

	waitFor(t, "loading resolved", func() bool { return !m.Status().Loading })
	// The provisional stub stays visible so the UI has something to show.
	if st := m.Status(); st.User == nil {
		t.Fatal("expected provisional user to remain after terminal failure")
	}
}

func TestSessionEndedEventClearsUser(t *testing.T) {
	m := newTestManager(&providerStub{}, &profileServiceStub{}, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: testSession()})
	waitFor(t, "user set", func() bool { return m.Status().User != nil })

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEnded})
	if st := m.Status(); st.User != nil {
		t.Fatal("expected user cleared on session end")
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	m := newTestManager(&providerStub{}, &profileServiceStub{}, flowstate.NewMemoryStore(), time.Second)
	defer m.Close()

	ch, cancel := m.Subscribe()
	defer cancel()

	m.HandleIdentityEvent(identitydomain.Event{Kind: identitydomain.EventEstablished, Session: testSession()})

	select {
	case st := <-ch:
		if st.User == nil {
			t.Fatal("expected user in published status")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}
}
