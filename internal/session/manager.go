// Package session owns the authenticated-user lifecycle: restoration on
// startup, reaction to identity-provider events, sign-out, and the bounded
// loading window that keeps the client from spinning forever.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lumera-ai/lumera/internal/flowstate"
	identitydomain "github.com/lumera-ai/lumera/internal/identity/domain"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"go.uber.org/zap"
)

const profileFetchTimeout = 15 * time.Second

// Status is the externally visible session state. Loading starts true and
// is guaranteed to resolve within the configured deadline.
type Status struct {
	User    *profiledomain.UserProfile
	Loading bool
}

type Manager struct {
	log      *zap.Logger
	provider identitydomain.Provider
	profiles profiledomain.Service
	flow     flowstate.Store

	deadline time.Duration

	mu          sync.Mutex
	user        *profiledomain.UserProfile
	session     *identitydomain.Session
	loading     bool
	seq         uint64
	inFlight    map[string]struct{} // identity ids with a fetch in flight
	closed      bool
	watchers    map[int]chan Status
	nextWatcher int

	deadlineTimer *time.Timer
}

func New(log *zap.Logger, provider identitydomain.Provider, profiles profiledomain.Service, flow flowstate.Store, loadingDeadline time.Duration) *Manager {
	if loadingDeadline <= 0 {
		loadingDeadline = 4 * time.Second
	}
	m := &Manager{
		log:      log.Named("session.manager"),
		provider: provider,
		profiles: profiles,
		flow:     flow,
		deadline: loadingDeadline,
		loading:  true,
		inFlight: make(map[string]struct{}),
		watchers: make(map[int]chan Status),
	}
	// The loading window is bounded no matter what the network does.
	m.deadlineTimer = time.AfterFunc(m.deadline, m.resolveLoadingDeadline)
	return m
}

// Restore resolves the startup session: a locally cached bearer credential
// is validated first (legacy bypass path); otherwise the provider is asked
// for an existing session. Neither yielding a session settles the manager
// into the unauthenticated terminal state.
func (m *Manager) Restore(ctx context.Context) error {
	if token, ok, err := m.flow.BearerToken(ctx); err == nil && ok {
		sess, verr := m.provider.ValidateToken(ctx, token)
		if verr == nil {
			m.adoptSession(sess)
			return nil
		}
		if errors.Is(verr, identitydomain.ErrTokenInvalid) {
			_ = m.flow.ClearBearerToken(ctx)
		} else {
			m.log.Warn("bearer validation failed", zap.Error(verr))
		}
	}

	sess, err := m.provider.CurrentSession(ctx)
	if err != nil {
		if !errors.Is(err, identitydomain.ErrNoSession) {
			m.log.Warn("session restore failed", zap.Error(err))
		}
		m.settleUnauthenticated()
		return nil
	}

	m.adoptSession(sess)
	return nil
}

// HandleIdentityEvent reacts to the provider's session event stream.
func (m *Manager) HandleIdentityEvent(event identitydomain.Event) {
	switch event.Kind {
	case identitydomain.EventEstablished:
		if event.Session == nil {
			return
		}
		m.adoptSession(event.Session)
	case identitydomain.EventEnded:
		m.mu.Lock()
		m.session = nil
		m.user = nil
		m.loading = false
		m.publishLocked()
		m.mu.Unlock()
	}
}

// adoptSession publishes a provisional user stub immediately and replaces
// it with the authoritative profile in the background. Sessions already past
// their expiry are discarded instead of adopted.
func (m *Manager) adoptSession(sess *identitydomain.Session) {
	if sess.Expired(time.Now()) {
		m.log.Warn("discarding expired session", zap.String("identity_id", sess.IdentityID))
		m.settleUnauthenticated()
		return
	}

	m.mu.Lock()
	m.session = sess
	m.user = profiledomain.Provisional(sess.IdentityID, sess.Email)
	m.publishLocked()
	m.mu.Unlock()

	go m.fetchProfile(sess, false)
}

// RefreshProfile re-fetches the authoritative profile for the current
// session, bypassing the duplicate-fetch guard.
func (m *Manager) RefreshProfile() {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return
	}
	go m.fetchProfile(sess, true)
}

// fetchProfile is tagged with a monotonically increasing sequence number;
// only the response matching the latest issued sequence commits. The
// duplicate guard is scoped per identity: a second concurrent fetch for the
// same identity short-circuits unless it is itself a retry, while a fetch
// for a different identity proceeds and supersedes the older one.
func (m *Manager) fetchProfile(sess *identitydomain.Session, isRetry bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, dup := m.inFlight[sess.IdentityID]; dup && !isRetry {
		m.mu.Unlock()
		return
	}
	m.inFlight[sess.IdentityID] = struct{}{}
	m.seq++
	myseq := m.seq
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), profileFetchTimeout)
	defer cancel()
	profile, err := m.profiles.Fetch(ctx, sess.IdentityID, sess.Email)

	m.mu.Lock()
	delete(m.inFlight, sess.IdentityID)
	if m.closed || myseq != m.seq {
		// A newer fetch was issued; this result is stale.
		m.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		m.user = profile
		m.loading = false
		m.publishLocked()
		m.mu.Unlock()
	case errors.Is(err, profiledomain.ErrProfileInactive):
		m.loading = false
		m.mu.Unlock()
		m.log.Warn("inactive profile, forcing sign-out", zap.String("identity_id", sess.IdentityID))
		forceCtx, forceCancel := context.WithTimeout(context.Background(), profileFetchTimeout)
		defer forceCancel()
		m.ForceSignOut(forceCtx)
	default:
		// Terminal failure still resolves loading; the provisional stub
		// remains published.
		m.log.Warn("profile fetch failed", zap.String("identity_id", sess.IdentityID), zap.Error(err))
		m.loading = false
		m.publishLocked()
		m.mu.Unlock()
	}
}

// SignOut invalidates the provider session, clears the bearer credential
// and coordination flags, and publishes an unauthenticated state.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.signOut(ctx, false)
}

// ForceSignOut additionally purges every identity-namespaced key. Used when
// a profile is found inactive.
func (m *Manager) ForceSignOut(ctx context.Context) error {
	return m.signOut(ctx, true)
}

func (m *Manager) signOut(ctx context.Context, force bool) error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.user = nil
	m.loading = false
	m.seq++ // invalidate any in-flight fetch
	m.publishLocked()
	m.mu.Unlock()

	token := ""
	if sess != nil {
		token = sess.AccessToken
	}
	if err := m.provider.SignOut(ctx, token, force); err != nil {
		m.log.Warn("provider sign-out failed", zap.Error(err))
	}

	if force {
		return m.flow.Purge(ctx)
	}
	if err := m.flow.ClearBearerToken(ctx); err != nil {
		return err
	}
	return m.flow.ClearSuppression(ctx)
}

// RedirectAllowed reports whether an automatic post-sign-in redirect may
// fire. It is false while a verification flow is still deciding the user's
// destination, and false while first-sign-in onboarding is pending.
func (m *Manager) RedirectAllowed(ctx context.Context) bool {
	s, err := m.flow.Suppression(ctx)
	if err != nil {
		m.log.Warn("suppression read failed", zap.Error(err))
		return false
	}
	return s == flowstate.SuppressionNone
}

// Status returns the current session snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{User: m.user, Loading: m.loading}
}

// Subscribe returns a channel of status snapshots and a cancel function.
// Slow consumers drop updates instead of blocking the manager.
func (m *Manager) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 16)

	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
	return ch, cancel
}

// Close stops timers and detaches watchers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.deadlineTimer != nil {
		m.deadlineTimer.Stop()
	}
	for id, ch := range m.watchers {
		close(ch)
		delete(m.watchers, id)
	}
}

func (m *Manager) resolveLoadingDeadline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.loading {
		return
	}
	m.log.Warn("loading deadline reached before session settled")
	m.loading = false
	m.publishLocked()
}

func (m *Manager) settleUnauthenticated() {
	m.mu.Lock()
	m.session = nil
	m.user = nil
	m.loading = false
	m.publishLocked()
	m.mu.Unlock()
}

// publishLocked snapshots state to all watchers; callers hold m.mu.
func (m *Manager) publishLocked() {
	if m.closed {
		return
	}
	status := Status{User: m.user, Loading: m.loading}
	for _, ch := range m.watchers {
		select {
		case ch <- status:
		default:
		}
	}
}
