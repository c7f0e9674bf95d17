package flowstate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu          sync.Mutex
	suppression Suppression
	resume      *ResumeSnapshot
	bearer      string
	hasBearer   bool
	lockToken   string
	lockExpires time.Time
	now         func() time.Time
}

// NewMemoryStore returns a process-local Store. This is the default backend
// and the one used in tests.
func NewMemoryStore() Store {
	return &memoryStore{now: time.Now}
}

func (m *memoryStore) SetSuppression(ctx context.Context, s Suppression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppression = s
	return nil
}

func (m *memoryStore) Suppression(ctx context.Context) (Suppression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppression, nil
}

func (m *memoryStore) ClearSuppression(ctx context.Context) error {
	return m.SetSuppression(ctx, SuppressionNone)
}

func (m *memoryStore) SaveResume(ctx context.Context, snap ResumeSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := snap
	m.resume = &copied
	return nil
}

func (m *memoryStore) LoadResume(ctx context.Context) (ResumeSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resume == nil {
		return ResumeSnapshot{}, false, nil
	}
	return *m.resume, true, nil
}

func (m *memoryStore) ClearResume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resume = nil
	return nil
}

func (m *memoryStore) SetBearerToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bearer = token
	m.hasBearer = token != ""
	return nil
}

func (m *memoryStore) BearerToken(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bearer, m.hasBearer, nil
}

func (m *memoryStore) ClearBearerToken(ctx context.Context) error {
	return m.SetBearerToken(ctx, "")
}

func (m *memoryStore) AcquireVerification(ctx context.Context, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.lockToken != "" && now.Before(m.lockExpires) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.lockToken = token
	m.lockExpires = now.Add(ttl)
	return token, true, nil
}

func (m *memoryStore) ReleaseVerification(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != "" && m.lockToken == token {
		m.lockToken = ""
	}
	return nil
}

func (m *memoryStore) Purge(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppression = SuppressionNone
	m.resume = nil
	m.bearer = ""
	m.hasBearer = false
	m.lockToken = ""
	return nil
}
