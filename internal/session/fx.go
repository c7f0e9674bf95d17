package session

import (
	"context"

	"github.com/lumera-ai/lumera/internal/config"
	"github.com/lumera-ai/lumera/internal/flowstate"
	"github.com/lumera-ai/lumera/internal/identity"
	identitydomain "github.com/lumera-ai/lumera/internal/identity/domain"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newManager(log *zap.Logger, provider identitydomain.Provider, profiles profiledomain.Service, flow flowstate.Store, cfg config.Config) *Manager {
	return New(log, provider, profiles, flow, cfg.SessionLoadingDeadline)
}

func registerHooks(lc fx.Lifecycle, m *Manager, bus *identity.Bus) {
	unsubscribe := bus.Subscribe(m.HandleIdentityEvent)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				_ = m.Restore(context.Background())
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			unsubscribe()
			m.Close()
			return nil
		},
	})
}

// Module wires the session manager and its identity event subscription.
var Module = fx.Module("session.manager",
	fx.Provide(newManager),
	fx.Invoke(registerHooks),
)
