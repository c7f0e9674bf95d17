package identity

import (
	"github.com/lumera-ai/lumera/internal/identity/domain"
	"github.com/lumera-ai/lumera/internal/identity/httpclient"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(NewBus),
	fx.Provide(func(c *httpclient.Client) domain.Provider { return c }),
	fx.Provide(httpclient.New),
)
