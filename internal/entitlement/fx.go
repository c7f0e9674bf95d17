package entitlement

import (
	"github.com/lumera-ai/lumera/internal/entitlement/repository"
	"github.com/lumera-ai/lumera/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
