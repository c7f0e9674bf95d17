package profile

import (
	"github.com/lumera-ai/lumera/internal/profile/repository"
	"github.com/lumera-ai/lumera/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
