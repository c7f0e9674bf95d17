package flowstate

import (
	"github.com/lumera-ai/lumera/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore selects the backend from configuration; memory is the default.
func NewStore(cfg config.Config, log *zap.Logger) (Store, error) {
	if cfg.FlowStateBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Named("flowstate").Info("using redis flow state", zap.String("addr", cfg.RedisAddr))
		return NewRedisStore(client)
	}
	return NewMemoryStore(), nil
}

// Module wires the shared flow state store.
var Module = fx.Module("flowstate",
	fx.Provide(NewStore),
)
