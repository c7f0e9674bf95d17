package migration

import (
	"strings"

	"github.com/lumera-ai/lumera/internal/config"
	entitlementdomain "github.com/lumera-ai/lumera/internal/entitlement/domain"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// sqlite is used for local development and tests; the versioned
		// migrations target postgres only.
		if strings.ToLower(cfg.DBType) == "sqlite" {
			return conn.AutoMigrate(
				&profiledomain.UserProfile{},
				&entitlementdomain.CreditLedgerEntry{},
				&entitlementdomain.UsageRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
