package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lumera-ai/lumera/internal/clock"
	"github.com/lumera-ai/lumera/internal/config"
	"github.com/lumera-ai/lumera/internal/entitlement"
	"github.com/lumera-ai/lumera/internal/flowstate"
	"github.com/lumera-ai/lumera/internal/identity"
	"github.com/lumera-ai/lumera/internal/logger"
	"github.com/lumera-ai/lumera/internal/migration"
	"github.com/lumera-ai/lumera/internal/observability"
	"github.com/lumera-ai/lumera/internal/otp"
	"github.com/lumera-ai/lumera/internal/profile"
	"github.com/lumera-ai/lumera/internal/server"
	"github.com/lumera-ai/lumera/internal/session"
	"github.com/lumera-ai/lumera/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		flowstate.Module,

		// Functional domains
		identity.Module,
		profile.Module,
		session.Module,
		otp.Module,
		entitlement.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
