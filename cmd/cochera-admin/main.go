package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fauter/cochera-admin/internal/clock"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/migration"
	"github.com/fauter/cochera-admin/internal/observability"
	"github.com/fauter/cochera-admin/internal/scheduler"
	"github.com/fauter/cochera-admin/internal/server"
	"github.com/fauter/cochera-admin/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and every domain module behind it
		server.Module,

		// Session maintenance
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
