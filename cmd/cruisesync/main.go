package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/harborlabs/cruisesync/internal/catalog"
	"github.com/harborlabs/cruisesync/internal/clock"
	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/harborlabs/cruisesync/internal/kv"
	"github.com/harborlabs/cruisesync/internal/lock"
	"github.com/harborlabs/cruisesync/internal/logger"
	"github.com/harborlabs/cruisesync/internal/memguard"
	"github.com/harborlabs/cruisesync/internal/migration"
	"github.com/harborlabs/cruisesync/internal/observability/tracing"
	"github.com/harborlabs/cruisesync/internal/pause"
	"github.com/harborlabs/cruisesync/internal/ratelimit"
	"github.com/harborlabs/cruisesync/internal/scheduler"
	"github.com/harborlabs/cruisesync/internal/server"
	"github.com/harborlabs/cruisesync/internal/sync/orchestrator"
	"github.com/harborlabs/cruisesync/internal/sync/report"
	"github.com/harborlabs/cruisesync/internal/transfer"
	"github.com/harborlabs/cruisesync/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		kv.Module,
		tracing.Module,
		migration.Module,

		// sync pipeline
		catalog.Module,
		lock.Module,
		pause.Module,
		transfer.Module,
		memguard.Module,
		report.Module,
		orchestrator.Module,
		scheduler.Module,

		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
