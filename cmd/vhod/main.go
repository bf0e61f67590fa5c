package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/vhodhq/vhod/internal/allocation"
	"github.com/vhodhq/vhod/internal/billing"
	"github.com/vhodhq/vhod/internal/building"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/config"
	"github.com/vhodhq/vhod/internal/directory"
	"github.com/vhodhq/vhod/internal/events"
	"github.com/vhodhq/vhod/internal/expense"
	"github.com/vhodhq/vhod/internal/intercom"
	"github.com/vhodhq/vhod/internal/metering"
	"github.com/vhodhq/vhod/internal/migration"
	"github.com/vhodhq/vhod/internal/observability"
	"github.com/vhodhq/vhod/internal/policy"
	"github.com/vhodhq/vhod/internal/providers/pdf"
	"github.com/vhodhq/vhod/internal/server"
	"github.com/vhodhq/vhod/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure.
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		events.Module,

		// Functional domains.
		building.Module,
		directory.Module,
		policy.Module,
		expense.Module,
		metering.Module,
		allocation.Module,
		billing.Module,
		intercom.Module,
		pdf.Module,

		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
