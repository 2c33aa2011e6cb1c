package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterflow/internal/aggregation"
	"github.com/smallbiznis/meterflow/internal/clock"
	"github.com/smallbiznis/meterflow/internal/config"
	"github.com/smallbiznis/meterflow/internal/eventstore"
	"github.com/smallbiznis/meterflow/internal/meter"
	"github.com/smallbiznis/meterflow/internal/migration"
	obsmetrics "github.com/smallbiznis/meterflow/internal/observability/metrics"
	"github.com/smallbiznis/meterflow/internal/progressive"
	"github.com/smallbiznis/meterflow/internal/ratelimit"
	"github.com/smallbiznis/meterflow/internal/subscription"
	"github.com/smallbiznis/meterflow/internal/threshold"
	"github.com/smallbiznis/meterflow/internal/usage"
	"github.com/smallbiznis/meterflow/pkg/db"
	"github.com/smallbiznis/meterflow/pkg/log"
	"github.com/smallbiznis/meterflow/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		telemetry.Module,
		db.Module,
		clock.Module,
		obsmetrics.Module,
		ratelimit.Module,
		migration.Module,

		// Functional domains
		meter.Module,
		usage.Module,
		eventstore.Module,
		aggregation.Module,
		subscription.Module,
		threshold.Module,
		progressive.Module,
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
