package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/internal/audit"
	"github.com/lexfirma/trustledger/internal/authorization"
	"github.com/lexfirma/trustledger/internal/billing"
	"github.com/lexfirma/trustledger/internal/clock"
	"github.com/lexfirma/trustledger/internal/compliance"
	"github.com/lexfirma/trustledger/internal/config"
	"github.com/lexfirma/trustledger/internal/journal"
	"github.com/lexfirma/trustledger/internal/logger"
	"github.com/lexfirma/trustledger/internal/migration"
	"github.com/lexfirma/trustledger/internal/notification"
	obsmetrics "github.com/lexfirma/trustledger/internal/observability/metrics"
	"github.com/lexfirma/trustledger/internal/providers/email"
	"github.com/lexfirma/trustledger/internal/providers/pdf"
	"github.com/lexfirma/trustledger/internal/scheduler"
	"github.com/lexfirma/trustledger/internal/trust"
	"github.com/lexfirma/trustledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Providers
		email.Module,
		pdf.Module,
		notification.Module,
		authorization.Module,

		// Engine domains
		audit.Module,
		journal.Module,
		trust.Module,
		billing.Module,
		compliance.Module,

		// Background sweeps
		scheduler.Module,
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
