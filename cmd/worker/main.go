package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/pkg/featureflags"
	"smallbiznis-rewards/pkg/gen"
	"smallbiznis-rewards/pkg/hashistack/secretmanager"
	"smallbiznis-rewards/pkg/logger"
	"smallbiznis-rewards/pkg/minio"
	"smallbiznis-rewards/pkg/otelcol"
	"smallbiznis-rewards/pkg/profiling"
	"smallbiznis-rewards/pkg/redis"
	"smallbiznis-rewards/pkg/security"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/audit"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/payout"
	"smallbiznis-rewards/services/provider"
	"smallbiznis-rewards/services/referral"
	"smallbiznis-rewards/services/scheduler"
	"smallbiznis-rewards/services/transaction"
	"smallbiznis-rewards/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		security.Module,
		featureflags.Module,
		events.Module,
		minio.Module,
		task.Client,
		task.Server,

		transaction.Module,
		account.Module,
		ledger.Module,
		notification.Module,
		provider.Module,
		catalog.Module,
		payout.Module,
		referral.Module,
		withdrawal.Module,
		audit.Module,

		catalog.Worker,
		referral.Worker,
		withdrawal.Worker,
		audit.Worker,
		scheduler.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
