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
	"smallbiznis-rewards/pkg/health"
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/logger"
	"smallbiznis-rewards/pkg/minio"
	"smallbiznis-rewards/pkg/otelcol"
	"smallbiznis-rewards/pkg/profiling"
	"smallbiznis-rewards/pkg/redis"
	"smallbiznis-rewards/pkg/security"
	"smallbiznis-rewards/pkg/server"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/audit"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/idempotency"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/payout"
	"smallbiznis-rewards/services/provider"
	"smallbiznis-rewards/services/referral"
	"smallbiznis-rewards/services/transaction"
	"smallbiznis-rewards/services/webhook"
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
		health.Module,
		task.Client,

		transaction.Module,
		account.Module,
		ledger.Module,
		notification.Module,
		provider.Module,
		catalog.Module,
		idempotency.Module,
		webhook.Module,
		payout.Module,
		referral.Module,
		withdrawal.Module,
		audit.Module,

		account.Server,
		ledger.Server,
		notification.Server,
		provider.Server,
		catalog.Server,
		webhook.Server,
		referral.Server,
		withdrawal.Server,
		audit.Server,

		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
