package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db"
	"smallbiznis-rewards/pkg/hashistack/secretmanager"
	"smallbiznis-rewards/pkg/logger"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/idempotency"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/provider"
	"smallbiznis-rewards/services/referral"
	"smallbiznis-rewards/services/transaction"
	"smallbiznis-rewards/services/webhook"
	"smallbiznis-rewards/services/withdrawal"
)

// Models lists every table owned by the service.
var Models = []any{
	&account.Account{},
	&catalog.Task{},
	&catalog.TaskCategory{},
	&catalog.TaskFetchLog{},
	&provider.ConnectionLog{},
	&idempotency.Key{},
	&ledger.RewardLog{},
	&transaction.Transaction{},
	&webhook.Log{},
	&referral.Invite{},
	&withdrawal.PayrollEntry{},
	&notification.Notification{},
}

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.Invoke(migrate),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	app := fx.New(opts...)
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if err := app.Stop(context.Background()); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models...); err != nil {
		logger.Error("[Migrate] auto migrate failed", zap.Error(err))
		return err
	}
	logger.Info("[Migrate] schema up to date", zap.Int("models", len(Models)))
	return nil
}
