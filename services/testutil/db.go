package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"smallbiznis-rewards/pkg/db"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database migrated with models.
// The pool is pinned to a single connection, so code under test must run
// transaction bodies on the tx handle only. Set TEST_SQL=1 to log statements.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)

	var gormLogger logger.Interface = logger.Default.LogMode(logger.Silent)
	if os.Getenv("TEST_SQL") == "1" {
		z, _ := zap.NewDevelopment()
		gormLogger = db.NewZapGormLogger(z, logger.Info, true)
	}

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if len(models) > 0 {
		if err := conn.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test database: %v", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("get sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return conn
}
