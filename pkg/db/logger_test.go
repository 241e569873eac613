package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm/logger"
)

func observed(level logger.LogLevel, showSQL bool) (*ZapGormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapGormLogger(zap.New(core), level, showSQL), logs
}

func query(sql string) func() (string, int64) {
	return func() (string, int64) { return sql, 1 }
}

func TestTraceLevels(t *testing.T) {
	l, logs := observed(logger.Warn, false)
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query("SELECT 1"), nil)
	require.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now(), query("SELECT 1"), logger.ErrRecordNotFound)
	require.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now(), query("SELECT 1"), errors.New("boom"))
	require.Equal(t, 1, logs.FilterMessage("gorm.query").Len())

	l.Trace(ctx, time.Now().Add(-time.Second), query("SELECT 2"), nil)
	require.Equal(t, 1, logs.FilterMessage("gorm.slow_query").Len())
}

func TestTraceShowSQL(t *testing.T) {
	l, logs := observed(logger.Info, true)
	l.Trace(context.Background(), time.Now(), query("SELECT 1"), nil)
	require.Equal(t, 1, logs.FilterMessage("gorm.query").Len())

	silent := l.LogMode(logger.Silent).(*ZapGormLogger)
	silent.Trace(context.Background(), time.Now(), query("SELECT 1"), errors.New("boom"))
	require.Equal(t, 1, logs.Len())
}

func TestParamsFilter(t *testing.T) {
	hidden, _ := observed(logger.Info, false)
	_, params := hidden.ParamsFilter(context.Background(), "UPDATE accounts SET pin_hash = ?", "secret")
	require.Nil(t, params)

	shown, _ := observed(logger.Info, true)
	_, params = shown.ParamsFilter(context.Background(), "UPDATE accounts SET pin_hash = ?", "secret")
	require.Equal(t, []interface{}{"secret"}, params)
}
