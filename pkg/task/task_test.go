package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type payload struct {
	TxRef string `json:"tx_ref"`
}

func TestJSONTaskRoundTrip(t *testing.T) {
	task, err := NewJSONTask(taskname.WithdrawalInitiate, payload{TxRef: "WD-1"}, asynq.Queue(taskname.QueueCritical))
	require.NoError(t, err)
	require.Equal(t, taskname.WithdrawalInitiate, task.Type())

	got, err := Decode[payload](task)
	require.NoError(t, err)
	require.Equal(t, "WD-1", got.TxRef)
}

func TestDecodeMalformedSkipsRetry(t *testing.T) {
	_, err := Decode[payload](asynq.NewTask(taskname.WithdrawalConfirm, []byte("{")))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestObservePassesThrough(t *testing.T) {
	boom := errors.New("boom")
	h := Observe(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		return boom
	}))
	require.ErrorIs(t, h.ProcessTask(context.Background(), asynq.NewTask(taskname.LedgerAudit, nil)), boom)

	ok := Observe(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error { return nil }))
	require.NoError(t, ok.ProcessTask(context.Background(), asynq.NewTask(taskname.LedgerAudit, nil)))
}

func TestServerConfig(t *testing.T) {
	cfg := &config.Config{}
	require.Equal(t, 10, serverConfig(cfg).Concurrency)

	cfg.Worker.Concurrency = 4
	cfg.Worker.ShutdownTimeout = 5 * time.Second
	sc := serverConfig(cfg)
	require.Equal(t, 4, sc.Concurrency)
	require.Equal(t, 5*time.Second, sc.ShutdownTimeout)
	require.Greater(t, sc.Queues[taskname.QueueCritical], sc.Queues[taskname.QueueLow])
}
