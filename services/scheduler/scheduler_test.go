package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/taskname"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.types = append(e.types, t.Type())
	return &asynq.TaskInfo{ID: "id", Type: t.Type()}, nil
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDaily(t *testing.T) {
	next := daily(2, 0)
	require.Equal(t, at("2026-10-18T02:00:00Z"), next(at("2026-10-18T01:59:00Z")))
	require.Equal(t, at("2026-10-19T02:00:00Z"), next(at("2026-10-18T02:00:00Z")))
	require.Equal(t, at("2026-10-19T02:00:00Z"), next(at("2026-10-18T13:00:00Z")))
}

func TestWeekly(t *testing.T) {
	next := weekly(time.Sunday, 0, 0)
	// 2026-10-18 is a Sunday
	require.Equal(t, at("2026-10-25T00:00:00Z"), next(at("2026-10-18T00:00:00Z")))
	require.Equal(t, at("2026-10-25T00:00:00Z"), next(at("2026-10-20T08:30:00Z")))
	require.Equal(t, at("2026-10-18T00:00:00Z"), next(at("2026-10-17T23:59:00Z")))
}

func TestEvery(t *testing.T) {
	next := every(10 * time.Minute)
	require.Equal(t, at("2026-10-18T10:10:00Z"), next(at("2026-10-18T10:03:12Z")))
	require.Equal(t, at("2026-10-18T10:20:00Z"), next(at("2026-10-18T10:10:00Z")))
}

func TestDefaultJobsBuildTasks(t *testing.T) {
	want := map[string]bool{
		taskname.CatalogRefresh:      true,
		taskname.WithdrawalReconcile: true,
		taskname.PayrollRun:          true,
		taskname.LedgerAudit:         true,
		taskname.ReferralRepair:      true,
	}

	enq := &recordingEnqueuer{}
	s := &Scheduler{enqueuer: enq}
	for _, job := range DefaultJobs() {
		s.fire(context.Background(), job)
	}

	require.Len(t, enq.types, len(want))
	for _, typ := range enq.types {
		require.True(t, want[typ], typ)
	}
}

func TestFireToleratesEnqueueErrors(t *testing.T) {
	s := &Scheduler{enqueuer: &recordingEnqueuer{err: errors.New("task already exists")}}
	require.NotPanics(t, func() {
		s.fire(context.Background(), DefaultJobs()[0])
	})
}

func TestStartStop(t *testing.T) {
	enq := &recordingEnqueuer{}
	s := &Scheduler{
		enqueuer: enq,
		now:      func() time.Time { return time.Now().UTC() },
		jobs: []Job{{
			Name:  "tick",
			Next:  func(now time.Time) time.Time { return now.Add(5 * time.Millisecond) },
			Build: DefaultJobs()[0].Build,
		}},
	}

	s.Start()
	require.Eventually(t, func() bool {
		enq.mu.Lock()
		defer enq.mu.Unlock()
		return len(enq.types) > 0
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}
