package scheduler

import (
	"context"
	"sync"
	"time"

	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/services/audit"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/referral"
	"smallbiznis-rewards/services/withdrawal"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

// Job enqueues a task each time next says it is due.
type Job struct {
	Name  string
	Next  func(now time.Time) time.Time
	Build func() (*asynq.Task, error)
}

type Scheduler struct {
	enqueuer task.Enqueuer
	jobs     []Job
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(enqueuer task.Enqueuer) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		jobs:     DefaultJobs(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DefaultJobs: daily catalog refresh at 00:00, withdrawal sweep every 10 minutes,
// payroll on Sunday 00:00, ledger audit at 02:00 and invite repair at 03:00 (UTC).
func DefaultJobs() []Job {
	return []Job{
		{Name: "catalog.refresh", Next: daily(0, 0), Build: catalog.NewRefreshTask},
		{Name: "withdrawal.reconcile", Next: every(10 * time.Minute), Build: withdrawal.NewReconcileTask},
		{Name: "payroll.run", Next: weekly(time.Sunday, 0, 0), Build: withdrawal.NewPayrollTask},
		{Name: "ledger.audit", Next: daily(2, 0), Build: audit.NewAuditTask},
		{Name: "referral.repair", Next: daily(3, 0), Build: referral.NewRepairTask},
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.run(ctx, job)
		}(job)
	}
	zap.L().Info("[Scheduler] started", zap.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	for {
		now := s.now()
		next := job.Next(now)

		sleep := next.Sub(now)
		zap.L().Debug("[Scheduler] next run scheduled",
			zap.String("job", job.Name),
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleep),
		)
		select {
		case <-time.After(sleep):
			s.fire(ctx, job)
		case <-ctx.Done():
			zap.L().Info("[Scheduler] stopped", zap.String("job", job.Name))
			return
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	t, err := job.Build()
	if err != nil {
		zap.L().Error("[Scheduler] failed to build task", zap.String("job", job.Name), zap.Error(err))
		return
	}

	info, err := s.enqueuer.Enqueue(ctx, t)
	if err != nil {
		// asynq.Unique rejects duplicates from other scheduler replicas
		zap.L().Warn("[Scheduler] enqueue skipped", zap.String("job", job.Name), zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] enqueued", zap.String("job", job.Name), zap.String("task_id", info.ID))
}

// nextRunTime returns the next occurrence of hour:minute on or after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func daily(hour, minute int) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		next := nextRunTime(now, hour, minute)
		if next.Equal(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	}
}

func weekly(day time.Weekday, hour, minute int) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		next := daily(hour, minute)(now)
		for next.Weekday() != day {
			next = next.Add(24 * time.Hour)
		}
		return next
	}
}

func every(d time.Duration) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		return now.Truncate(d).Add(d)
	}
}
