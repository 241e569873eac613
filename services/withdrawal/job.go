package withdrawal

import (
	"context"
	"fmt"
	"time"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func NewInitiateTask(txRef string) (*asynq.Task, error) {
	return task.NewJSONTask(taskname.WithdrawalInitiate, txRefPayload{TxRef: txRef},
		asynq.Queue(taskname.QueueCritical),
		asynq.MaxRetry(3),
	)
}

func NewConfirmTask(txRef string) (*asynq.Task, error) {
	return task.NewJSONTask(taskname.WithdrawalConfirm, txRefPayload{TxRef: txRef},
		asynq.Queue(taskname.QueueDefault),
		asynq.MaxRetry(3),
	)
}

func NewReconcileTask() (*asynq.Task, error) {
	return task.NewJSONTask(taskname.WithdrawalReconcile, struct{}{},
		asynq.Queue(taskname.QueueDefault),
		asynq.MaxRetry(1),
		asynq.Unique(5*time.Minute),
	)
}

func NewPayrollTask() (*asynq.Task, error) {
	return task.NewJSONTask(taskname.PayrollRun, struct{}{},
		asynq.Queue(taskname.QueueDefault),
		asynq.MaxRetry(1),
		asynq.Unique(time.Hour),
	)
}

func processIn(d time.Duration) asynq.Option {
	return asynq.ProcessIn(d)
}

// skipMissing stops retries for transactions that no longer exist.
func skipMissing(err error) error {
	if errutil.Is(err, errutil.StatusNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (s *Service) HandleInitiateTask(ctx context.Context, t *asynq.Task) error {
	p, err := task.Decode[txRefPayload](t)
	if err != nil {
		return err
	}
	if err := s.Initiate(ctx, p.TxRef); err != nil {
		zap.L().Error("[Withdrawal] initiate job failed", zap.String("tx_ref", p.TxRef), zap.Error(err))
		return skipMissing(err)
	}
	return nil
}

func (s *Service) HandleConfirmTask(ctx context.Context, t *asynq.Task) error {
	p, err := task.Decode[txRefPayload](t)
	if err != nil {
		return err
	}
	if err := s.Confirm(ctx, p.TxRef); err != nil {
		zap.L().Error("[Withdrawal] confirm job failed", zap.String("tx_ref", p.TxRef), zap.Error(err))
		return skipMissing(err)
	}
	return nil
}

func (s *Service) HandleReconcileTask(ctx context.Context, _ *asynq.Task) error {
	_, err := s.ReconcileStuck(ctx)
	return err
}

func (s *Service) HandlePayrollTask(ctx context.Context, _ *asynq.Task) error {
	_, err := s.RunPayroll(ctx)
	return err
}
