package referral

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func NewRepairTask() (*asynq.Task, error) {
	return task.NewJSONTask(taskname.ReferralRepair, struct{}{},
		asynq.Queue(taskname.QueueLow),
		asynq.MaxRetry(1),
		asynq.Unique(30*time.Minute),
	)
}

func (s *Service) HandleRepairTask(ctx context.Context, _ *asynq.Task) error {
	n, err := s.RepairMissingInvites(ctx)
	if err != nil {
		zap.L().Error("[Referral] repair job failed", zap.Error(err))
		return err
	}
	zap.L().Info("[Referral] repair job done", zap.Int("repaired", n))
	return nil
}
