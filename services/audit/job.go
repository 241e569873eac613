package audit

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
)

func NewAuditTask() (*asynq.Task, error) {
	return task.NewJSONTask(taskname.LedgerAudit, struct{}{},
		asynq.Queue(taskname.QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		asynq.Unique(time.Hour),
	)
}

func (s *Service) HandleAuditTask(ctx context.Context, _ *asynq.Task) error {
	_, err := s.Run(ctx)
	return err
}
