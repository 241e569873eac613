package catalog

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NewRefreshTask builds the catalog refresh job. Only one may be queued at a time.
func NewRefreshTask() (*asynq.Task, error) {
	return task.NewJSONTask(taskname.CatalogRefresh, struct{}{},
		asynq.Queue(taskname.QueueLow),
		asynq.MaxRetry(3),
		asynq.Unique(10*time.Minute),
	)
}

func (s *Service) HandleRefreshTask(ctx context.Context, t *asynq.Task) error {
	created, err := s.Refresh(ctx)
	if err != nil {
		zap.L().Error("[Catalog] refresh job failed", zap.Error(err))
		return err
	}
	zap.L().Info("[Catalog] refresh job done", zap.Int("created", created))
	return nil
}
