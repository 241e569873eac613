package notification

import (
	"context"

	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier never fails its caller. Errors are logged.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, message string, level Level)
	SystemEvent(ctx context.Context, code, message string, level Level)
}

type Service struct {
	node      *snowflake.Node
	publisher events.Publisher
	repo      repository.Repository[Notification]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Publisher events.Publisher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:      p.Node,
		publisher: p.Publisher,
		repo:      repository.ProvideStore[Notification](p.DB),
	}
}

func (s *Service) NotifyUser(ctx context.Context, userID, title, message string, level Level) {
	if userID == "" {
		return
	}
	n := &Notification{
		ID:      s.node.Generate().String(),
		UserID:  &userID,
		Title:   title,
		Message: message,
		Level:   level,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		zap.L().Warn("[Notification] failed to notify user", zap.String("user_id", userID), zap.String("title", title), zap.Error(err))
	}
}

func (s *Service) SystemEvent(ctx context.Context, code, message string, level Level) {
	n := &Notification{
		ID:      s.node.Generate().String(),
		Code:    code,
		Title:   code,
		Message: message,
		Level:   level,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		zap.L().Warn("[Notification] failed to record system event", zap.String("code", code), zap.Error(err))
	}

	events.PublishSafe(ctx, s.publisher, events.Event{
		Type:    events.SystemEvent,
		Key:     code,
		Payload: n,
	})
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	out, err := s.repo.Find(ctx, &Notification{UserID: &userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list notifications", err)
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.repo.FindOne(ctx, &Notification{ID: id, UserID: &userID})
	if err != nil {
		return errutil.Internal("failed to load notification", err)
	}
	if n == nil {
		return errutil.NotFound("notification not found", nil)
	}
	if err := s.repo.Update(ctx, id, map[string]any{"read": true}); err != nil {
		return errutil.Internal("failed to update notification", err)
	}
	return nil
}
