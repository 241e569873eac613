package notification

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestNotifyAndMarkRead(t *testing.T) {
	db := testutil.NewTestDB(t, &Notification{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(ServiceParams{DB: db, Node: node, Publisher: events.LogPublisher{}})
	ctx := context.Background()

	svc.NotifyUser(ctx, "u1", "Withdrawal Processing", "Your withdrawal is being processed.", LevelInfo)
	svc.SystemEvent(ctx, "WITHDRAWAL_FAIL", "provider rejected transfer", LevelError)

	items, err := svc.ListForUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.False(t, items[0].Read)

	require.NoError(t, svc.MarkRead(ctx, "u1", items[0].ID))
	require.True(t, errutil.Is(svc.MarkRead(ctx, "u2", items[0].ID), errutil.StatusNotFound))

	var system int64
	require.NoError(t, db.Model(&Notification{}).Where("user_id IS NULL").Count(&system).Error)
	require.Equal(t, int64(1), system)
}

func TestNotifyIsFailSoft(t *testing.T) {
	// no table migrated: writes fail and are only logged
	db := testutil.NewTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(ServiceParams{DB: db, Node: node, Publisher: events.LogPublisher{}})

	require.NotPanics(t, func() {
		svc.NotifyUser(context.Background(), "u1", "t", "m", LevelInfo)
		svc.SystemEvent(context.Background(), "CODE", "m", LevelWarning)
	})
}
