package account

import (
	"context"
	"strings"
	"testing"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/security"
	"smallbiznis-rewards/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Account{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node})
}

func TestEnsureIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "user-1")
	require.NoError(t, err)
	require.Regexp(t, `^REN-[0-9A-F]{8}$`, first.InviteCode)
	require.Zero(t, first.Balance)

	second, err := svc.Ensure(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.InviteCode, second.InviteCode)
}

func TestGetMissingAccount(t *testing.T) {
	svc := newService(t)

	_, err := svc.Get(context.Background(), "ghost")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestGetByInviteCodeIgnoresCase(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	acc, err := svc.Ensure(ctx, "user-1")
	require.NoError(t, err)

	found, err := svc.GetByInviteCode(ctx, " "+strings.ToLower(acc.InviteCode)+" ")
	require.NoError(t, err)
	require.Equal(t, acc.ID, found.ID)

	_, err = svc.GetByInviteCode(ctx, "REN-00000000")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestSetPIN(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Ensure(ctx, "user-1")
	require.NoError(t, err)

	require.True(t, errutil.Is(svc.SetPIN(ctx, "user-1", "12"), errutil.StatusBadRequest))
	require.NoError(t, svc.SetPIN(ctx, "user-1", "4321"))

	acc, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, security.CheckPIN(acc.PinHash, "4321"))
}
