package idempotency

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smallbiznis-rewards/services/testutil"
)

func TestClaimRejectsSecondInsert(t *testing.T) {
	db := testutil.NewTestDB(t, &Key{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	g := NewGuard(GuardParams{DB: db, Node: node})
	ctx := context.Background()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return g.Claim(ctx, tx, "adgem", "tx-1", "u1")
	}))

	err = db.Transaction(func(tx *gorm.DB) error {
		return g.Claim(ctx, tx, "ADGEM", "tx-1", "u2")
	})
	require.True(t, errors.Is(err, ErrDuplicate))

	// same transaction id from another provider is a different key
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return g.Claim(ctx, tx, "wannads", "tx-1", "u1")
	}))

	seen, err := g.Seen(ctx, "adgem", "tx-1")
	require.NoError(t, err)
	require.True(t, seen)

	var n int64
	require.NoError(t, db.Model(&Key{}).Count(&n).Error)
	require.Equal(t, int64(2), n)
}
