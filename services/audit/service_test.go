package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/testutil"
	"smallbiznis-rewards/services/transaction"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type memStore struct {
	objects map[string][]byte
	err     error
}

func (m *memStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = body
	return nil
}

func newService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &account.Account{}, &ledger.RewardLog{}, &transaction.Transaction{}, &notification.Notification{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	publisher := events.LogPublisher{}
	ledgerSvc := ledger.NewService(ledger.ServiceParams{
		DB: db, Node: node, Publisher: publisher,
		TxStore: transaction.NewStore(transaction.StoreParams{DB: db}),
	})
	notifier := notification.NewService(notification.ServiceParams{DB: db, Node: node, Publisher: publisher})
	accounts := account.NewService(account.ServiceParams{DB: db, Node: node})

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := accounts.Ensure(context.Background(), id)
		require.NoError(t, err)
		_, err = ledgerSvc.Credit(context.Background(), ledger.CreditParams{UserID: id, Provider: "adgem", Category: "general", Amount: 1000})
		require.NoError(t, err)
	}

	return NewService(ServiceParams{Ledger: ledgerSvc, Notifier: notifier}), ledgerSvc, db
}

func TestRunCleanLedger(t *testing.T) {
	svc, _, _ := newService(t)
	store := &memStore{objects: map[string][]byte{}}
	svc.store = store

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Users)
	require.True(t, report.Clean())
	require.Len(t, store.objects, 1)
	require.True(t, strings.HasPrefix(report.ObjectKey, "audits/ledger-"))
}

func TestRunFlagsDrift(t *testing.T) {
	svc, _, db := newService(t)

	require.NoError(t, db.Model(&account.Account{}).Where("user_id = ?", "u2").Update("balance", 999999).Error)
	require.NoError(t, db.Model(&ledger.RewardLog{}).Where("user_id = ?", "u3").Update("amount", 5).Error)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Len(t, report.Inconsistent, 2)
	require.Len(t, report.BrokenChains, 1)
	require.Equal(t, "u3", report.BrokenChains[0].UserID)

	var failures int64
	require.NoError(t, db.Model(&notification.Notification{}).Where("code = ?", "LEDGER_AUDIT_FAILED").Count(&failures).Error)
	require.Equal(t, int64(1), failures)
}

func TestUploadFailureIsNotFatal(t *testing.T) {
	svc, _, _ := newService(t)
	svc.store = &memStore{objects: map[string][]byte{}, err: errors.New("bucket gone")}

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.ObjectKey)
}
