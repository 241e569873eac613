package transaction

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Store owns Transaction persistence, including the terminal-state guard.
type Store struct {
	db   *gorm.DB
	repo repository.Repository[Transaction]
}

type StoreParams struct {
	fx.In
	DB *gorm.DB
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:   p.DB,
		repo: repository.ProvideStore[Transaction](p.DB),
	}
}

func (s *Store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *Store) Create(ctx context.Context, tx *gorm.DB, t *Transaction) error {
	return s.repo.WithTrx(tx).Create(ctx, t)
}

// GetByRef returns nil, nil when the reference is unknown.
func (s *Store) GetByRef(ctx context.Context, tx *gorm.DB, txRef string) (*Transaction, error) {
	return s.repo.WithTrx(tx).FindOne(ctx, &Transaction{TxRef: txRef})
}

func (s *Store) GetByProviderRef(ctx context.Context, providerRef string) (*Transaction, error) {
	return s.repo.FindOne(ctx, &Transaction{ProviderReference: providerRef})
}

// Transition moves txRef to status when it is still open. It reports false when the
// transaction is already terminal, so terminal states are never overwritten.
func (s *Store) Transition(ctx context.Context, tx *gorm.DB, txRef string, to Status, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	res := s.conn(tx).WithContext(ctx).
		Model(&Transaction{}).
		Where("tx_ref = ? AND status IN ?", txRef, Open).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementPoll bumps poll_count on an open transaction and returns the new value.
func (s *Store) IncrementPoll(ctx context.Context, txRef string) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Transaction{}).
			Where("tx_ref = ? AND status IN ?", txRef, Open).
			Update("poll_count", gorm.Expr("poll_count + 1"))
		if res.Error != nil {
			return res.Error
		}

		var t Transaction
		if err := tx.Select("poll_count").Where("tx_ref = ?", txRef).First(&t).Error; err != nil {
			return err
		}
		count = t.PollCount
		return nil
	})
	return count, err
}

// MarkRefunded sets refunded_at once. It reports false when the refund was already recorded.
func (s *Store) MarkRefunded(ctx context.Context, tx *gorm.DB, id string, at time.Time) (bool, error) {
	res := s.conn(tx).WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND refunded_at IS NULL", id).
		Update("refunded_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SumSince totals a user's transactions of txType created at or after since, ignoring failed ones.
func (s *Store) SumSince(ctx context.Context, tx *gorm.DB, userID string, txType Type, since time.Time) (int64, error) {
	var total int64
	err := s.conn(tx).WithContext(ctx).
		Model(&Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND tx_type = ? AND created_at >= ? AND status <> ?", userID, txType, since, StatusFailed).
		Scan(&total).Error
	return total, err
}

// OutstandingDebits totals the user's debiting transactions that were not refunded.
func (s *Store) OutstandingDebits(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	var total int64
	err := s.conn(tx).WithContext(ctx).
		Model(&Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND tx_type IN ? AND refunded_at IS NULL", userID, []Type{TypeWithdrawal, TypeSubscription}).
		Scan(&total).Error
	return total, err
}

// ListStale returns transactions left in status since before cutoff, oldest first.
func (s *Store) ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]*Transaction, error) {
	return s.repo.Find(ctx, &Transaction{Status: status},
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LT, Value: cutoff}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
		option.WithLimit(limit),
	)
}
