package ledger

import (
	"context"
	"errors"
	"time"

	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/db/pagination"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/pkg/metrics"
	"smallbiznis-rewards/pkg/reference"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/transaction"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("smallbiznis-rewards/ledger")

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	publisher events.Publisher
	txStore   *transaction.Store

	ledger  repository.Repository[RewardLog]
	account repository.Repository[account.Account]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Publisher events.Publisher
	TxStore   *transaction.Store
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		publisher: p.Publisher,
		txStore:   p.TxStore,

		ledger:  repository.ProvideStore[RewardLog](p.DB),
		account: repository.ProvideStore[account.Account](p.DB),
	}
}

func logFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Credit appends a RewardLog and increases the balance in its own transaction,
// then publishes reward.credited.
func (s *Service) Credit(ctx context.Context, p CreditParams) (*RewardLog, error) {
	var entry *RewardLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.CreditTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	events.PublishSafe(ctx, s.publisher, events.Event{
		Type:    events.RewardCredited,
		Key:     entry.UserID,
		Payload: entry,
	})
	return entry, nil
}

// LockAccount loads the account row of userID with SELECT ... FOR UPDATE.
func (s *Service) LockAccount(ctx context.Context, tx *gorm.DB, userID string) (*account.Account, error) {
	acc, err := s.account.WithTrx(tx).FindOne(ctx, &account.Account{UserID: userID}, option.WithLockingUpdate())
	if err != nil {
		return nil, errutil.Internal("failed to lock account", err)
	}
	if acc == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	return acc, nil
}

// CreditTx joins the caller's transaction. The account row lock serializes credits
// per user so the chain and sequence stay linear.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, p CreditParams) (*RewardLog, error) {
	ctx, span := tracer.Start(ctx, "ledger.Credit", trace.WithAttributes(
		attribute.String("user_id", p.UserID),
		attribute.String("category", p.Category),
		attribute.Int64("amount", p.Amount),
	))
	defer span.End()

	opts := append(logFields(ctx), zap.String("user_id", p.UserID))

	if p.UserID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if p.Amount <= 0 {
		return nil, errutil.BadRequest("credit amount must be positive", nil)
	}
	if p.Category == "" {
		p.Category = CategoryUncategorized
	}

	if _, err := s.LockAccount(ctx, tx, p.UserID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	last, err := s.lastEntry(ctx, tx, p.UserID)
	if err != nil {
		zap.L().With(opts...).Error("failed to read last ledger entry", zap.Error(err))
		return nil, errutil.Internal("failed to read ledger", err)
	}

	prevHash, seq := GenesisHash, int64(1)
	if last != nil {
		prevHash, seq = last.Hash, last.Sequence+1
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	trxID, err := reference.TransactionID(now)
	if err != nil {
		return nil, errutil.Internal("failed to generate transaction id", err)
	}

	entry := &RewardLog{
		ID:             s.node.Generate().String(),
		UserID:         p.UserID,
		Sequence:       seq,
		TaskID:         p.TaskID,
		Provider:       p.Provider,
		Category:       p.Category,
		Amount:         p.Amount,
		ProviderAmount: p.ProviderAmount,
		AdminAmount:    p.AdminAmount,
		Reference:      p.Reference,
		TransactionID:  trxID,
		PreviousHash:   prevHash,
		Metadata:       p.Metadata,
		CreatedAt:      now,
	}
	entry.Hash = entry.GenerateHash()

	if err := s.ledger.WithTrx(tx).Create(ctx, entry); err != nil {
		zap.L().With(opts...).Error("failed to append ledger entry", zap.Error(err))
		if repository.IsDuplicate(err) {
			return nil, errutil.Conflict("concurrent ledger write", err)
		}
		return nil, errutil.Internal("failed to append ledger entry", err)
	}

	res := tx.WithContext(ctx).Model(&account.Account{}).
		Where("user_id = ?", p.UserID).
		Update("balance", gorm.Expr("balance + ?", p.Amount))
	if res.Error != nil {
		zap.L().With(opts...).Error("failed to increase balance", zap.Error(res.Error))
		return nil, errutil.Internal("failed to increase balance", res.Error)
	}

	metrics.LedgerCredited.WithLabelValues(p.Category).Add(float64(p.Amount))
	zap.L().With(opts...).Info("ledger credited",
		zap.String("entry_id", entry.ID),
		zap.Int64("sequence", entry.Sequence),
		zap.Int64("amount", entry.Amount),
		zap.String("category", entry.Category),
	)
	return entry, nil
}

func (s *Service) lastEntry(ctx context.Context, tx *gorm.DB, userID string) (*RewardLog, error) {
	return s.ledger.WithTrx(tx).FindOne(ctx, &RewardLog{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "desc",
			Allow:   map[string]bool{"sequence": true},
		}),
	)
}

// HasEntry reports whether userID already holds an entry with category and reference.
func (s *Service) HasEntry(ctx context.Context, tx *gorm.DB, userID, category, ref string) (bool, error) {
	n, err := s.ledger.WithTrx(tx).Count(ctx, &RewardLog{UserID: userID, Category: category, Reference: ref})
	if err != nil {
		return false, errutil.Internal("failed to query ledger", err)
	}
	return n > 0, nil
}

// DebitTx decrements the balance only when it covers amount.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return errutil.BadRequest("debit amount must be positive", nil)
	}

	res := tx.WithContext(ctx).Model(&account.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return errutil.Internal("failed to debit balance", res.Error)
	}
	if res.RowsAffected == 1 {
		zap.L().With(logFields(ctx)...).Info("balance debited", zap.String("user_id", userID), zap.Int64("amount", amount))
		return nil
	}

	acc, err := s.account.WithTrx(tx).FindOne(ctx, &account.Account{UserID: userID})
	if err != nil {
		return errutil.Internal("failed to load account", err)
	}
	if acc == nil {
		return errutil.NotFound("account not found", nil)
	}
	return errutil.UnprocessableEntity("insufficient balance", nil)
}

// RefundTx restores amount for a failed debiting transaction. Callers guard it with
// transaction.Store.MarkRefunded in the same transaction.
func (s *Service) RefundTx(ctx context.Context, tx *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return errutil.BadRequest("refund amount must be positive", nil)
	}

	res := tx.WithContext(ctx).Model(&account.Account{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return errutil.Internal("failed to refund balance", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("account not found", nil)
	}

	zap.L().With(logFields(ctx)...).Info("balance refunded", zap.String("user_id", userID), zap.Int64("amount", amount))
	return nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	acc, err := s.account.FindOne(ctx, &account.Account{UserID: userID})
	if err != nil {
		return 0, errutil.Internal("failed to load account", err)
	}
	if acc == nil {
		return 0, errutil.NotFound("account not found", nil)
	}
	return acc.Balance, nil
}

type ListEntriesResult struct {
	Entries  []*RewardLog         `json:"entries"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// ListEntries returns the user's entries newest first.
func (s *Service) ListEntries(ctx context.Context, userID string, p pagination.Pagination) (*ListEntriesResult, error) {
	p = p.Normalize()

	entries, err := s.ledger.Find(ctx, &RewardLog{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, errutil.BadRequest("failed to list ledger entries", err)
	}

	page, info := pagination.Page(entries, p.Limit, func(e *RewardLog) pagination.Cursor {
		return pagination.NewCursor(e.CreatedAt, e.ID)
	})
	return &ListEntriesResult{Entries: page, PageInfo: info}, nil
}

// VerifyChain recomputes every hash of the user's chain in sequence order.
func (s *Service) VerifyChain(ctx context.Context, userID string) (*ChainReport, error) {
	entries, err := s.ledger.Find(ctx, &RewardLog{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "asc", Allow: map[string]bool{"sequence": true}}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load ledger", err)
	}

	report := &ChainReport{UserID: userID, Valid: true, Entries: len(entries)}
	prev := GenesisHash
	for i, e := range entries {
		if e.Sequence != int64(i+1) || e.PreviousHash != prev || e.GenerateHash() != e.Hash {
			report.Valid = false
			report.BrokenAt = e.ID
			zap.L().With(logFields(ctx)...).Warn("ledger chain broken",
				zap.String("user_id", userID),
				zap.String("entry_id", e.ID),
				zap.Int64("sequence", e.Sequence),
			)
			break
		}
		prev = e.Hash
	}
	return report, nil
}

// Reconcile checks balance == sum(RewardLog.amount) - outstanding debits.
func (s *Service) Reconcile(ctx context.Context, userID string) (*ReconcileReport, error) {
	acc, err := s.account.FindOne(ctx, &account.Account{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load account", err)
	}
	if acc == nil {
		return nil, errutil.NotFound("account not found", nil)
	}

	var earned int64
	if err := s.db.WithContext(ctx).Model(&RewardLog{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&earned).Error; err != nil {
		return nil, errutil.Internal("failed to sum ledger", err)
	}

	debited, err := s.txStore.OutstandingDebits(ctx, nil, userID)
	if err != nil {
		return nil, errutil.Internal("failed to sum transactions", err)
	}

	report := &ReconcileReport{
		UserID:   userID,
		Balance:  acc.Balance,
		Earned:   earned,
		Debited:  debited,
		Expected: earned - debited,
	}
	report.Consistent = report.Balance == report.Expected
	if !report.Consistent {
		zap.L().With(logFields(ctx)...).Warn("balance does not reconcile",
			zap.String("user_id", userID),
			zap.Int64("balance", report.Balance),
			zap.Int64("expected", report.Expected),
		)
	}
	return report, nil
}

// UserIDs pages through account owners for audits, ordered by user_id.
func (s *Service) UserIDs(ctx context.Context, after string, limit int) ([]string, error) {
	var ids []string
	q := s.db.WithContext(ctx).Model(&account.Account{}).Order("user_id asc").Limit(limit)
	if after != "" {
		q = q.Where("user_id > ?", after)
	}
	if err := q.Pluck("user_id", &ids).Error; err != nil {
		return nil, errutil.Internal("failed to list accounts", err)
	}
	return ids, nil
}

// IsInsufficientBalance reports whether err came from a DebitTx balance guard.
func IsInsufficientBalance(err error) bool {
	var be errutil.BaseError
	return errors.As(err, &be) && be.Code == errutil.StatusUnprocessableEntity && be.Message == "insufficient balance"
}
