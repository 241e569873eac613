package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/pkg/featureflags"
	"smallbiznis-rewards/pkg/metrics"
	"smallbiznis-rewards/pkg/reference"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/pkg/security"
	"smallbiznis-rewards/pkg/signature"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/payout"
	"smallbiznis-rewards/services/referral"
	"smallbiznis-rewards/services/transaction"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("smallbiznis-rewards/withdrawal")

const (
	defaultPollDelay        = time.Minute
	defaultMaxPolls         = 4
	defaultPendingThreshold = 15 * time.Minute
	defaultCurrency         = "UGX"
	reconcileBatch          = 100
)

type settings struct {
	maxSingle        int64
	dailyLimit       int64
	refundOnFailure  bool
	pendingThreshold time.Duration
	pollDelay        time.Duration
	maxPolls         int
	webhookSecret    string
	currency         string
}

func newSettings(cfg *config.Config) settings {
	s := settings{
		maxSingle:        cfg.Withdrawal.MaxSingle,
		dailyLimit:       cfg.Withdrawal.DailyLimit,
		refundOnFailure:  cfg.Withdrawal.RefundOnFailure,
		pendingThreshold: cfg.Withdrawal.PendingThreshold,
		pollDelay:        cfg.Payout.PollDelay,
		maxPolls:         cfg.Payout.MaxPolls,
		webhookSecret:    cfg.Payout.WebhookSecret,
		currency:         cfg.Payout.Currency,
	}
	if s.pendingThreshold <= 0 {
		s.pendingThreshold = defaultPendingThreshold
	}
	if s.pollDelay <= 0 {
		s.pollDelay = defaultPollDelay
	}
	if s.maxPolls <= 0 {
		s.maxPolls = defaultMaxPolls
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	return s
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	settings settings

	store     *transaction.Store
	ledger    *ledger.Service
	accounts  *account.Service
	referral  *referral.Service
	gateway   payout.Gateway
	cipher    *security.Cipher
	flags     featureflags.FeatureFlag
	enqueuer  task.Enqueuer
	notifier  notification.Notifier
	publisher events.Publisher

	payroll repository.Repository[PayrollEntry]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Store     *transaction.Store
	Ledger    *ledger.Service
	Accounts  *account.Service
	Referral  *referral.Service
	Gateway   payout.Gateway
	Cipher    *security.Cipher
	Flags     featureflags.FeatureFlag
	Enqueuer  task.Enqueuer
	Notifier  notification.Notifier
	Publisher events.Publisher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		settings: newSettings(p.Config),

		store:     p.Store,
		ledger:    p.Ledger,
		accounts:  p.Accounts,
		referral:  p.Referral,
		gateway:   p.Gateway,
		cipher:    p.Cipher,
		flags:     p.Flags,
		enqueuer:  p.Enqueuer,
		notifier:  p.Notifier,
		publisher: p.Publisher,

		payroll: repository.ProvideStore[PayrollEntry](p.DB),

		now: func() time.Time { return time.Now().UTC() },
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Request validates a withdrawal, debits the balance and creates a pending transaction
// in one DB transaction, then queues the payout.
func (s *Service) Request(ctx context.Context, req Request) (*transaction.Transaction, error) {
	ctx, span := tracer.Start(ctx, "withdrawal.Request")
	defer span.End()

	req.AccountBank = strings.TrimSpace(req.AccountBank)
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	if req.UserID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if req.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be greater than zero", nil)
	}
	if req.AccountBank == "" || req.AccountNumber == "" {
		return nil, errutil.BadRequest("account_bank and account_number are required", nil)
	}
	if s.settings.maxSingle > 0 && req.Amount > s.settings.maxSingle {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("amount exceeds the single withdrawal limit of %d", s.settings.maxSingle), nil)
	}

	if err := s.checkDailyLimit(ctx, nil, req.UserID, req.Amount); err != nil {
		return nil, err
	}

	acc, err := s.accounts.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if acc.PinHash == "" {
		return nil, errutil.Forbidden("withdrawal pin is not set", nil)
	}
	if !security.CheckPIN(acc.PinHash, req.PIN) {
		return nil, errutil.Forbidden("invalid withdrawal pin", nil)
	}

	if !s.flags.Enabled(ctx, featureflags.PayoutsEnabled, true) {
		return nil, errutil.Unavailable("withdrawals are temporarily disabled", nil)
	}

	enc, err := s.cipher.Encrypt(req.AccountNumber)
	if err != nil {
		return nil, errutil.Internal("failed to secure account number", err)
	}

	userID := req.UserID
	t := &transaction.Transaction{
		ID:               s.node.Generate().String(),
		UserID:           &userID,
		TxType:           transaction.TypeWithdrawal,
		Amount:           req.Amount,
		Status:           transaction.StatusPending,
		TxRef:            reference.Withdrawal(),
		AccountBank:      req.AccountBank,
		AccountNumberEnc: enc,
	}

	// the daily total is re-read under the account lock so concurrent
	// requests for one user cannot all pass the limit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.LockAccount(ctx, tx, req.UserID); err != nil {
			return err
		}
		if err := s.checkDailyLimit(ctx, tx, req.UserID, req.Amount); err != nil {
			return err
		}
		if err := s.ledger.DebitTx(ctx, tx, req.UserID, req.Amount); err != nil {
			return err
		}
		if err := s.store.Create(ctx, tx, t); err != nil {
			return errutil.Internal("failed to create transaction", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("tx_ref", t.TxRef))
	metrics.TransactionTransitions.WithLabelValues(string(t.TxType), string(t.Status)).Inc()
	zap.L().Info("[Withdrawal] requested",
		zap.String("tx_ref", t.TxRef),
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("account", security.Mask(req.AccountNumber)),
	)

	// a failed enqueue leaves the transaction pending for the reconcile sweep
	s.enqueueInitiate(ctx, t.TxRef)
	s.notifier.NotifyUser(ctx, req.UserID, "Withdrawal Requested",
		fmt.Sprintf("Your withdrawal of %s %d is being processed.", s.settings.currency, req.Amount), notification.LevelInfo)

	return t, nil
}

func (s *Service) checkDailyLimit(ctx context.Context, tx *gorm.DB, userID string, amount int64) error {
	if s.settings.dailyLimit <= 0 {
		return nil
	}
	today, err := s.store.SumSince(ctx, tx, userID, transaction.TypeWithdrawal, startOfDay(s.now()))
	if err != nil {
		return errutil.Internal("failed to compute daily total", err)
	}
	if today+amount > s.settings.dailyLimit {
		return errutil.UnprocessableEntity(fmt.Sprintf("amount exceeds the daily withdrawal limit of %d", s.settings.dailyLimit), nil)
	}
	return nil
}

func (s *Service) enqueueInitiate(ctx context.Context, txRef string) bool {
	t, err := NewInitiateTask(txRef)
	if err == nil {
		_, err = s.enqueuer.Enqueue(ctx, t)
	}
	if err != nil {
		zap.L().Warn("[Withdrawal] failed to enqueue initiate", zap.String("tx_ref", txRef), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) enqueueConfirm(ctx context.Context, txRef string) {
	t, err := NewConfirmTask(txRef)
	if err == nil {
		_, err = s.enqueuer.Enqueue(ctx, t, processIn(s.settings.pollDelay))
	}
	if err != nil {
		zap.L().Warn("[Withdrawal] failed to enqueue confirm", zap.String("tx_ref", txRef), zap.Error(err))
	}
}

// Get returns the transaction when it belongs to userID.
func (s *Service) Get(ctx context.Context, userID, txRef string) (*transaction.Transaction, error) {
	t, err := s.store.GetByRef(ctx, nil, txRef)
	if err != nil {
		return nil, errutil.Internal("failed to load transaction", err)
	}
	if t == nil || t.UserID == nil || *t.UserID != userID {
		return nil, errutil.NotFound("transaction not found", nil)
	}
	return t, nil
}

func (s *Service) load(ctx context.Context, txRef string) (*transaction.Transaction, error) {
	t, err := s.store.GetByRef(ctx, nil, txRef)
	if err != nil {
		return nil, errutil.Internal("failed to load transaction", err)
	}
	if t == nil {
		return nil, errutil.NotFound("transaction not found", nil)
	}
	return t, nil
}

// Initiate sends a pending transaction to the payout gateway using tx_ref as the idempotency reference.
func (s *Service) Initiate(ctx context.Context, txRef string) error {
	ctx, span := tracer.Start(ctx, "withdrawal.Initiate")
	defer span.End()
	span.SetAttributes(attribute.String("tx_ref", txRef))

	t, err := s.load(ctx, txRef)
	if err != nil {
		return err
	}
	if t.Status != transaction.StatusPending {
		zap.L().Info("[Withdrawal] initiate skipped", zap.String("tx_ref", txRef), zap.String("status", string(t.Status)))
		return nil
	}
	if !s.flags.Enabled(ctx, featureflags.PayoutsEnabled, true) {
		zap.L().Warn("[Withdrawal] payouts disabled, leaving transaction pending", zap.String("tx_ref", txRef))
		return nil
	}

	accountNumber, err := s.cipher.Decrypt(t.AccountNumberEnc)
	if err != nil {
		return s.fail(ctx, t, "account number could not be decrypted")
	}

	transfer, err := s.gateway.CreateTransfer(ctx, payout.TransferRequest{
		Reference:     t.TxRef,
		AccountBank:   t.AccountBank,
		AccountNumber: accountNumber,
		Amount:        t.Amount,
		Currency:      s.settings.currency,
		Narration:     fmt.Sprintf("%s %s", t.TxType, t.TxRef),
	})
	switch {
	case errors.Is(err, payout.ErrNotConfigured):
		s.notifier.SystemEvent(ctx, "PAYOUT_CONFIG_MISSING", fmt.Sprintf("Payout gateway is not configured; %s failed.", t.TxRef), notification.LevelError)
		return s.fail(ctx, t, err.Error())
	case err != nil:
		return s.fail(ctx, t, err.Error())
	case !transfer.Accepted:
		return s.fail(ctx, t, firstNonEmpty(transfer.Message, "transfer rejected by provider"))
	}

	ok, err := s.store.Transition(ctx, nil, t.TxRef, transaction.StatusProcessing, map[string]any{
		"provider_reference":    transfer.ProviderReference,
		"raw_provider_response": datatypes.JSON(transfer.Raw),
		"sent_at":               s.now(),
	})
	if err != nil {
		return errutil.Internal("failed to record transfer", err)
	}
	if !ok {
		return nil
	}

	s.transitioned(ctx, t, transaction.StatusProcessing)
	zap.L().Info("[Withdrawal] transfer accepted",
		zap.String("tx_ref", t.TxRef),
		zap.String("provider_reference", transfer.ProviderReference),
		zap.String("account", security.Mask(accountNumber)),
	)
	s.enqueueConfirm(ctx, t.TxRef)
	return nil
}

// Confirm polls the provider once. Unsettled transfers are re-polled until the
// poll budget is spent, after which the transaction moves to manual_review.
func (s *Service) Confirm(ctx context.Context, txRef string) error {
	ctx, span := tracer.Start(ctx, "withdrawal.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("tx_ref", txRef))

	t, err := s.load(ctx, txRef)
	if err != nil {
		return err
	}
	if t.Status.Terminal() || t.Status == transaction.StatusManualReview {
		return nil
	}

	ref := firstNonEmpty(t.ProviderReference, t.TxRef)
	transfer, err := s.gateway.GetTransfer(ctx, ref)
	if err != nil {
		zap.L().Warn("[Withdrawal] status check failed", zap.String("tx_ref", txRef), zap.Error(err))
	} else {
		switch transfer.Status {
		case payout.TransferSuccessful:
			return s.succeed(ctx, t)
		case payout.TransferFailed:
			return s.fail(ctx, t, firstNonEmpty(transfer.Message, "transfer failed"))
		}
	}

	polls, err := s.store.IncrementPoll(ctx, t.TxRef)
	if err != nil {
		return errutil.Internal("failed to record poll", err)
	}
	if polls < s.settings.maxPolls {
		s.enqueueConfirm(ctx, t.TxRef)
		return nil
	}

	ok, err := s.store.Transition(ctx, nil, t.TxRef, transaction.StatusManualReview, nil)
	if err != nil {
		return errutil.Internal("failed to move transaction to review", err)
	}
	if ok {
		s.transitioned(ctx, t, transaction.StatusManualReview)
		s.notifier.SystemEvent(ctx, "WITHDRAWAL_REVIEW",
			fmt.Sprintf("%s unresolved after %d status checks.", t.TxRef, polls), notification.LevelWarning)
	}
	return nil
}

// ApplyProviderStatus handles a signed payout provider callback.
func (s *Service) ApplyProviderStatus(ctx context.Context, body []byte, sig string) (*transaction.Transaction, error) {
	if s.settings.webhookSecret == "" {
		return nil, errutil.Unavailable("payout webhook secret is not configured", nil)
	}
	if !signature.VerifyHMACSHA256(body, sig, s.settings.webhookSecret) {
		zap.L().Warn("[Withdrawal] invalid payout webhook signature")
		return nil, errutil.Forbidden("invalid signature", nil)
	}

	var evt ProviderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, errutil.BadRequest("invalid payload", err)
	}
	if evt.Ref() == "" {
		return nil, errutil.BadRequest("tx_ref is required", nil)
	}

	t, err := s.load(ctx, evt.Ref())
	if err != nil {
		return nil, err
	}
	// subscriptions are settled by ConfirmSubscription, never by a transfer callback
	if t.TxType != transaction.TypeWithdrawal && t.TxType != transaction.TypePayroll {
		zap.L().Warn("[Withdrawal] payout callback for a non-transfer transaction",
			zap.String("tx_ref", t.TxRef), zap.String("tx_type", string(t.TxType)))
		return nil, errutil.BadRequest("transaction is not a payout", nil)
	}
	if t.Status.Terminal() {
		return t, nil
	}

	switch payout.MapProviderStatus(evt.State()) {
	case payout.TransferSuccessful:
		err = s.succeed(ctx, t)
	case payout.TransferFailed:
		err = s.fail(ctx, t, "provider reported "+strings.ToLower(evt.State()))
	default:
		var ok bool
		if ok, err = s.store.Transition(ctx, nil, t.TxRef, transaction.StatusProcessing, nil); err != nil {
			err = errutil.Internal("failed to update transaction", err)
		} else if ok && t.Status != transaction.StatusProcessing {
			s.transitioned(ctx, t, transaction.StatusProcessing)
		}
	}
	if err != nil {
		return nil, err
	}

	return s.store.GetByRef(ctx, nil, t.TxRef)
}

func (s *Service) succeed(ctx context.Context, t *transaction.Transaction) error {
	ok, err := s.store.Transition(ctx, nil, t.TxRef, transaction.StatusSuccess, map[string]any{"confirmed_at": s.now()})
	if err != nil {
		return errutil.Internal("failed to complete transaction", err)
	}
	if !ok {
		return nil
	}

	s.transitioned(ctx, t, transaction.StatusSuccess)
	if t.UserID != nil {
		s.notifier.NotifyUser(ctx, *t.UserID, "Withdrawal Successful",
			fmt.Sprintf("Your withdrawal of %s %d succeeded.", s.settings.currency, t.Amount), notification.LevelInfo)
	}
	return nil
}

// fail moves t to failed and, when refunds are on, restores the debit in the same DB transaction.
// A transaction that is already terminal is left untouched.
func (s *Service) fail(ctx context.Context, t *transaction.Transaction, reason string) error {
	moved, refunded := false, false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.store.Transition(ctx, tx, t.TxRef, transaction.StatusFailed, map[string]any{"failure_reason": reason})
		if err != nil {
			return errutil.Internal("failed to fail transaction", err)
		}
		moved = ok
		if !ok || !s.settings.refundOnFailure || !t.Debited() {
			return nil
		}

		marked, err := s.store.MarkRefunded(ctx, tx, t.ID, s.now())
		if err != nil {
			return errutil.Internal("failed to mark refund", err)
		}
		if !marked {
			return nil
		}
		if err := s.ledger.RefundTx(ctx, tx, *t.UserID, t.Amount); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	s.transitioned(ctx, t, transaction.StatusFailed)
	zap.L().Warn("[Withdrawal] transaction failed",
		zap.String("tx_ref", t.TxRef),
		zap.String("tx_type", string(t.TxType)),
		zap.String("reason", reason),
		zap.Bool("refunded", refunded),
	)

	code := "WITHDRAWAL_FAIL"
	if t.TxType == transaction.TypePayroll {
		code = "PAYROLL_FAILED"
	}
	s.notifier.SystemEvent(ctx, code, fmt.Sprintf("%s failed: %s", t.TxRef, reason), notification.LevelError)

	if t.UserID != nil {
		msg := fmt.Sprintf("Your withdrawal of %s %d failed.", s.settings.currency, t.Amount)
		if refunded {
			msg += " The amount was returned to your balance."
		}
		s.notifier.NotifyUser(ctx, *t.UserID, "Withdrawal Failed", msg, notification.LevelError)
	}
	return nil
}

func (s *Service) transitioned(ctx context.Context, t *transaction.Transaction, to transaction.Status) {
	metrics.TransactionTransitions.WithLabelValues(string(t.TxType), string(to)).Inc()
	events.PublishSafe(ctx, s.publisher, events.Event{
		Type: events.TransactionStatusChanged,
		Key:  t.TxRef,
		Payload: map[string]any{
			"tx_ref":  t.TxRef,
			"tx_type": t.TxType,
			"from":    t.Status,
			"to":      to,
			"amount":  t.Amount,
		},
	})
}

// ReconcileStuck re-drives pending transactions older than the pending threshold.
func (s *Service) ReconcileStuck(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.settings.pendingThreshold)
	stale, err := s.store.ListStale(ctx, transaction.StatusPending, cutoff, reconcileBatch)
	if err != nil {
		return 0, errutil.Internal("failed to list stale transactions", err)
	}

	n := 0
	for _, t := range stale {
		if s.enqueueInitiate(ctx, t.TxRef) {
			n++
		}
	}
	if len(stale) > 0 {
		zap.L().Info("[Withdrawal] re-driven stale transactions", zap.Int("found", len(stale)), zap.Int("enqueued", n))
	}
	return n, nil
}

// InitiateSubscription debits the subscription price and opens a processing SUB- transaction.
func (s *Service) InitiateSubscription(ctx context.Context, userID string, amount int64) (*transaction.Transaction, error) {
	if amount <= 0 {
		return nil, errutil.BadRequest("amount must be greater than zero", nil)
	}

	t := &transaction.Transaction{
		ID:     s.node.Generate().String(),
		UserID: &userID,
		TxType: transaction.TypeSubscription,
		Amount: amount,
		Status: transaction.StatusProcessing,
		TxRef:  reference.Subscription(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.DebitTx(ctx, tx, userID, amount); err != nil {
			return err
		}
		if err := s.store.Create(ctx, tx, t); err != nil {
			return errutil.Internal("failed to create transaction", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionTransitions.WithLabelValues(string(t.TxType), string(t.Status)).Inc()
	s.notifier.NotifyUser(ctx, userID, "Subscription Initiated",
		fmt.Sprintf("Subscription payment of %s %d started.", s.settings.currency, amount), notification.LevelInfo)
	s.notifier.SystemEvent(ctx, "SUB_INIT", fmt.Sprintf("User %s started subscription %s", userID, t.TxRef), notification.LevelInfo)
	return t, nil
}

// ConfirmSubscription completes a subscription, activates the account and rewards its inviter.
func (s *Service) ConfirmSubscription(ctx context.Context, txRef string) (*transaction.Transaction, error) {
	t, err := s.load(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if t.TxType != transaction.TypeSubscription || t.UserID == nil {
		return nil, errutil.BadRequest("transaction is not a subscription", nil)
	}
	switch t.Status {
	case transaction.StatusSuccess:
		return t, nil
	case transaction.StatusFailed:
		return nil, errutil.Conflict("subscription already failed", nil)
	}

	userID := *t.UserID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.store.Transition(ctx, tx, t.TxRef, transaction.StatusSuccess, map[string]any{"confirmed_at": s.now()})
		if err != nil {
			return errutil.Internal("failed to complete subscription", err)
		}
		if !ok {
			return errutil.Conflict("subscription already finalized", nil)
		}
		return s.accounts.ActivateSubscriptionTx(ctx, tx, userID)
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, t, transaction.StatusSuccess)
	s.notifier.NotifyUser(ctx, userID, "Subscription Active", "Your subscription is now active.", notification.LevelInfo)

	if _, err := s.referral.RewardOnActivation(ctx, userID); err != nil {
		zap.L().Info("[Withdrawal] no referral reward on activation", zap.String("user_id", userID), zap.Error(err))
	}

	return s.store.GetByRef(ctx, nil, t.TxRef)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
