package withdrawal

import (
	"context"
	"fmt"
	"strings"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/featureflags"
	"smallbiznis-rewards/pkg/metrics"
	"smallbiznis-rewards/pkg/reference"
	"smallbiznis-rewards/pkg/security"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/transaction"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultBankCode = "000"

func (s *Service) CreatePayrollEntry(ctx context.Context, req PayrollEntryRequest) (*PayrollEntry, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.AccountNumber) == "" {
		return nil, errutil.BadRequest("name and account_number are required", nil)
	}
	if req.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be greater than zero", nil)
	}

	enc, err := s.cipher.Encrypt(strings.TrimSpace(req.AccountNumber))
	if err != nil {
		return nil, errutil.Internal("failed to secure account number", err)
	}

	entry := &PayrollEntry{
		ID:               s.node.Generate().String(),
		Name:             strings.TrimSpace(req.Name),
		BankCode:         strings.TrimSpace(req.BankCode),
		AccountNumberEnc: enc,
		Amount:           req.Amount,
		AutoWithdraw:     req.AutoWithdraw,
		Enabled:          true,
	}
	if err := s.payroll.Create(ctx, entry); err != nil {
		return nil, errutil.Internal("failed to create payroll entry", err)
	}
	return entry, nil
}

func (s *Service) ListPayrollEntries(ctx context.Context) ([]*PayrollEntry, error) {
	out, err := s.payroll.Find(ctx, &PayrollEntry{})
	if err != nil {
		return nil, errutil.Internal("failed to list payroll entries", err)
	}
	return out, nil
}

func (s *Service) maskedAccount(enc string) string {
	plain, err := s.cipher.Decrypt(enc)
	if err != nil {
		return "****"
	}
	return security.Mask(plain)
}

// RunPayroll opens a PAY- transaction for every enabled auto-withdraw entry not yet paid today
// and drives it through the same initiate and confirm jobs as withdrawals.
func (s *Service) RunPayroll(ctx context.Context) (int, error) {
	if !s.flags.Enabled(ctx, featureflags.PayoutsEnabled, true) {
		zap.L().Warn("[Payroll] payouts disabled, skipping run")
		return 0, nil
	}

	entries, err := s.payroll.Find(ctx, &PayrollEntry{Enabled: true, AutoWithdraw: true})
	if err != nil {
		return 0, errutil.Internal("failed to list payroll entries", err)
	}

	now := s.now()
	today := startOfDay(now)
	started := 0
	for _, entry := range entries {
		if entry.LastPaidAt != nil && !entry.LastPaidAt.Before(today) {
			continue
		}

		t, err := s.startPayroll(ctx, entry)
		if err != nil {
			zap.L().Error("[Payroll] failed to start payment", zap.String("entry_id", entry.ID), zap.Error(err))
			s.notifier.SystemEvent(ctx, "PAYROLL_FAILED",
				fmt.Sprintf("Failed to initiate payroll for %s (%s): %v", entry.Name, s.maskedAccount(entry.AccountNumberEnc), err),
				notification.LevelError)
			continue
		}

		started++
		s.enqueueInitiate(ctx, t.TxRef)
		s.notifier.SystemEvent(ctx, "PAYROLL_INITIATED",
			fmt.Sprintf("Payroll for %s (%s) initiated.", entry.Name, s.maskedAccount(entry.AccountNumberEnc)),
			notification.LevelInfo)
	}

	zap.L().Info("[Payroll] run done", zap.Int("entries", len(entries)), zap.Int("started", started))
	return started, nil
}

func (s *Service) startPayroll(ctx context.Context, entry *PayrollEntry) (*transaction.Transaction, error) {
	bank := entry.BankCode
	if bank == "" {
		bank = defaultBankCode
	}

	entryID := entry.ID
	t := &transaction.Transaction{
		ID:               s.node.Generate().String(),
		TxType:           transaction.TypePayroll,
		Amount:           entry.Amount,
		Status:           transaction.StatusPending,
		TxRef:            reference.Payroll(),
		AccountBank:      bank,
		AccountNumberEnc: entry.AccountNumberEnc,
		PayrollEntryID:   &entryID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.Create(ctx, tx, t); err != nil {
			return err
		}
		return s.payroll.WithTrx(tx).Update(ctx, entry.ID, map[string]any{"last_paid_at": s.now()})
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionTransitions.WithLabelValues(string(t.TxType), string(t.Status)).Inc()
	return t, nil
}
