package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smallbiznis-rewards/pkg/minio"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/notification"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pageSize = 500

// ReportStore persists finished audit reports.
type ReportStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

type Report struct {
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at"`
	Users        int                       `json:"users"`
	BrokenChains []*ledger.ChainReport     `json:"broken_chains"`
	Inconsistent []*ledger.ReconcileReport `json:"inconsistent"`
	Errors       []string                  `json:"errors,omitempty"`
	ObjectKey    string                    `json:"object_key,omitempty"`
}

func (r *Report) Clean() bool {
	return len(r.BrokenChains) == 0 && len(r.Inconsistent) == 0 && len(r.Errors) == 0
}

type Service struct {
	ledger   *ledger.Service
	store    ReportStore
	notifier notification.Notifier
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	Ledger   *ledger.Service
	Uploader *minio.Uploader `optional:"true"`
	Notifier notification.Notifier
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		ledger:   p.Ledger,
		notifier: p.Notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if p.Uploader != nil {
		s.store = p.Uploader
	}
	return s
}

// Run verifies the hash chain and the balance invariant of every account.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		StartedAt:    s.now(),
		BrokenChains: []*ledger.ChainReport{},
		Inconsistent: []*ledger.ReconcileReport{},
	}

	after := ""
	for {
		ids, err := s.ledger.UserIDs(ctx, after, pageSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			s.check(ctx, id, report)
		}
		report.Users += len(ids)
		after = ids[len(ids)-1]

		if len(ids) < pageSize {
			break
		}
	}
	report.FinishedAt = s.now()

	zap.L().Info("[Audit] ledger audit done",
		zap.Int("users", report.Users),
		zap.Int("broken_chains", len(report.BrokenChains)),
		zap.Int("inconsistent", len(report.Inconsistent)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if !report.Clean() {
		s.notifier.SystemEvent(ctx, "LEDGER_AUDIT_FAILED",
			fmt.Sprintf("Ledger audit found %d broken chains and %d inconsistent balances.", len(report.BrokenChains), len(report.Inconsistent)),
			notification.LevelError)
	}

	s.upload(ctx, report)
	return report, nil
}

func (s *Service) check(ctx context.Context, userID string, report *Report) {
	chain, err := s.ledger.VerifyChain(ctx, userID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", userID, err))
		return
	}
	if !chain.Valid {
		report.BrokenChains = append(report.BrokenChains, chain)
	}

	rec, err := s.ledger.Reconcile(ctx, userID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", userID, err))
		return
	}
	if !rec.Consistent {
		report.Inconsistent = append(report.Inconsistent, rec)
	}
}

func (s *Service) upload(ctx context.Context, report *Report) {
	if s.store == nil {
		return
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		zap.L().Error("[Audit] failed to encode report", zap.Error(err))
		return
	}

	key := fmt.Sprintf("audits/ledger-%s.json", report.StartedAt.Format("20060102T150405Z"))
	if err := s.store.Put(ctx, key, "application/json", body); err != nil {
		zap.L().Error("[Audit] failed to upload report", zap.String("key", key), zap.Error(err))
		return
	}
	report.ObjectKey = key
}
