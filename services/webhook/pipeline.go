package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/pkg/metrics"
	"smallbiznis-rewards/pkg/signature"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/idempotency"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/provider"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("smallbiznis-rewards/webhook")

type TaskFinder interface {
	FindByProviderTask(ctx context.Context, providerName, providerTaskID string) (*catalog.Task, error)
}

// Pipeline turns a provider callback into exactly one credit, a duplicate or a rejection.
type Pipeline struct {
	db        *gorm.DB
	node      *snowflake.Node
	registry  *provider.Registry
	tasks     TaskFinder
	ledger    *ledger.Service
	guard     *idempotency.Guard
	publisher events.Publisher
	rates     map[string]float64
}

type PipelineParams struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Registry  *provider.Registry
	Catalog   *catalog.Service
	Ledger    *ledger.Service
	Guard     *idempotency.Guard
	Publisher events.Publisher
}

func NewPipeline(p PipelineParams) *Pipeline {
	return &Pipeline{
		db:        p.DB,
		node:      p.Node,
		registry:  p.Registry,
		tasks:     p.Catalog,
		ledger:    p.Ledger,
		guard:     p.Guard,
		publisher: p.Publisher,
		rates:     Rates(p.Config),
	}
}

// Rates merges EXCHANGE_RATES with USD_TO_UGX_RATE, which wins for USD.
func Rates(cfg *config.Config) map[string]float64 {
	rates := make(map[string]float64, len(cfg.Currency.ExchangeRates)+1)
	for k, v := range cfg.Currency.ExchangeRates {
		rates[strings.ToUpper(k)] = v
	}
	if cfg.Currency.USDToUGXRate > 0 {
		rates["USD"] = cfg.Currency.USDToUGXRate
	}
	return rates
}

// trail carries what is known about a callback when its log row is written.
type trail struct {
	provider       string
	remoteIP       string
	payload        map[string]any
	postback       Postback
	taskID         *string
	signatureValid bool
}

func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "webhook.Process", trace.WithAttributes(attribute.String("provider", req.Provider)))
	defer span.End()

	res, err := p.process(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Pipeline) process(ctx context.Context, req Request) (*Result, error) {
	name := strings.ToLower(strings.TrimSpace(req.Provider))
	tr := &trail{provider: name, remoteIP: req.RemoteIP}

	prov, ok := p.registry.Get(name)
	if !ok || !prov.Enabled {
		zap.L().Warn("[Webhook] postback for unknown or disabled provider", zap.String("provider", name))
		return nil, p.reject(ctx, tr, "unknown", errutil.NotFound("provider not found", nil))
	}

	payload, err := ParsePayload(req.Body, req.ContentType, req.Query)
	if err != nil {
		return nil, p.reject(ctx, tr, name, errutil.BadRequest("invalid postback payload", err))
	}
	tr.payload = payload

	if err := verify(prov, req, payload); err != nil {
		zap.L().Warn("[Webhook] verification failed", zap.String("provider", name), zap.String("remote_ip", req.RemoteIP), zap.Error(err))
		return nil, p.reject(ctx, tr, name, err)
	}
	tr.signatureValid = true

	pb := Normalize(payload, p.rates)
	tr.postback = pb

	if prov.Accept != nil {
		accepted, err := prov.Accept.Eval(pb.Attrs(name))
		if err != nil {
			return nil, p.reject(ctx, tr, name, errutil.BadRequest("postback rule evaluation failed", err))
		}
		if !accepted {
			return nil, p.reject(ctx, tr, name, errutil.BadRequest("postback rejected by provider rule", nil))
		}
	}

	if pb.UserID == "" || pb.TransactionID == "" || pb.Reward <= 0 {
		return nil, p.reject(ctx, tr, name, errutil.BadRequest("user_id, transaction_id and a positive reward are required", nil))
	}

	credited, category, adminCap := pb.Reward, ledger.CategoryUncategorized, int64(0)
	task, err := p.tasks.FindByProviderTask(ctx, name, pb.OfferID)
	if err != nil {
		return nil, p.reject(ctx, tr, name, err)
	}
	if task != nil {
		credited = task.Cap(pb.Reward)
		category = task.Category
		adminCap = task.AdminRewardCap
		tr.taskID = &task.ID
	}

	raw, _ := json.Marshal(payload)
	var entry *ledger.RewardLog
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.guard.Claim(ctx, tx, name, pb.TransactionID, pb.UserID); err != nil {
			return err
		}

		var err error
		entry, err = p.ledger.CreditTx(ctx, tx, ledger.CreditParams{
			UserID:         pb.UserID,
			TaskID:         tr.taskID,
			Provider:       name,
			Category:       category,
			Amount:         credited,
			ProviderAmount: pb.Reward,
			AdminAmount:    adminCap,
			Reference:      pb.TransactionID,
			Metadata:       datatypes.JSON(raw),
		})
		if err != nil {
			return err
		}

		return tx.Create(p.logRow(tr, OutcomeOK, credited, "")).Error
	})

	switch {
	case errors.Is(err, idempotency.ErrDuplicate):
		zap.L().Info("[Webhook] duplicate postback", zap.String("provider", name), zap.String("transaction_id", pb.TransactionID))
		p.writeLog(ctx, p.logRow(tr, OutcomeDuplicate, 0, "duplicate transaction"))
		metrics.WebhookOutcomes.WithLabelValues(name, string(OutcomeDuplicate)).Inc()
		return &Result{Status: OutcomeDuplicate}, nil
	case err != nil:
		if errutil.StatusOf(err) == errutil.StatusUnknown {
			err = errutil.Internal("failed to apply postback", err)
		}
		return nil, p.reject(ctx, tr, name, err)
	}

	metrics.WebhookOutcomes.WithLabelValues(name, string(OutcomeOK)).Inc()
	zap.L().Info("[Webhook] postback applied",
		zap.String("provider", name),
		zap.String("user_id", pb.UserID),
		zap.String("transaction_id", pb.TransactionID),
		zap.Int64("reward", pb.Reward),
		zap.Int64("credited", credited),
	)

	events.PublishSafe(ctx, p.publisher, events.Event{
		Type:    events.RewardCredited,
		Key:     pb.UserID,
		Payload: entry,
	})

	return &Result{Status: OutcomeOK, RewardApplied: credited}, nil
}

func verify(prov *provider.Provider, req Request, payload map[string]any) error {
	switch prov.Verify {
	case provider.VerifyHMAC:
		if !signature.VerifyHMACSHA256(req.Body, req.Header.Get(prov.SignatureHeader), prov.Secret) {
			return errutil.Forbidden("invalid signature", nil)
		}
	case provider.VerifyMD5:
		if !signature.VerifyMD5Composite(
			firstString(payload, []string{"user_id"}),
			firstString(payload, []string{"transaction_id"}),
			firstString(payload, rewardSigKeys),
			prov.Secret,
			firstString(payload, []string{"signature"}),
		) {
			return errutil.Forbidden("invalid signature", nil)
		}
	case provider.VerifyIP:
		if !signature.IPAllowed(req.RemoteIP, prov.AllowedCIDRs) {
			return errutil.Forbidden("caller address not allowed", nil)
		}
	case provider.VerifyNone:
		zap.L().Debug("[Webhook] unverified postback accepted", zap.String("provider", prov.Name))
	default:
		return errutil.Unavailable("unsupported verification method", nil)
	}
	return nil
}

func (p *Pipeline) reject(ctx context.Context, tr *trail, metricProvider string, err error) error {
	p.writeLog(ctx, p.logRow(tr, OutcomeRejected, 0, err.Error()))
	metrics.WebhookOutcomes.WithLabelValues(metricProvider, string(OutcomeRejected)).Inc()
	return err
}

func (p *Pipeline) logRow(tr *trail, outcome Outcome, reward int64, reason string) *Log {
	row := &Log{
		ID:             p.node.Generate().String(),
		Provider:       tr.provider,
		TransactionID:  tr.postback.TransactionID,
		UserID:         tr.postback.UserID,
		TaskID:         tr.taskID,
		Outcome:        outcome,
		SignatureValid: tr.signatureValid,
		IsDuplicate:    outcome == OutcomeDuplicate,
		Reward:         reward,
		Reason:         reason,
		RemoteIP:       tr.remoteIP,
	}
	if tr.payload != nil {
		if b, err := json.Marshal(tr.payload); err == nil {
			row.Payload = b
		}
	}
	return row
}

func (p *Pipeline) writeLog(ctx context.Context, row *Log) {
	if err := p.db.WithContext(ctx).Create(row).Error; err != nil {
		zap.L().Error("[Webhook] failed to write webhook log", zap.String("provider", row.Provider), zap.Error(err))
	}
}
