package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/metrics"
	"smallbiznis-rewards/pkg/retry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultTransferTimeout = 30 * time.Second
	defaultCurrency        = "UGX"
)

var tracer = otel.Tracer("smallbiznis-rewards/payout")

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flutterwaveTransfer struct {
	ID        any    `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Flutterwave talks to the transfers API over resty.
type Flutterwave struct {
	client   *resty.Client
	baseURL  string
	secret   string
	currency string
	policy   retry.Policy
}

func NewGateway(cfg *config.Config) Gateway {
	return NewFlutterwave(cfg)
}

func NewFlutterwave(cfg *config.Config) *Flutterwave {
	timeout := cfg.Payout.Timeout
	if timeout <= 0 {
		timeout = defaultTransferTimeout
	}
	currency := cfg.Payout.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	return &Flutterwave{
		client: resty.New().
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		baseURL:  strings.TrimRight(cfg.Payout.BaseURL, "/"),
		secret:   cfg.Payout.SecretKey,
		currency: currency,
		policy:   retry.Default("payout.transfer", timeout),
	}
}

func (f *Flutterwave) configured() bool {
	return f.baseURL != "" && f.secret != ""
}

// CreateTransfer retries transport errors and 5xx responses. A 4xx or a non-success
// envelope is a rejection and is returned as a Transfer with Accepted false.
func (f *Flutterwave) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if !f.configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := tracer.Start(ctx, "payout.CreateTransfer", trace.WithAttributes(attribute.String("reference", req.Reference)))
	defer span.End()

	currency := req.Currency
	if currency == "" {
		currency = f.currency
	}
	body := map[string]any{
		"account_bank":   req.AccountBank,
		"account_number": req.AccountNumber,
		"amount":         strconv.FormatInt(req.Amount, 10),
		"currency":       currency,
		"narration":      req.Narration,
		"reference":      req.Reference,
	}

	var result *Transfer
	start := time.Now()
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var env flutterwaveEnvelope
		resp, err := f.client.R().
			SetContext(ctx).
			SetAuthToken(f.secret).
			SetBody(body).
			SetResult(&env).
			SetError(&env).
			Post(f.baseURL + "/transfers")
		if err != nil {
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("transfer endpoint returned %d", resp.StatusCode())
		}

		result = &Transfer{Raw: json.RawMessage(resp.Body()), Message: env.Message}
		ok := (resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusCreated) && env.Status == "success"
		if !ok {
			result.Status = TransferFailed
			if result.Message == "" {
				result.Message = "withdraw initiation failed"
			}
			return nil
		}

		var data flutterwaveTransfer
		_ = json.Unmarshal(env.Data, &data)
		result.Accepted = true
		result.Status = TransferPending
		result.ProviderReference = firstNonEmpty(idString(data.ID), data.Reference, req.Reference)
		return nil
	})
	observe("create_transfer", start, err)
	if err != nil {
		span.RecordError(err)
		zap.L().Error("[Payout] create transfer failed", zap.String("reference", req.Reference), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// GetTransfer reads the transfer status. The status comes from data.status, else the envelope status.
func (f *Flutterwave) GetTransfer(ctx context.Context, providerReference string) (*Transfer, error) {
	if !f.configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := tracer.Start(ctx, "payout.GetTransfer", trace.WithAttributes(attribute.String("provider_reference", providerReference)))
	defer span.End()

	var result *Transfer
	start := time.Now()
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var env flutterwaveEnvelope
		resp, err := f.client.R().
			SetContext(ctx).
			SetAuthToken(f.secret).
			SetResult(&env).
			SetError(&env).
			Get(f.baseURL + "/transfers/" + providerReference)
		if err != nil {
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("transfer status endpoint returned %d", resp.StatusCode())
		}

		var data flutterwaveTransfer
		_ = json.Unmarshal(env.Data, &data)
		status := firstNonEmpty(data.Status, env.Status)
		result = &Transfer{
			Accepted:          true,
			ProviderReference: providerReference,
			Status:            MapProviderStatus(status),
			Message:           env.Message,
			Raw:               json.RawMessage(resp.Body()),
		}
		return nil
	})
	observe("get_transfer", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.PayoutLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
