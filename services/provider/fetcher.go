package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/retry"

	"github.com/bwmarrin/snowflake"
	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultFetchTimeout = 20 * time.Second

type offersResponse struct {
	Offers []Offer `json:"offers"`
}

// Fetcher pulls offer feeds from API-mode providers and records every call outcome.
type Fetcher struct {
	client *resty.Client
	db     *gorm.DB
	node   *snowflake.Node
	policy retry.Policy
}

type FetcherParams struct {
	fx.In
	Config *config.Config
	DB     *gorm.DB
	Node   *snowflake.Node
}

func NewFetcher(p FetcherParams) *Fetcher {
	timeout := p.Config.Catalog.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	client := resty.New().
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", p.Config.AppName+"/"+p.Config.AppVersion)

	return &Fetcher{
		client: client,
		db:     p.DB,
		node:   p.Node,
		policy: retry.Default("provider.fetch", timeout),
	}
}

// FetchOffers retries transport errors, 429 and 5xx responses. Other 4xx responses fail at once.
func (f *Fetcher) FetchOffers(ctx context.Context, p *Provider) ([]Offer, error) {
	if p.FetchURL == "" {
		return nil, fmt.Errorf("provider %s has no fetch url", p.Name)
	}

	var offers []Offer
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var out offersResponse
		req := f.client.R().SetContext(ctx).SetResult(&out)
		if p.APIKey != "" {
			req.SetAuthToken(p.APIKey).SetQueryParam("api_key", p.APIKey)
		}

		resp, err := req.Get(p.FetchURL)
		if err != nil {
			f.logConnection(ctx, p.Name, ConnectionFailed, err.Error())
			return err
		}

		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests:
			f.logConnection(ctx, p.Name, ConnectionRateLimited, "rate limited")
			return fmt.Errorf("provider %s rate limited", p.Name)
		case code >= http.StatusInternalServerError:
			f.logConnection(ctx, p.Name, ConnectionFailed, resp.Status())
			return fmt.Errorf("provider %s returned %d", p.Name, code)
		case code >= http.StatusBadRequest:
			f.logConnection(ctx, p.Name, ConnectionFailed, resp.Status())
			return retry.Permanent(fmt.Errorf("provider %s returned %d", p.Name, code))
		}

		f.logConnection(ctx, p.Name, ConnectionConnected, fmt.Sprintf("%d offers", len(out.Offers)))
		offers = out.Offers
		return nil
	})
	if err != nil {
		zap.L().Error("[Provider] fetch failed", zap.String("provider", p.Name), zap.Error(err))
		return nil, err
	}
	return offers, nil
}

// logConnection detaches from ctx so a timed-out attempt is still recorded.
func (f *Fetcher) logConnection(ctx context.Context, provider string, status ConnectionStatus, msg string) {
	entry := &ConnectionLog{
		ID:       f.node.Generate().String(),
		Provider: provider,
		Status:   status,
		Message:  msg,
	}
	if err := f.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; err != nil {
		zap.L().Warn("[Provider] failed to write connection log", zap.String("provider", provider), zap.Error(err))
	}
}
