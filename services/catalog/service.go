package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/metrics"
	"smallbiznis-rewards/pkg/money"
	"smallbiznis-rewards/pkg/rediskey"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/services/provider"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	defaultCacheTTL = 5 * time.Minute
	fetchLockTTL    = 2 * time.Minute
)

type OfferFetcher interface {
	FetchOffers(ctx context.Context, p *provider.Provider) ([]provider.Offer, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	rdb      *redis.Client
	registry *provider.Registry
	fetcher  OfferFetcher
	rate     decimal.Decimal
	ttl      time.Duration

	group singleflight.Group

	task     repository.Repository[Task]
	category repository.Repository[TaskCategory]
	fetchLog repository.Repository[TaskFetchLog]
}

type ServiceParams struct {
	fx.In
	Config   *config.Config
	DB       *gorm.DB
	Node     *snowflake.Node
	Redis    *redis.Client `optional:"true"`
	Registry *provider.Registry
	Fetcher  *provider.Fetcher
}

func NewService(p ServiceParams) *Service {
	return newService(p.Config, p.DB, p.Node, p.Redis, p.Registry, p.Fetcher)
}

func newService(cfg *config.Config, db *gorm.DB, node *snowflake.Node, rdb *redis.Client, registry *provider.Registry, fetcher OfferFetcher) *Service {
	ttl := cfg.Catalog.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	rate := decimal.NewFromFloat(cfg.Currency.USDToUGXRate)
	if rate.Sign() <= 0 {
		rate = money.DefaultUSDRate
	}

	return &Service{
		db:       db,
		node:     node,
		rdb:      rdb,
		registry: registry,
		fetcher:  fetcher,
		rate:     rate,
		ttl:      ttl,

		task:     repository.ProvideStore[Task](db),
		category: repository.ProvideStore[TaskCategory](db),
		fetchLog: repository.ProvideStore[TaskFetchLog](db),
	}
}

// NormalizeCategory slugs a provider category, defaulting to "general".
func NormalizeCategory(c string) string {
	s := slug.Make(strings.TrimSpace(c))
	if s == "" {
		return DefaultCategory
	}
	return s
}

// Upsert creates or updates the task keyed on (provider, provider_task_id) and reports whether it was created.
// A new task's reward cap starts at the listed reward; later upserts leave the cap alone.
func (s *Service) Upsert(ctx context.Context, p UpsertParams) (*Task, bool, error) {
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	p.ProviderTaskID = strings.TrimSpace(p.ProviderTaskID)
	if p.Provider == "" || p.ProviderTaskID == "" {
		return nil, false, errutil.BadRequest("provider and provider_task_id are required", nil)
	}
	if strings.TrimSpace(p.Title) == "" {
		p.Title = "Unnamed Offer"
	}
	category := NormalizeCategory(p.Category)

	existing, err := s.task.FindOne(ctx, &Task{ProviderName: p.Provider, ProviderTaskID: p.ProviderTaskID})
	if err != nil {
		return nil, false, errutil.Internal("failed to load task", err)
	}

	if existing == nil {
		t := &Task{
			ID:             s.node.Generate().String(),
			InternalTaskID: uuid.NewString(),
			ProviderName:   p.Provider,
			ProviderTaskID: p.ProviderTaskID,
			Title:          p.Title,
			Description:    p.Description,
			Category:       category,
			ProviderReward: p.Reward,
			AdminRewardCap: p.Reward,
			IsActive:       true,
			RawPayload:     p.RawPayload,
		}
		err := s.task.Create(ctx, t)
		if err == nil {
			return t, true, nil
		}
		if !repository.IsDuplicate(err) {
			return nil, false, errutil.Internal("failed to create task", err)
		}

		existing, err = s.task.FindOne(ctx, &Task{ProviderName: p.Provider, ProviderTaskID: p.ProviderTaskID})
		if err != nil || existing == nil {
			return nil, false, errutil.Internal("failed to load task", err)
		}
	}

	updates := map[string]any{
		"title":           p.Title,
		"description":     p.Description,
		"category":        category,
		"provider_reward": p.Reward,
		"is_active":       true,
	}
	if len(p.RawPayload) > 0 {
		updates["raw_payload"] = p.RawPayload
	}
	if err := s.task.Update(ctx, existing.ID, updates); err != nil {
		return nil, false, errutil.Internal("failed to update task", err)
	}

	existing.Title, existing.Description, existing.Category = p.Title, p.Description, category
	existing.ProviderReward, existing.IsActive = p.Reward, true
	return existing, false, nil
}

// SetRewardCap replaces a task's admin reward cap. Zero removes the cap.
func (s *Service) SetRewardCap(ctx context.Context, id string, rewardCap int64) (*Task, error) {
	if rewardCap < 0 {
		return nil, errutil.BadRequest("admin_reward_cap must not be negative", nil)
	}
	t, err := s.task.FindOne(ctx, &Task{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load task", err)
	}
	if t == nil {
		return nil, errutil.NotFound("task not found", nil)
	}
	if err := s.task.Update(ctx, t.ID, map[string]any{"admin_reward_cap": rewardCap}); err != nil {
		return nil, errutil.Internal("failed to update task", err)
	}
	t.AdminRewardCap = rewardCap
	s.Invalidate(ctx)

	zap.L().Info("[Catalog] reward cap updated", zap.String("task_id", t.ID), zap.Int64("admin_reward_cap", rewardCap))
	return t, nil
}

// FindByProviderTask returns nil, nil when the offer is unknown.
func (s *Service) FindByProviderTask(ctx context.Context, providerName, providerTaskID string) (*Task, error) {
	if providerTaskID == "" {
		return nil, nil
	}
	t, err := s.task.FindOne(ctx, &Task{ProviderName: strings.ToLower(providerName), ProviderTaskID: providerTaskID})
	if err != nil {
		return nil, errutil.Internal("failed to load task", err)
	}
	return t, nil
}

// FetchActive reads active tasks through the redis cache. Concurrent misses for
// the same key share one database read.
func (s *Service) FetchActive(ctx context.Context, providerName string) ([]*Task, error) {
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	key := rediskey.BuildCatalogKey(providerName)

	if tasks, ok := s.readCache(ctx, key); ok {
		metrics.CatalogCache.WithLabelValues("hit").Inc()
		return tasks, nil
	}
	metrics.CatalogCache.WithLabelValues("miss").Inc()

	v, err, _ := s.group.Do(key, func() (any, error) {
		tasks, err := s.loadActive(ctx, providerName)
		if err != nil {
			return nil, err
		}
		s.writeCache(ctx, key, tasks)
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Task), nil
}

func (s *Service) loadActive(ctx context.Context, providerName string) ([]*Task, error) {
	opts := []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: true}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
	}
	if providerName != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "provider_name", Operator: option.EQ, Value: providerName}))
	}

	tasks, err := s.task.Find(ctx, &Task{}, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to load tasks", err)
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	return tasks, nil
}

func (s *Service) readCache(ctx context.Context, key string) ([]*Task, bool) {
	if s.rdb == nil {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("[Catalog] cache read failed, using database", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var tasks []*Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		zap.L().Warn("[Catalog] corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return tasks, true
}

func (s *Service) writeCache(ctx context.Context, key string, tasks []*Task) {
	if s.rdb == nil {
		return
	}
	b, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
		zap.L().Warn("[Catalog] cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the aggregate key and every provider key.
func (s *Service) Invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	keys := []string{rediskey.BuildCatalogKey("")}
	for _, p := range s.registry.APIProviders() {
		keys = append(keys, rediskey.BuildCatalogKey(p.Name))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		zap.L().Warn("[Catalog] cache invalidation failed", zap.Error(err))
	}
}

// Refresh fetches every API-mode provider concurrently. One provider failing does not stop the others.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	var (
		mu      sync.Mutex
		created int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.registry.APIProviders() {
		p := p
		g.Go(func() error {
			release, ok := s.lockProvider(gctx, p.Name)
			if !ok {
				zap.L().Info("[Catalog] provider refresh already running", zap.String("provider", p.Name))
				return nil
			}
			defer release()

			n := s.refreshProvider(gctx, p)
			mu.Lock()
			created += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return created, err
	}

	s.Invalidate(ctx)
	zap.L().Info("[Catalog] refresh finished", zap.Int("created", created))
	return created, nil
}

// lockProvider takes the per-provider fetch lock so replicas do not refresh the same provider at once.
// Without redis the lock is always granted.
func (s *Service) lockProvider(ctx context.Context, name string) (func(), bool) {
	if s.rdb == nil {
		return func() {}, true
	}

	key := rediskey.BuildProviderFetchLockKey(name)
	ok, err := s.rdb.SetNX(ctx, key, s.node.Generate().String(), fetchLockTTL).Result()
	if err != nil {
		zap.L().Warn("[Catalog] fetch lock unavailable, refreshing anyway", zap.String("provider", name), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.rdb.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			zap.L().Warn("[Catalog] failed to release fetch lock", zap.String("provider", name), zap.Error(err))
		}
	}, true
}

func (s *Service) refreshProvider(ctx context.Context, p *provider.Provider) int {
	log := &TaskFetchLog{ID: s.node.Generate().String(), Provider: p.Name}
	defer func() {
		if err := s.fetchLog.Create(context.WithoutCancel(ctx), log); err != nil {
			zap.L().Warn("[Catalog] failed to write fetch log", zap.String("provider", p.Name), zap.Error(err))
		}
	}()

	offers, err := s.fetcher.FetchOffers(ctx, p)
	if err != nil {
		log.Status, log.Message = FetchFailed, err.Error()
		zap.L().Error("[Catalog] provider refresh failed", zap.String("provider", p.Name), zap.Error(err))
		return 0
	}

	log.FetchedCount = len(offers)
	var failed int
	for _, offer := range offers {
		raw, _ := json.Marshal(offer)
		_, isNew, err := s.Upsert(ctx, UpsertParams{
			Provider:       p.Name,
			ProviderTaskID: offer.ID,
			Title:          offer.Title,
			Description:    offer.Description,
			Reward:         money.Normalize(offer.Payout, s.rate),
			Category:       offer.Category,
			RawPayload:     raw,
		})
		if err != nil {
			failed++
			zap.L().Warn("[Catalog] skipping offer", zap.String("provider", p.Name), zap.String("offer_id", offer.ID), zap.Error(err))
			continue
		}
		if isNew {
			log.CreatedCount++
		}
	}

	log.Status = FetchSuccess
	if failed > 0 {
		log.Message = fmt.Sprintf("%d offers skipped", failed)
	}
	zap.L().Info("[Catalog] provider refreshed",
		zap.String("provider", p.Name),
		zap.Int("fetched", log.FetchedCount),
		zap.Int("created", log.CreatedCount),
	)
	return log.CreatedCount
}

// Category returns the active category by code, or nil.
func (s *Service) Category(ctx context.Context, code string) (*TaskCategory, error) {
	c, err := s.category.FindOne(ctx, &TaskCategory{Code: code})
	if err != nil {
		return nil, errutil.Internal("failed to load category", err)
	}
	if c == nil || !c.Active {
		return nil, nil
	}
	return c, nil
}
