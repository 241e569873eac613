package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/middleware"
	"smallbiznis-rewards/pkg/signature"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/idempotency"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/provider"
	"smallbiznis-rewards/services/testutil"
	"smallbiznis-rewards/services/transaction"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

const adgemKey = "adgem-key"

type fixture struct {
	db       *gorm.DB
	pipeline *Pipeline
	catalog  *catalog.Service
	ledger   *ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&account.Account{}, &ledger.RewardLog{}, &transaction.Transaction{},
		&catalog.Task{}, &catalog.TaskCategory{}, &catalog.TaskFetchLog{},
		&idempotency.Key{}, &Log{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{
		Providers: map[string]config.Provider{
			"adgem":   {Enabled: true, Mode: "api", Verify: "hmac", Secret: adgemKey},
			"wannads": {Enabled: true, Mode: "iframe", Verify: "md5", Secret: "wannads-secret"},
			"cpalead": {Enabled: true, Mode: "iframe", Verify: "ip", AllowedIPs: []string{"10.0.0.0/8"}},
			"adscend": {Enabled: true, Mode: "iframe", Verify: "none", AcceptExpr: `status != "chargeback"`},
		},
	}
	cfg.Currency.USDToUGXRate = 3800

	registry, err := provider.NewRegistry(cfg)
	require.NoError(t, err)

	publisher := events.LogPublisher{}
	ledgerSvc := ledger.NewService(ledger.ServiceParams{
		DB: db, Node: node, Publisher: publisher,
		TxStore: transaction.NewStore(transaction.StoreParams{DB: db}),
	})
	catalogSvc := catalog.NewService(catalog.ServiceParams{Config: cfg, DB: db, Node: node, Registry: registry})

	pipeline := NewPipeline(PipelineParams{
		Config:    cfg,
		DB:        db,
		Node:      node,
		Registry:  registry,
		Catalog:   catalogSvc,
		Ledger:    ledgerSvc,
		Guard:     idempotency.NewGuard(idempotency.GuardParams{DB: db, Node: node}),
		Publisher: publisher,
	})

	return &fixture{db: db, pipeline: pipeline, catalog: catalogSvc, ledger: ledgerSvc}
}

func (f *fixture) account(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&account.Account{ID: "acc-" + userID, UserID: userID, InviteCode: "REN-" + userID}).Error)
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (f *fixture) countLogs(t *testing.T, outcome Outcome) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&Log{}).Where("outcome = ?", outcome).Count(&n).Error)
	return n
}

func adgemRequest(body string) Request {
	return Request{
		Provider:    "adgem",
		Body:        []byte(body),
		ContentType: "application/json",
		Header:      http.Header{"X-Signature": {signature.HMACSHA256Hex([]byte(body), adgemKey)}},
		RemoteIP:    "203.0.113.5",
	}
}

func TestReplayCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")
	ctx := context.Background()

	body := `{"user_id":"u1","offer_id":"o1","transaction_id":"tx-1","amount":"1.00"}`
	for i := 0; i < 5; i++ {
		res, err := f.pipeline.Process(ctx, adgemRequest(body))
		require.NoError(t, err)
		if i == 0 {
			require.Equal(t, OutcomeOK, res.Status)
			require.Equal(t, int64(3800), res.RewardApplied)
		} else {
			require.Equal(t, OutcomeDuplicate, res.Status)
		}
	}

	require.Equal(t, int64(3800), f.balance(t, "u1"))
	require.Equal(t, int64(1), f.countLogs(t, OutcomeOK))
	require.Equal(t, int64(4), f.countLogs(t, OutcomeDuplicate))
}

func TestConcurrentDeliveriesCreditOnce(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")

	body := `{"user_id":"u1","transaction_id":"tx-race","amount":"0.50"}`
	const n = 8
	var wg sync.WaitGroup
	results := make(chan Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.pipeline.Process(context.Background(), adgemRequest(body))
			if err == nil {
				results <- res.Status
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[Outcome]int{}
	for o := range results {
		counts[o]++
	}
	require.Equal(t, 1, counts[OutcomeOK])
	require.Equal(t, n-1, counts[OutcomeDuplicate])
	require.Equal(t, int64(1900), f.balance(t, "u1"))
}

func TestRewardIsCappedByTask(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")
	ctx := context.Background()

	task, _, err := f.catalog.Upsert(ctx, catalog.UpsertParams{Provider: "adgem", ProviderTaskID: "o1", Title: "Install", Reward: 3800, Category: "Apps"})
	require.NoError(t, err)
	_, err = f.catalog.SetRewardCap(ctx, task.ID, 3000)
	require.NoError(t, err)

	res, err := f.pipeline.Process(ctx, adgemRequest(`{"user_id":"u1","offer_id":"o1","transaction_id":"tx-9","amount":1.00}`))
	require.NoError(t, err)
	require.Equal(t, int64(3000), res.RewardApplied)
	require.Equal(t, int64(3000), f.balance(t, "u1"))

	var entry ledger.RewardLog
	require.NoError(t, f.db.Where("user_id = ?", "u1").First(&entry).Error)
	require.Equal(t, "apps", entry.Category)
	require.Equal(t, int64(3800), entry.ProviderAmount)
	require.Equal(t, int64(3000), entry.Amount)
	require.NotNil(t, entry.TaskID)
}

func TestListedRewardCapsOverReportedPostback(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")
	ctx := context.Background()

	// listed at 1.00 USD, the postback claims 5.00
	task, created, err := f.catalog.Upsert(ctx, catalog.UpsertParams{Provider: "adgem", ProviderTaskID: "o7", Title: "Survey", Reward: 3800})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(3800), task.AdminRewardCap)

	res, err := f.pipeline.Process(ctx, adgemRequest(`{"user_id":"u1","offer_id":"o7","transaction_id":"tx-over","amount":"5.00"}`))
	require.NoError(t, err)
	require.Equal(t, int64(3800), res.RewardApplied)
	require.Equal(t, int64(3800), f.balance(t, "u1"))

	var entry ledger.RewardLog
	require.NoError(t, f.db.Where("user_id = ?", "u1").First(&entry).Error)
	require.Equal(t, int64(19000), entry.ProviderAmount)
	require.Equal(t, int64(3800), entry.Amount)
}

func TestUnknownOfferIsUncategorized(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")

	res, err := f.pipeline.Process(context.Background(), adgemRequest(`{"uid":"u1","oid":"missing","tid":"tx-2","reward":"2"}`))
	require.NoError(t, err)
	require.Equal(t, int64(7600), res.RewardApplied)

	var entry ledger.RewardLog
	require.NoError(t, f.db.Where("user_id = ?", "u1").First(&entry).Error)
	require.Equal(t, ledger.CategoryUncategorized, entry.Category)
}

func TestInvalidSignatureChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")

	req := adgemRequest(`{"user_id":"u1","transaction_id":"tx-1","amount":"1.00"}`)
	req.Header.Set("X-Signature", strings.Repeat("0", 64))

	_, err := f.pipeline.Process(context.Background(), req)
	require.True(t, errutil.Is(err, errutil.StatusForbidden))
	require.Zero(t, f.balance(t, "u1"))

	var row Log
	require.NoError(t, f.db.First(&row).Error)
	require.Equal(t, OutcomeRejected, row.Outcome)
	require.False(t, row.SignatureValid)

	var keys int64
	require.NoError(t, f.db.Model(&idempotency.Key{}).Count(&keys).Error)
	require.Zero(t, keys)
}

func TestMissingAccountRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := `{"user_id":"ghost","transaction_id":"tx-3","amount":"1.00"}`

	_, err := f.pipeline.Process(ctx, adgemRequest(body))
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	var keys int64
	require.NoError(t, f.db.Model(&idempotency.Key{}).Count(&keys).Error)
	require.Zero(t, keys)

	// the provider retries once the account exists
	f.account(t, "ghost")
	res, err := f.pipeline.Process(ctx, adgemRequest(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Status)
}

func TestUnknownProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Process(context.Background(), Request{Provider: "nope", Body: []byte(`{}`)})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
	require.Equal(t, int64(1), f.countLogs(t, OutcomeRejected))
}

func TestMD5Verification(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")
	ctx := context.Background()

	sig := signature.MD5Composite("u1", "w-1", "0.75", "wannads-secret")
	body := fmt.Sprintf(`{"user_id":"u1","transaction_id":"w-1","reward":"0.75","signature":"%s"}`, sig)
	res, err := f.pipeline.Process(ctx, Request{Provider: "wannads", Body: []byte(body), ContentType: "application/json"})
	require.NoError(t, err)
	require.Equal(t, int64(2850), res.RewardApplied)

	bad := `{"user_id":"u1","transaction_id":"w-2","reward":"0.75","signature":"deadbeef"}`
	_, err = f.pipeline.Process(ctx, Request{Provider: "wannads", Body: []byte(bad), ContentType: "application/json"})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))
}

func TestIPAllowlist(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")
	ctx := context.Background()
	body := []byte(`{"user_id":"u1","transaction_id":"c-1","amount":"1"}`)

	_, err := f.pipeline.Process(ctx, Request{Provider: "cpalead", Body: body, RemoteIP: "198.51.100.7"})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	res, err := f.pipeline.Process(ctx, Request{Provider: "cpalead", Body: body, RemoteIP: "10.1.2.3"})
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Status)
}

func TestAcceptRuleAndRequiredFields(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, Request{Provider: "adscend", Body: []byte(`{"user_id":"u1","transaction_id":"a-1","amount":"1","status":"chargeback"}`)})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.pipeline.Process(ctx, Request{Provider: "adscend", Body: []byte(`{"user_id":"u1","amount":"1"}`)})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.pipeline.Process(ctx, Request{Provider: "adscend", Body: []byte(`{"user_id":"u1","transaction_id":"a-2","amount":"0"}`)})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	require.Zero(t, f.balance(t, "u1"))
}

func TestHandlerStatusCodes(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")

	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(f.pipeline).Register(httpapi.Groups{Root: &r.RouterGroup})

	body := `{"user_id":"u1","transaction_id":"h-1","amount":"1.00"}`
	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook/adgem", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", sig)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send("bad")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = send(signature.HMACSHA256Hex([]byte(body), adgemKey))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","reward_applied":3800}`, w.Body.String())

	w = send(signature.HMACSHA256Hex([]byte(body), adgemKey))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())
}

func TestForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	f := newFixture(t)
	f.account(t, "u1")

	engine := func(trusted ...string) *gin.Engine {
		cfg := &config.Config{}
		cfg.Server.TrustedProxies = trusted
		r, err := httpapi.NewEngine(httpapi.EngineParams{Config: cfg, Routes: []httpapi.Routes{NewHandler(f.pipeline)}})
		require.NoError(t, err)
		return r
	}
	send := func(r *gin.Engine, remote, forwarded, txID string) *httptest.ResponseRecorder {
		body := fmt.Sprintf(`{"user_id":"u1","transaction_id":%q,"amount":"1"}`, txID)
		req := httptest.NewRequest(http.MethodPost, "/webhook/cpalead", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	direct := engine()
	w := send(direct, "198.51.100.7:4444", "10.9.9.9", "xff-1")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Zero(t, f.balance(t, "u1"))

	w = send(direct, "10.1.2.3:4444", "", "xff-2")
	require.Equal(t, http.StatusOK, w.Code)

	proxied := engine("192.0.2.1")
	w = send(proxied, "192.0.2.1:4444", "10.9.9.9", "xff-3")
	require.Equal(t, http.StatusOK, w.Code)

	w = send(proxied, "198.51.100.7:4444", "10.9.9.9", "xff-4")
	require.Equal(t, http.StatusForbidden, w.Code)

	require.Equal(t, int64(7600), f.balance(t, "u1"))
}
