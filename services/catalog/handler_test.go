package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSetRewardCap(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{})
	ctx := context.Background()

	task, _, err := svc.Upsert(ctx, UpsertParams{Provider: "adgem", ProviderTaskID: "o1", Title: "Install", Reward: 3800})
	require.NoError(t, err)

	updated, err := svc.SetRewardCap(ctx, task.ID, 2500)
	require.NoError(t, err)
	require.Equal(t, int64(2500), updated.AdminRewardCap)

	// a later refresh keeps the admin's cap
	_, _, err = svc.Upsert(ctx, UpsertParams{Provider: "adgem", ProviderTaskID: "o1", Title: "Install", Reward: 7600})
	require.NoError(t, err)
	found, err := svc.FindByProviderTask(ctx, "adgem", "o1")
	require.NoError(t, err)
	require.Equal(t, int64(2500), found.AdminRewardCap)
	require.Equal(t, int64(7600), found.ProviderReward)

	_, err = svc.SetRewardCap(ctx, task.ID, -1)
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = svc.SetRewardCap(ctx, "missing", 100)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestSetCapRoute(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{})
	task, _, err := svc.Upsert(context.Background(), UpsertParams{Provider: "adgem", ProviderTaskID: "o1", Title: "Install", Reward: 3800})
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(svc).Register(httpapi.Groups{
		Public: r.Group("/api/v1"),
		Admin:  r.Group("/admin", middleware.AdminKey("admin-secret")),
	})

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/admin/tasks/"+task.ID+"/cap", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("X-Admin-Key", key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send("", `{"admin_reward_cap":1000}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = send("admin-secret", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send("admin-secret", `{"admin_reward_cap":0}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, task.ID, got.ID)
	require.Zero(t, got.AdminRewardCap)

	found, err := svc.FindByProviderTask(context.Background(), "adgem", "o1")
	require.NoError(t, err)
	require.Zero(t, found.AdminRewardCap)
	require.Equal(t, int64(7600), found.Cap(7600))
}
