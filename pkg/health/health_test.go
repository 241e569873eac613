package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pingErr(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func readiness(t *testing.T, svc HealthService) (int, Health) {
	t.Helper()
	r := gin.New()
	r.GET("/readyz", svc.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestReadinessHealthy(t *testing.T) {
	code, body := readiness(t, New(
		Check{Name: "postgres", Critical: true, Ping: pingErr(nil)},
		Check{Name: "redis", Ping: pingErr(nil)},
	))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, StatusHealthy, body.Status)
	require.Len(t, body.Deps, 2)
}

func TestReadinessRedisDegrades(t *testing.T) {
	code, body := readiness(t, New(
		Check{Name: "postgres", Critical: true, Ping: pingErr(nil)},
		Check{Name: "redis", Ping: pingErr(errors.New("connection refused"))},
	))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, StatusDegraded, body.Status)
	require.Equal(t, StatusDegraded, body.Deps[1].Status)
}

func TestReadinessDatabaseFails(t *testing.T) {
	code, body := readiness(t, New(
		Check{Name: "postgres", Critical: true, Ping: pingErr(errors.New("timeout"))},
		Check{Name: "redis", Ping: pingErr(errors.New("connection refused"))},
	))
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, StatusUnhealthy, body.Status)
	require.Equal(t, "postgres unavailable", body.Message)
}
