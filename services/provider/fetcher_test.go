package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"smallbiznis-rewards/pkg/retry"
	"smallbiznis-rewards/services/testutil"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	db := testutil.NewTestDB(t, &ConnectionLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := NewFetcher(FetcherParams{Config: testConfig(), DB: db, Node: node})
	f.policy = retry.Policy{Name: "test", MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	return f
}

func TestFetchOffersRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"offers":[{"id":"o1","title":"Install app","payout":"1.25","category":"Mobile Apps"}]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	offers, err := f.FetchOffers(context.Background(), &Provider{Name: "adgem", FetchURL: srv.URL, APIKey: "key-1"})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, "o1", offers[0].ID)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	var logs []ConnectionLog
	require.NoError(t, f.db.Order("created_at asc").Find(&logs).Error)
	require.Len(t, logs, 2)
	statuses := []ConnectionStatus{logs[0].Status, logs[1].Status}
	require.ElementsMatch(t, []ConnectionStatus{ConnectionRateLimited, ConnectionConnected}, statuses)
}

func TestFetchOffersClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchOffers(context.Background(), &Provider{Name: "adgem", FetchURL: srv.URL})
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchOffersRecordsTimedOutAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	f.policy.MaxAttempts = 2
	f.policy.AttemptTimeout = 50 * time.Millisecond

	_, err := f.FetchOffers(context.Background(), &Provider{Name: "adgem", FetchURL: srv.URL})
	require.Error(t, err)

	var logs []ConnectionLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 2)
	for _, l := range logs {
		require.Equal(t, ConnectionFailed, l.Status)
		require.Equal(t, "adgem", l.Provider)
	}
}
