package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() overpass.RetryConfig {
	cfg := overpass.DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestFetchSucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tile3D-Test", "yes")
		w.Write([]byte("tile bytes"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), RetryConfig: fastRetryConfig()}
	resp, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("tile bytes"), resp.Body)
	assert.Equal(t, "yes", resp.Headers["X-Tile3D-Test"])
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := fastRetryConfig()
	cfg.MaxRetries = 5
	f := &HTTPFetcher{Client: srv.Client(), RetryConfig: cfg}
	resp, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchExhaustsRetriesOnPersistentTransientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	f := &HTTPFetcher{Client: srv.Client(), RetryConfig: cfg}
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchTransient)
}

func TestFetchUnauthorizedReturnsImmediatelyWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := fastRetryConfig()
	cfg.MaxRetries = 5
	f := &HTTPFetcher{Client: srv.Client(), RetryConfig: cfg}
	resp, err := f.Fetch(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchUnauthorized)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a 401 must not be retried by Fetch itself")
}

func TestFetchPermanentFailureReturnsImmediatelyWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := fastRetryConfig()
	cfg.MaxRetries = 5
	f := &HTTPFetcher{Client: srv.Client(), RetryConfig: cfg}
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchPermanent)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchSendsRequestHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), RetryConfig: fastRetryConfig()}
	_, err := f.Fetch(context.Background(), srv.URL, map[string]string{"Authorization": "Bearer abc"})
	require.NoError(t, err)
}
