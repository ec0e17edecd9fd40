// Package fetch adapts net/http into the loader's AssetFetcher interface,
// reusing go-overpass's retry/backoff policy rather than hand-rolling one.
package fetch

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/MeKo-Christian/go-overpass"

	"github.com/MeKo-Tech/tile3d/internal/loader"
)

// HTTPFetcher is the default AssetFetcher: a retrying net/http client.
type HTTPFetcher struct {
	Client      *http.Client
	RetryConfig overpass.RetryConfig
}

// NewHTTPFetcher builds a fetcher with go-overpass's default retry policy.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:      http.DefaultClient,
		RetryConfig: overpass.DefaultRetryConfig(),
	}
}

// ErrFetchTransient wraps network errors and 5xx responses (a 401 is
// reported as ErrFetchUnauthorized instead) — the loader maps these to
// FailedTemporary.
var ErrFetchTransient = errors.New("fetch: transient failure")

// ErrFetchPermanent wraps 4xx (other than 401) and malformed-URL errors.
// Fetch does not retry them, but the loader does not tell them apart from
// transient errors: it re-queues the tile until its retry budget is used up
// and only then marks it Failed.
var ErrFetchPermanent = errors.New("fetch: permanent failure")

// ErrFetchUnauthorized wraps a 401 response. Unlike other transient
// failures it is never retried within Fetch itself — the scheduler's
// token-refresh hook must run first, so Fetch returns it straight to the
// caller on the first occurrence.
var ErrFetchUnauthorized = errors.New("fetch: unauthorized")

// Fetch implements loader.AssetFetcher, retrying transient failures with
// go-overpass's exponential-backoff-with-jitter policy.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*loader.FetchResponse, error) {
	backoff := f.RetryConfig.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= f.RetryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, jitter(backoff, f.RetryConfig.Jitter)); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff, f.RetryConfig.BackoffMultiplier, f.RetryConfig.MaxBackoff)
		}

		resp, err := f.attempt(ctx, url, headers)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrFetchPermanent) || errors.Is(err, ErrFetchUnauthorized) {
			return resp, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *HTTPFetcher) attempt(ctx context.Context, url string, headers map[string]string) (*loader.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Join(ErrFetchPermanent, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrFetchTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(ErrFetchTransient, err)
	}

	out := &loader.FetchResponse{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
		Body:       body,
	}
	for k := range resp.Header {
		out.Headers[k] = resp.Header.Get(k)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return out, errors.Join(ErrFetchUnauthorized, errors.New("401 unauthorized"))
	case resp.StatusCode >= 500:
		return out, errors.Join(ErrFetchTransient, errors.New(resp.Status))
	case resp.StatusCode >= 400:
		return out, errors.Join(ErrFetchPermanent, errors.New(resp.Status))
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitter(d time.Duration, enabled bool) time.Duration {
	if !enabled {
		return d
	}
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}
