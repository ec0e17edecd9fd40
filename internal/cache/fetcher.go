package cache

import (
	"context"

	"github.com/MeKo-Tech/tile3d/internal/loader"
)

// CachingFetcher wraps a loader.AssetFetcher with a disk-backed Store: a hit
// returns the cached response without touching the network; a miss fetches,
// then stores the response before returning it.
type CachingFetcher struct {
	Store  *Store
	Inner  loader.AssetFetcher
}

// NewCachingFetcher wires a Store in front of inner.
func NewCachingFetcher(store *Store, inner loader.AssetFetcher) *CachingFetcher {
	return &CachingFetcher{Store: store, Inner: inner}
}

// Fetch implements loader.AssetFetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*loader.FetchResponse, error) {
	if status, data, ok, err := f.Store.Get(url); err == nil && ok {
		return &loader.FetchResponse{StatusCode: status, Body: data}, nil
	}

	resp, err := f.Inner.Fetch(ctx, url, headers)
	if err != nil {
		return resp, err
	}

	_ = f.Store.Put(url, resp.StatusCode, resp.Body) // cache writes are best-effort
	return resp, nil
}
