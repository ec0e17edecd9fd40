// Package loader implements the tile lifecycle state machine and the load
// scheduler — three priority queues, a concurrency cap, an LRU of loaded
// tiles, and byte-budgeted eviction.
package loader

import (
	"context"

	"github.com/MeKo-Tech/tile3d/internal/geom"
	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// FetchResponse is an AssetFetcher's result: status, headers, body.
type FetchResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// AssetFetcher is the external HTTP collaborator. Implementations must not
// mutate engine state.
type AssetFetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*FetchResponse, error)
}

// AvailabilityRectangle names a further tile-availability rectangle
// discovered while parsing (used by subdivision schemes).
type AvailabilityRectangle struct {
	Level, X, Y int
}

// ParseResult is a ContentParser's output.
type ParseResult struct {
	Model                  *tileset.Model
	Children               []*tileset.Tile
	TighterBoundingVolume  *geom.BoundingVolume
	AvailabilityRectangles []AvailabilityRectangle
}

// ContentParser decodes fetched bytes into a model plus any discovered
// children or tighter bounding volume.
type ContentParser interface {
	Parse(ctx context.Context, body []byte, url string) (*ParseResult, error)
}

// ResourcePreparer is the two-phase GPU upload collaborator: a
// worker-thread call that precomputes format-neutral data, and a
// main-thread call that uploads and returns an opaque handle.
type ResourcePreparer interface {
	PrepareInWorkerThread(model *tileset.Model) (interface{}, error)
	PrepareInMainThread(prepared interface{}) (handle interface{}, err error)
	Release(handle interface{})
}

// TaskProcessor runs a closure on some worker thread, with no ordering
// guarantee between tasks.
type TaskProcessor interface {
	StartTask(fn func())
}

// TokenRefresher issues the single refresh request that runs when a
// token-gated asset's request completes with 401.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}
