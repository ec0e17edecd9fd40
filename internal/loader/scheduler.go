package loader

import (
	"container/list"
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/tile3d/internal/config"
	"github.com/MeKo-Tech/tile3d/internal/selector"
	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// maxRetryCount bounds ContentLoading -> FailedTemporary -> Unloaded
// retries before a tile is given up on permanently.
const maxRetryCount = 3

// completion is a load callback's result, handed from a worker goroutine to
// the main-thread drain via a channel.
type completion struct {
	tile         *tileset.Tile
	result       *ParseResult
	prepared     interface{}
	bodyLen      int
	err          error
	unauthorized bool
}

// Scheduler implements the tile state machine, the three priority queues'
// dispatch, the in-flight concurrency cap, the LRU, and byte-budgeted
// eviction.
type Scheduler struct {
	Options config.TilesetOptions

	Fetcher   AssetFetcher
	Parser    ContentParser
	Preparer  ResourcePreparer
	Tasks     TaskProcessor
	Refresher TokenRefresher

	inFlight int64 // atomic; shared across worker goroutines

	mu         sync.Mutex
	lru        *list.List // *tileset.Tile, front = most recently touched
	totalBytes int64

	pendingRetries      map[*tileset.Tile]int
	unauthorizedPending map[*tileset.Tile]struct{}
	refreshing          bool

	completions chan completion
}

// NewScheduler wires a Scheduler against its four external collaborators.
// Preparer and Refresher may be nil when content carries no GPU resources
// or no token-gated assets are in use.
func NewScheduler(opts config.TilesetOptions, fetcher AssetFetcher, parser ContentParser, preparer ResourcePreparer, tasks TaskProcessor, refresher TokenRefresher) *Scheduler {
	return &Scheduler{
		Options:             opts,
		Fetcher:             fetcher,
		Parser:              parser,
		Preparer:            preparer,
		Tasks:               tasks,
		Refresher:           refresher,
		lru:                 list.New(),
		pendingRetries:      make(map[*tileset.Tile]int),
		unauthorizedPending: make(map[*tileset.Tile]struct{}),
		completions:         make(chan completion, 256),
	}
}

// InFlight returns the current number of outstanding loads.
func (s *Scheduler) InFlight() int64 { return atomic.LoadInt64(&s.inFlight) }

// RunFrame drains completed loads, dispatches newly-queued ones up to the
// concurrency cap, and runs eviction — in that order, so the next traversal
// sees this frame's ContentLoaded tiles.
func (s *Scheduler) RunFrame(ctx context.Context, result *selector.ViewUpdateResult) {
	s.drainCompletions()
	s.maybeRefreshToken(ctx)
	s.dispatch(ctx, result)
	s.evict(result.TilesToRenderThisFrame)
}

// dispatch drains the selector's already-sorted priority buckets — High,
// then Medium, then Low — into Unloaded -> ContentLoading transitions,
// stopping at the concurrency cap. Tiles already ContentLoading, or
// already dispatched this frame, are skipped.
func (s *Scheduler) dispatch(ctx context.Context, result *selector.ViewUpdateResult) {
	seen := make(map[*tileset.Tile]bool)
	buckets := [][]selector.LoadIntent{
		result.TilesLoadingHighPriority,
		result.TilesLoadingMediumPriority,
		result.TilesLoadingLowPriority,
	}
	for _, bucket := range buckets {
		for _, intent := range bucket {
			if atomic.LoadInt64(&s.inFlight) >= int64(s.Options.MaximumSimultaneousTileLoads) {
				return
			}
			tile := intent.Tile
			if seen[tile] || tile.State != tileset.Unloaded {
				continue
			}
			seen[tile] = true
			s.startLoad(ctx, tile)
		}
	}
}

func (s *Scheduler) startLoad(ctx context.Context, tile *tileset.Tile) {
	tile.State = tileset.ContentLoading
	atomic.AddInt64(&s.inFlight, 1)

	loadCtx, cancel := context.WithCancel(ctx)
	tile.CancelLoad = func() { cancel() }

	s.Tasks.StartTask(func() {
		defer atomic.AddInt64(&s.inFlight, -1)

		resp, err := s.Fetcher.Fetch(loadCtx, tile.ContentURI, nil)
		if loadCtx.Err() != nil {
			// Evicted before completion: discard silently, the in-flight
			// slot is already freed by the defer above.
			return
		}
		if err != nil {
			unauthorized := resp != nil && resp.StatusCode == http.StatusUnauthorized
			s.completions <- completion{tile: tile, err: err, unauthorized: unauthorized}
			return
		}

		parsed, perr := s.Parser.Parse(loadCtx, resp.Body, tile.ContentURI)
		if perr != nil {
			s.completions <- completion{tile: tile, err: perr}
			return
		}

		var prepared interface{}
		if parsed.Model != nil && s.Preparer != nil {
			prepared, err = s.Preparer.PrepareInWorkerThread(parsed.Model)
			if err != nil {
				s.completions <- completion{tile: tile, err: err}
				return
			}
		}
		s.completions <- completion{tile: tile, result: parsed, prepared: prepared, bodyLen: len(resp.Body)}
	})
}

// drainCompletions runs on the main thread every frame, draining every load
// callback that has arrived (possibly out of order across tiles) before
// traversal runs again.
func (s *Scheduler) drainCompletions() {
	for {
		select {
		case c := <-s.completions:
			s.applyCompletion(c)
		default:
			return
		}
	}
}

func (s *Scheduler) applyCompletion(c completion) {
	tile := c.tile

	if c.unauthorized {
		tile.State = tileset.FailedTemporary
		s.unauthorizedPending[tile] = struct{}{}
		return
	}

	if c.err != nil {
		s.pendingRetries[tile]++
		if s.pendingRetries[tile] >= maxRetryCount {
			tile.State = tileset.Failed
			delete(s.pendingRetries, tile)
		} else {
			tile.State = tileset.FailedTemporary
			tile.State = tileset.Unloaded // re-queued next frame by the selector
		}
		return
	}
	delete(s.pendingRetries, tile)

	if len(c.result.Children) > 0 {
		for _, child := range c.result.Children {
			child.Parent = tile
		}
		tile.Children = append(tile.Children, c.result.Children...)
	}
	if c.result.TighterBoundingVolume != nil {
		tile.BoundingVolume = *c.result.TighterBoundingVolume
	}

	model := c.result.Model
	tile.Content = &tileset.Content{Model: model}
	tile.ByteSize = int64(c.bodyLen)
	tile.State = tileset.ContentLoaded

	if model != nil && s.Preparer != nil {
		handle, err := s.Preparer.PrepareInMainThread(c.prepared)
		if err != nil {
			tile.State = tileset.Failed
			return
		}
		model.Handle = handle
	}

	tile.State = tileset.Done
	s.linkLRU(tile)
}

// maybeRefreshToken runs once any tile has been parked in FailedTemporary
// by a 401: it issues a single refresh request and, on success, resets
// every 401-ed tile to Unloaded so the selector re-queues it with the
// refreshed token; on failure it moves them to Failed.
func (s *Scheduler) maybeRefreshToken(ctx context.Context) {
	if len(s.unauthorizedPending) == 0 || s.refreshing || s.Refresher == nil {
		return
	}
	s.refreshing = true
	pending := s.unauthorizedPending
	s.unauthorizedPending = make(map[*tileset.Tile]struct{})

	err := s.Refresher.Refresh(ctx)
	s.refreshing = false

	for tile := range pending {
		if err == nil {
			tile.State = tileset.Unloaded
		} else {
			tile.State = tileset.Failed
		}
	}
}

// linkLRU moves tile to the front of the LRU (most-recently-used) and
// accounts its bytes, inserting it if new.
func (s *Scheduler) linkLRU(tile *tileset.Tile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem := tile.LRUElement(); elem != nil {
		s.lru.MoveToFront(elem)
		return
	}
	elem := s.lru.PushFront(tile)
	tile.SetLRUElement(elem)
	s.totalBytes += tile.ByteSize
}

// Touch moves a Done tile to the front of the LRU (front of this list =
// most recently used = least eligible for eviction). The run command's
// frame loop calls it for every tile rendered this frame; tiles the
// selector visits without rendering are not touched.
func (s *Scheduler) Touch(tile *tileset.Tile) {
	if tile.State != tileset.Done {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem := tile.LRUElement(); elem != nil {
		s.lru.MoveToFront(elem)
	}
}

// evict, if total bytes exceed the budget, unloads tiles from the LRU's
// oldest end that are not in this frame's render set, until under budget
// or no more evictable tiles remain. The budget is advisory: required-to-
// render tiles are never unloaded.
func (s *Scheduler) evict(renderSet []*tileset.Tile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalBytes <= s.Options.MaximumCachedBytes {
		return
	}

	rendered := make(map[*tileset.Tile]bool, len(renderSet))
	for _, t := range renderSet {
		rendered[t] = true
	}

	elem := s.lru.Back()
	for elem != nil && s.totalBytes > s.Options.MaximumCachedBytes {
		prev := elem.Prev()
		tile := elem.Value.(*tileset.Tile)
		if rendered[tile] {
			elem = prev
			continue
		}
		s.unloadLocked(tile, elem)
		elem = prev
	}
}

// unloadLocked transitions a Done tile through Unloading back to Unloaded,
// releasing its GPU resource and removing it from the LRU. Caller must
// hold s.mu.
func (s *Scheduler) unloadLocked(tile *tileset.Tile, elem *list.Element) {
	tile.State = tileset.Unloading
	if tile.Content != nil && tile.Content.Model != nil && s.Preparer != nil && tile.Content.Model.Handle != nil {
		s.Preparer.Release(tile.Content.Model.Handle)
	}
	tile.Content = nil
	s.lru.Remove(elem)
	tile.SetLRUElement(nil)
	s.totalBytes -= tile.ByteSize
	tile.State = tileset.Unloaded
}

// CancelLoad invokes a ContentLoading tile's cancellation handle, used
// when a tile is evicted or the tree is torn down before its load
// completes.
func CancelLoad(tile *tileset.Tile) {
	if tile.CancelLoad != nil {
		tile.CancelLoad()
	}
}
