// Package selector implements the view-dependent traversal: the recursive
// descent that decides, per tile per frame, whether to cull, render,
// refine, or kick back to an ancestor.
package selector

import "github.com/MeKo-Tech/tile3d/internal/tileset"

// LoadIntent is one entry in a priority load queue: a tile plus the
// distance/depth-derived priority used to sort the bucket, lower first.
type LoadIntent struct {
	Tile     *tileset.Tile
	Priority float64
}

// ViewUpdateResult is the per-frame output. It is rebuilt from scratch
// by every UpdateView call.
type ViewUpdateResult struct {
	TilesToRenderThisFrame        []*tileset.Tile
	TilesLoadingHighPriority      []LoadIntent
	TilesLoadingMediumPriority    []LoadIntent
	TilesLoadingLowPriority       []LoadIntent
	TilesToNoLongerRenderThisFrame []*tileset.Tile

	TilesVisited       int
	CulledTilesVisited int
	MaxDepthVisited    int
}

func newViewUpdateResult() *ViewUpdateResult {
	return &ViewUpdateResult{}
}
