package selector

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/tile3d/internal/config"
	"github.com/MeKo-Tech/tile3d/internal/geom"
	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// Selector runs the recursive view-dependent descent. It owns the previous
// frame's render set (to compute TilesToNoLongerRenderThisFrame) and the
// frame counter; the kick fix-up's "was anything rendered last frame" test
// reads each tile's LastSelectionState instead.
type Selector struct {
	Options config.TilesetOptions

	frame         uint64
	renderedPrev  map[*tileset.Tile]bool

	view   geom.ViewState
	result *ViewUpdateResult
}

// NewSelector constructs a selector with the given options and frame 0.
func NewSelector(opts config.TilesetOptions) *Selector {
	return &Selector{
		Options:      opts,
		renderedPrev: make(map[*tileset.Tile]bool),
	}
}

// visitOutcome is what a subtree visit reports back to its caller, feeding
// the forbid-holes and kick-descendants fix-ups. The caller tracks where in
// result.TilesToRenderThisFrame the subtree's renders begin so a kick or
// forbid-holes fix-up can roll them back; that index lives on the call
// stack (renderStart), not here, since only the immediate caller needs it.
type visitOutcome struct {
	allRenderable         bool
	anyRenderedLastFrame  bool
	notYetRenderableCount int
}

// UpdateView runs one frame of traversal over root. It is pure with respect
// to tree topology but mutates per-tile scratch fields and the returned
// queues.
func (s *Selector) UpdateView(view geom.ViewState, root *tileset.Tile) *ViewUpdateResult {
	s.frame++
	s.view = view
	s.result = newViewUpdateResult()

	if root != nil {
		s.visit(root, 0)
	}

	s.sortQueue(s.result.TilesLoadingHighPriority)
	s.sortQueue(s.result.TilesLoadingMediumPriority)
	s.sortQueue(s.result.TilesLoadingLowPriority)

	nowRendered := make(map[*tileset.Tile]bool, len(s.result.TilesToRenderThisFrame))
	for _, t := range s.result.TilesToRenderThisFrame {
		nowRendered[t] = true
	}
	for t := range s.renderedPrev {
		if !nowRendered[t] {
			s.result.TilesToNoLongerRenderThisFrame = append(s.result.TilesToNoLongerRenderThisFrame, t)
		}
	}
	s.renderedPrev = nowRendered

	return s.result
}

func (s *Selector) sortQueue(q []LoadIntent) {
	sort.SliceStable(q, func(i, j int) bool { return q[i].Priority < q[j].Priority })
}

// priority combines squared distance to the tile with a depth penalty,
// lower sorting first.
func priority(distance2 float64, depth int) float64 {
	return distance2 + float64(depth)*depthPenalty
}

const depthPenalty = 1.0

// visit runs the decision tree for one tile, returning what its parent
// needs to apply the kick/forbid-holes fix-ups.
func (s *Selector) visit(tile *tileset.Tile, depth int) visitOutcome {
	s.result.TilesVisited++
	if depth > s.result.MaxDepthVisited {
		s.result.MaxDepthVisited = depth
	}

	distance2 := s.view.DistanceSquaredTo(tile.BoundingVolume)
	renderUnderCamera := s.Options.RenderTilesUnderCamera && s.eyeUnderTile(tile)
	isVisible := s.isVisible(tile) || renderUnderCamera
	meetsSSE := s.meetsSSE(tile, distance2, isVisible)

	if !isVisible {
		s.result.CulledTilesVisited++
		s.setSelectionState(tile, tileset.SelectionCulled)
		if s.Options.PreloadSiblings && tile.Parent != nil {
			s.queuePreload(tile, distance2, depth)
		}
		return visitOutcome{allRenderable: true}
	}

	if meetsSSE || len(tile.Children) == 0 {
		renderedLastFrame := wasRenderedRecently(tile, s.frame)
		s.renderTile(tile, distance2, depth)
		s.setSelectionState(tile, tileset.SelectionRendered)
		return visitOutcome{
			allRenderable:        tile.IsRenderable(),
			anyRenderedLastFrame: renderedLastFrame,
		}
	}

	renderStart := len(s.result.TilesToRenderThisFrame)

	if tile.Refine == tileset.Add {
		if tile.State == tileset.Unloaded && !tile.IsEmpty() {
			s.queueLoad(tile, &s.result.TilesLoadingMediumPriority, distance2, depth, true)
		}
		s.result.TilesToRenderThisFrame = append(s.result.TilesToRenderThisFrame, tile)
	}

	ordered := orderChildrenByDistance(s, tile.Children)

	combined := visitOutcome{allRenderable: true}
	var visibleChildren []*tileset.Tile
	for _, child := range ordered {
		childVisible := s.isVisible(child) || (s.Options.RenderTilesUnderCamera && s.eyeUnderTile(child))
		out := s.visit(child, depth+1)
		if childVisible {
			visibleChildren = append(visibleChildren, child)
		}
		if !out.allRenderable {
			combined.allRenderable = false
		}
		combined.anyRenderedLastFrame = combined.anyRenderedLastFrame || out.anyRenderedLastFrame
		combined.notYetRenderableCount += out.notYetRenderableCount
		if !child.IsRenderable() {
			combined.notYetRenderableCount++
		}
	}

	if tile.Refine == tileset.Replace {
		if s.Options.ForbidHoles && !allVisibleChildrenRenderable(visibleChildren) {
			s.rollBackRenders(renderStart)
			for _, child := range visibleChildren {
				if !child.IsRenderable() {
					// The blocker moves from the medium bucket renderTile put
					// it in to the high bucket.
					medium := s.result.TilesLoadingMediumPriority[:0]
					for _, li := range s.result.TilesLoadingMediumPriority {
						if li.Tile != child {
							medium = append(medium, li)
						}
					}
					s.result.TilesLoadingMediumPriority = medium
					s.queueLoad(child, &s.result.TilesLoadingHighPriority, s.view.DistanceSquaredTo(child.BoundingVolume), depth+1, true)
				}
			}
			s.renderTile(tile, distance2, depth)
			s.setSelectionState(tile, tileset.SelectionRendered)
			return visitOutcome{allRenderable: combined.allRenderable, anyRenderedLastFrame: combined.anyRenderedLastFrame}
		}

		if s.shouldKick(combined) {
			s.rollBackRenders(renderStart)
			for _, child := range visibleChildren {
				s.markKicked(child)
			}
			s.renderTile(tile, distance2, depth)
			// The tile itself is simply Rendered: it is the kicked
			// descendants (marked above) that carry the *Kicked variant.
			s.setSelectionState(tile, tileset.SelectionRendered)
			return visitOutcome{allRenderable: true, anyRenderedLastFrame: combined.anyRenderedLastFrame}
		}

		if s.Options.PreloadAncestors {
			s.queuePreload(tile, distance2, depth)
		}
		s.setSelectionState(tile, tileset.SelectionRefined)
	} else {
		s.setSelectionState(tile, tileset.SelectionRefined)
	}

	return combined
}

// shouldKick decides whether a Replace tile's rendered descendants get
// rolled back in favor of rendering the tile itself.
func (s *Selector) shouldKick(combined visitOutcome) bool {
	if combined.notYetRenderableCount == 0 {
		return false
	}
	if combined.notYetRenderableCount > s.Options.LoadingDescendantLimit {
		return true
	}
	return !combined.anyRenderedLastFrame
}

// markKicked transitions a subtree's last-frame selection kind to its
// Kicked variant without touching load intents — kicked descendants keep
// loading.
func (s *Selector) markKicked(tile *tileset.Tile) {
	switch tile.LastSelectionState.Kind {
	case tileset.SelectionRendered:
		tile.LastSelectionState = tileset.SelectionState{Kind: tileset.SelectionRenderedAndKicked, Frame: s.frame}
	case tileset.SelectionRefined:
		tile.LastSelectionState = tileset.SelectionState{Kind: tileset.SelectionRefinedAndKicked, Frame: s.frame}
	}
	for _, c := range tile.Children {
		s.markKicked(c)
	}
}

// rollBackRenders removes every tile appended to the render list since
// renderStart — used when a subtree's render contributions are discarded by
// forbid-holes or kick-descendants.
func (s *Selector) rollBackRenders(renderStart int) {
	s.result.TilesToRenderThisFrame = s.result.TilesToRenderThisFrame[:renderStart]
}

func allVisibleChildrenRenderable(children []*tileset.Tile) bool {
	for _, c := range children {
		if !c.IsRenderable() {
			return false
		}
	}
	return true
}

func (s *Selector) renderTile(tile *tileset.Tile, distance2 float64, depth int) {
	s.result.TilesToRenderThisFrame = append(s.result.TilesToRenderThisFrame, tile)
	if tile.State == tileset.Unloaded && !tile.IsEmpty() {
		s.queueLoad(tile, &s.result.TilesLoadingMediumPriority, distance2, depth, true)
	}
}

func (s *Selector) queueLoad(tile *tileset.Tile, bucket *[]LoadIntent, distance2 float64, depth int, dedupCheck bool) {
	if dedupCheck {
		for _, existing := range *bucket {
			if existing.Tile == tile {
				return
			}
		}
	}
	*bucket = append(*bucket, LoadIntent{Tile: tile, Priority: priority(distance2, depth)})
}

func (s *Selector) queuePreload(tile *tileset.Tile, distance2 float64, depth int) {
	s.queueLoad(tile, &s.result.TilesLoadingLowPriority, distance2, depth, true)
}

func (s *Selector) setSelectionState(tile *tileset.Tile, kind tileset.SelectionKind) {
	tile.LastSelectionState = tileset.SelectionState{Kind: kind, Frame: s.frame}
	tile.LastSelectionResultFrame = s.frame
}

func wasRenderedRecently(tile *tileset.Tile, frame uint64) bool {
	if frame == 0 {
		return false
	}
	return tile.LastSelectionState.Frame == frame-1 &&
		(tile.LastSelectionState.Kind == tileset.SelectionRendered || tile.LastSelectionState.Kind == tileset.SelectionRenderedAndKicked)
}

// isVisible is the base visibility test, without the render-under-camera
// override (handled separately so callers can combine it with an OR).
func (s *Selector) isVisible(tile *tileset.Tile) bool {
	if s.Options.EnableFrustumCulling && !s.view.IsVisible(tile.BoundingVolume) {
		return false
	}
	if tile.ViewerRequestVolume != nil && !tile.ViewerRequestVolume.Contains(s.view.Position) {
		return false
	}
	if s.Options.EnableFogCulling {
		distance2 := s.view.DistanceSquaredTo(tile.BoundingVolume)
		density := config.FogDensityAt(s.Options.FogDensityTable, s.view.EyeHeight())
		if fogCutoffExceeded(density, distance2) {
			return false
		}
	}
	return true
}

// fogAttenuationCutoff is the threshold past which a tile is fogged out;
// matches the kind of exponential-squared fog term a Cesium-style viewer
// evaluates against a fixed visibility cutoff.
const fogAttenuationCutoff = 0.003

func fogAttenuationExpSquared(density, distance2 float64) float64 {
	x := density * density * distance2
	return 1 - math.Exp(-x)
}

func fogCutoffExceeded(density, distance2 float64) bool {
	return fogAttenuationExpSquared(density, distance2) >= fogAttenuationCutoff
}

// meetsSSE reports whether a tile's projected geometric error is within
// the configured screen-space error budget.
func (s *Selector) meetsSSE(tile *tileset.Tile, distance2 float64, isVisible bool) bool {
	if !isVisible && !s.Options.EnforceCulledScreenSpaceError {
		return true
	}
	distance := math.Sqrt(distance2)
	threshold := s.Options.MaximumScreenSpaceError
	if !isVisible {
		threshold = s.Options.CulledScreenSpaceError
	}
	return s.view.ScreenSpaceError(tile.GeometricError, distance) <= threshold
}

// eyeUnderTile reports whether the camera eye lies within a tile's bounding
// volume; only Region and RegionLooseFitHeights volumes support this test.
func (s *Selector) eyeUnderTile(tile *tileset.Tile) bool {
	if s.view.Geodetic == nil {
		return false
	}
	bv := tile.BoundingVolume
	if bv.Kind != geom.KindRegion && bv.Kind != geom.KindRegionLooseFitHeights {
		return false
	}
	return bv.Region.ContainsLonLat(s.view.Geodetic.Longitude, s.view.Geodetic.Latitude)
}

func orderChildrenByDistance(s *Selector, children []*tileset.Tile) []*tileset.Tile {
	ordered := make([]*tileset.Tile, len(children))
	copy(ordered, children)
	sort.SliceStable(ordered, func(i, j int) bool {
		return s.view.DistanceSquaredTo(ordered[i].BoundingVolume) < s.view.DistanceSquaredTo(ordered[j].BoundingVolume)
	})
	return ordered
}
