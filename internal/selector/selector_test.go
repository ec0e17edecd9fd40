package selector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tile3d/internal/config"
	"github.com/MeKo-Tech/tile3d/internal/geom"
	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

func viewAtDistance(distance float64) geom.ViewState {
	return geom.NewViewState(
		geom.Vector3{X: 0, Y: 0, Z: distance},
		geom.Vector3{X: 0, Y: 0, Z: -1},
		geom.Vector3{X: 0, Y: 1, Z: 0},
		1000, 1000,
		math.Pi/3,
		nil,
	)
}

func sphereTile(geometricError float64) *tileset.Tile {
	return tileset.NewTile(geom.NewSphereVolume(geom.Vector3{}, 10), geometricError, tileset.Replace)
}

func TestSingleRootSSE(t *testing.T) {
	opts := config.DefaultTilesetOptions()
	opts.MaximumScreenSpaceError = 16

	// geometric_error=10 against a radius-10 sphere, viewport 1000x1000,
	// vertical FoV pi/3: at distance 1000 the implied screen-space error
	// is comfortably under 16 (meets SSE); at distance 100 it is not.
	root := sphereTile(10)
	root.ContentURI = "root.b3dm"
	root.State = tileset.Done

	sel := NewSelector(opts)
	res := sel.UpdateView(viewAtDistance(1000), root)

	require.Len(t, res.TilesToRenderThisFrame, 1)
	assert.Same(t, root, res.TilesToRenderThisFrame[0])
	assert.Equal(t, tileset.SelectionRendered, root.LastSelectionState.Kind)

	// Move the eye closer: SSE no longer met, but with no children the tile
	// is still rendered as a leaf, and since it's unloaded it picks up a
	// medium-priority load.
	root2 := sphereTile(10)
	root2.ContentURI = "root.b3dm"
	sel2 := NewSelector(opts)
	res2 := sel2.UpdateView(viewAtDistance(100), root2)

	require.Len(t, res2.TilesToRenderThisFrame, 1)
	assert.Same(t, root2, res2.TilesToRenderThisFrame[0])
	require.Len(t, res2.TilesLoadingMediumPriority, 1)
	assert.Same(t, root2, res2.TilesLoadingMediumPriority[0].Tile)
}

// twoLevelTree builds a parent (geometric_error=100, fails SSE at the test
// views below) with two children (geometric_error=0.5, meets SSE), all
// sharing the same radius-10 sphere bounding volume for simplicity — only
// the geometric_error differs, which is all meets_sse depends on here.
func twoLevelTree() (parent, childA, childB *tileset.Tile) {
	parent = sphereTile(100)
	parent.ContentURI = "parent.b3dm"
	parent.State = tileset.Done

	childA = sphereTile(0.5)
	childA.ContentURI = "a.b3dm"
	childB = sphereTile(0.5)
	childB.ContentURI = "b.b3dm"

	childA.Parent = parent
	childB.Parent = parent
	parent.Children = []*tileset.Tile{childA, childB}
	return
}

func TestTwoLevelReplaceRefine(t *testing.T) {
	opts := config.DefaultTilesetOptions()
	opts.MaximumScreenSpaceError = 16

	parent, childA, childB := twoLevelTree()
	childA.State = tileset.Done
	childB.State = tileset.Done

	sel := NewSelector(opts)
	res := sel.UpdateView(viewAtDistance(50), parent)

	require.Len(t, res.TilesToRenderThisFrame, 2)
	assert.Contains(t, res.TilesToRenderThisFrame, childA)
	assert.Contains(t, res.TilesToRenderThisFrame, childB)
	assert.NotContains(t, res.TilesToRenderThisFrame, parent)
	assert.Equal(t, tileset.SelectionRefined, parent.LastSelectionState.Kind)
}

func TestKickDescendants(t *testing.T) {
	opts := config.DefaultTilesetOptions()
	opts.MaximumScreenSpaceError = 16
	opts.LoadingDescendantLimit = 0

	parent, childA, childB := twoLevelTree()
	childA.State = tileset.ContentLoading
	childB.State = tileset.Done

	sel := NewSelector(opts)
	res := sel.UpdateView(viewAtDistance(50), parent)

	require.Len(t, res.TilesToRenderThisFrame, 1)
	assert.Same(t, parent, res.TilesToRenderThisFrame[0])
	assert.Equal(t, tileset.SelectionRendered, parent.LastSelectionState.Kind)

	assert.Equal(t, tileset.SelectionRenderedAndKicked, childA.LastSelectionState.Kind)
	assert.Equal(t, tileset.SelectionRenderedAndKicked, childB.LastSelectionState.Kind)

	// Kicking only rewrites selection-state scratch; it never touches the
	// tile's load state, so childA's in-flight load is left running.
	assert.Equal(t, tileset.ContentLoading, childA.State)
}

func TestForbidHolesBlocksRefinement(t *testing.T) {
	opts := config.DefaultTilesetOptions()
	opts.MaximumScreenSpaceError = 16
	opts.ForbidHoles = true

	parent, childA, childB := twoLevelTree()
	childA.State = tileset.Unloaded
	childB.State = tileset.Done

	sel := NewSelector(opts)
	res := sel.UpdateView(viewAtDistance(50), parent)

	require.Len(t, res.TilesToRenderThisFrame, 1)
	assert.Same(t, parent, res.TilesToRenderThisFrame[0])
	assert.NotContains(t, res.TilesToRenderThisFrame, childB)

	require.Len(t, res.TilesLoadingHighPriority, 1)
	assert.Same(t, childA, res.TilesLoadingHighPriority[0].Tile)
}

func TestNoHolesWhenForbidden(t *testing.T) {
	opts := config.DefaultTilesetOptions()
	opts.ForbidHoles = true
	opts.MaximumScreenSpaceError = 16

	parent, childA, childB := twoLevelTree()
	childA.State = tileset.Done
	childB.State = tileset.Done

	sel := NewSelector(opts)
	res := sel.UpdateView(viewAtDistance(50), parent)
	require.NotEmpty(t, res.TilesToRenderThisFrame)

	if parent.LastSelectionState.Kind == tileset.SelectionRefined {
		for _, c := range parent.Children {
			assert.True(t, c.IsRenderable())
		}
	}
}

func TestQueueMonotonicity(t *testing.T) {
	opts := config.DefaultTilesetOptions()
	opts.ForbidHoles = true
	opts.MaximumScreenSpaceError = 16

	parent, childA, childB := twoLevelTree()
	childA.State = tileset.Unloaded
	childB.State = tileset.Done

	sel := NewSelector(opts)
	res := sel.UpdateView(viewAtDistance(50), parent)

	// Within dispatch order, High must be considered before Medium, Medium
	// before Low — verified here as each bucket being internally sorted and
	// non-overlapping in tile identity is enough for a priority disjoint
	// queue model; the scheduler (internal/loader) drains High fully first.
	seen := make(map[*tileset.Tile]string)
	for _, li := range res.TilesLoadingHighPriority {
		seen[li.Tile] = "high"
	}
	for _, li := range res.TilesLoadingMediumPriority {
		assert.NotEqual(t, "high", seen[li.Tile])
		seen[li.Tile] = "medium"
	}
	for _, li := range res.TilesLoadingLowPriority {
		assert.NotEqual(t, "high", seen[li.Tile])
		assert.NotEqual(t, "medium", seen[li.Tile])
	}
}
