// Package fixture builds synthetic tile trees for selector and loader tests,
// the same role a seeded procedural-texture generator plays for rendering
// tests elsewhere: deterministic, seed-driven inputs instead of fixture
// files checked into the repo.
package fixture

import (
	"fmt"

	"github.com/aquilax/go-perlin"

	"github.com/MeKo-Tech/tile3d/internal/geom"
	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// QuadtreeOptions configures a synthetic REPLACE-refined quadtree rooted at
// a geographic region, with a geometric-error gradient perturbed by Perlin
// noise so property tests don't all exercise a perfectly uniform tree.
type QuadtreeOptions struct {
	Depth          int
	Seed           int64
	RootRegion     geom.Region
	RootGeometricError float64
	// NoiseScale controls how quickly the per-tile error perturbation varies
	// across the tree; larger values vary more slowly.
	NoiseScale float64
}

// DefaultQuadtreeOptions covers a small globe sector four levels deep.
func DefaultQuadtreeOptions() QuadtreeOptions {
	return QuadtreeOptions{
		Depth: 4,
		Seed:  1,
		RootRegion: geom.Region{
			West: -0.1, South: -0.1, East: 0.1, North: 0.1,
			MinHeight: 0, MaxHeight: 500,
		},
		RootGeometricError: 500,
		NoiseScale:         4.0,
	}
}

// BuildQuadtree constructs a REPLACE-refined quadtree: each tile splits its
// region into four children with half the geometric error, down to Depth.
// Every tile (including interior ones) carries a content URI, so every
// level is independently loadable by the scheduler.
func BuildQuadtree(opts QuadtreeOptions) *tileset.Tile {
	noise := perlin.NewPerlin(2.0, 2.0, 3, opts.Seed)
	root := buildNode(opts.RootRegion, opts.RootGeometricError, 0, opts.Depth, "r", noise, opts.NoiseScale)
	return root
}

func buildNode(region geom.Region, geometricError float64, depth, maxDepth int, path string, noise *perlin.Perlin, noiseScale float64) *tileset.Tile {
	perturb := 1.0 + 0.15*noise.Noise2D(float64(depth)/noiseScale, float64(len(path))/noiseScale)
	errAtNode := geometricError * perturb
	if errAtNode < 0 {
		errAtNode = geometricError
	}

	tile := tileset.NewTile(geom.NewRegionVolume(region), errAtNode, tileset.Replace)
	tile.ContentURI = fmt.Sprintf("synthetic/%s.b3dm", path)

	if depth >= maxDepth {
		return tile
	}

	midLon := (region.West + region.East) / 2
	midLat := (region.South + region.North) / 2
	quadrants := []struct {
		name   string
		region geom.Region
	}{
		{"sw", geom.Region{West: region.West, South: region.South, East: midLon, North: midLat, MinHeight: region.MinHeight, MaxHeight: region.MaxHeight}},
		{"se", geom.Region{West: midLon, South: region.South, East: region.East, North: midLat, MinHeight: region.MinHeight, MaxHeight: region.MaxHeight}},
		{"nw", geom.Region{West: region.West, South: midLat, East: midLon, North: region.North, MinHeight: region.MinHeight, MaxHeight: region.MaxHeight}},
		{"ne", geom.Region{West: midLon, South: midLat, East: region.East, North: region.North, MinHeight: region.MinHeight, MaxHeight: region.MaxHeight}},
	}
	for _, q := range quadrants {
		child := buildNode(q.region, geometricError/2, depth+1, maxDepth, path+q.name, noise, noiseScale)
		child.Parent = tile
		tile.Children = append(tile.Children, child)
	}
	return tile
}

// CountTiles walks the tree and reports the total tile count, for property
// tests that assert the generator itself is sound.
func CountTiles(tile *tileset.Tile) int {
	if tile == nil {
		return 0
	}
	n := 1
	for _, c := range tile.Children {
		n += CountTiles(c)
	}
	return n
}
