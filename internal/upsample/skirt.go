package upsample

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

const edgeTolerance = 1e-6

// buildSkirt regenerates the downward apron along the quadrant mesh's four
// edges. mesh's vertices/indices must already hold the clipped surface (no
// skirt yet); buildSkirt appends skirt vertices/triangles and records where
// the surface indices end.
func buildSkirt(mesh *tileset.Mesh, parent *tileset.SkirtMetadata, quad Quadrant) {
	mesh.Skirt = &tileset.SkirtMetadata{
		Down:               parent.Down,
		NonSkirtIndexCount: len(mesh.Indices),
	}

	minU, minV, maxU, maxV := quad.bounds()
	wasTileEdge := [4]bool{
		tileset.SkirtWest:  math.Abs(minU-0) < boundaryEpsilon,
		tileset.SkirtSouth: math.Abs(minV-0) < boundaryEpsilon,
		tileset.SkirtEast:  math.Abs(maxU-1) < boundaryEpsilon,
		tileset.SkirtNorth: math.Abs(maxV-1) < boundaryEpsilon,
	}
	var height [4]float64
	for side := 0; side < 4; side++ {
		h := parent.EdgeHeight[side]
		if !wasTileEdge[side] {
			h /= 2
		}
		height[side] = h
	}
	mesh.Skirt.WasTileEdge = wasTileEdge
	mesh.Skirt.EdgeHeight = height

	for side := tileset.SkirtQuadrant(0); side < 4; side++ {
		buildEdgeSkirt(mesh, side, height[side])
	}
}

type edgeVertex struct {
	index uint32
	along float64 // the edge's varying coordinate, for ordering
}

func buildEdgeSkirt(mesh *tileset.Mesh, side tileset.SkirtQuadrant, height float64) {
	fixedAxis, fixedValue, alongAxis := edgeAxes(side)

	var onEdge []edgeVertex
	for i, v := range mesh.Vertices {
		val := axisValue(v, fixedAxis)
		if math.Abs(val-fixedValue) <= edgeTolerance {
			onEdge = append(onEdge, edgeVertex{index: uint32(i), along: axisValue(v, alongAxis)})
		}
	}
	if len(onEdge) < 2 {
		return
	}
	sort.Slice(onEdge, func(i, j int) bool { return onEdge[i].along < onEdge[j].along })

	down := mesh.Skirt.Down
	skirtIndex := make(map[uint32]uint32, len(onEdge))
	for _, ev := range onEdge {
		surf := mesh.Vertices[ev.index]
		skirted := surf
		skirted.Position = surf.Position.Add(down.Scale(height))
		idx := uint32(len(mesh.Vertices))
		mesh.Vertices = append(mesh.Vertices, skirted)
		skirtIndex[ev.index] = idx
	}

	for i := 0; i+1 < len(onEdge); i++ {
		s0, s1 := onEdge[i].index, onEdge[i+1].index
		k0, k1 := skirtIndex[s0], skirtIndex[s1]
		// Two triangles per edge segment, wound to face outward in the
		// same sense as the tile surface.
		mesh.Indices = append(mesh.Indices,
			s0, s1, k1,
			s0, k1, k0,
		)
	}
}

// edgeAxes returns, for a named edge: the UV axis it fixes (0=u,1=v), the
// fixed value (0 or 1), and the axis that varies along the edge.
func edgeAxes(side tileset.SkirtQuadrant) (fixedAxis int, fixedValue float64, alongAxis int) {
	switch side {
	case tileset.SkirtWest:
		return 0, 0, 1
	case tileset.SkirtEast:
		return 0, 1, 1
	case tileset.SkirtSouth:
		return 1, 0, 0
	case tileset.SkirtNorth:
		return 1, 1, 0
	default:
		return 0, 0, 1
	}
}
