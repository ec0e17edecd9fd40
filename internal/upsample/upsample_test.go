package upsample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tile3d/internal/geom"
	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// unitSquareMesh is a single quad (two triangles) spanning UV [0,1]^2, with
// Z=0 everywhere so position and UV track together for easy assertions.
func unitSquareMesh() *tileset.Mesh {
	v := func(u, vv float64) tileset.Vertex {
		return tileset.Vertex{Position: geom.Vector3{X: u, Y: vv, Z: 0}, UV: tileset.UV{U: u, V: vv}}
	}
	return &tileset.Mesh{
		Vertices: []tileset.Vertex{v(0, 0), v(1, 0), v(1, 1), v(0, 1)},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestUpsampleSplitInHalf(t *testing.T) {
	parent := unitSquareMesh()

	res, err := Upsample(parent, LowerLeft)
	require.NoError(t, err)
	require.NotEmpty(t, res.Mesh.Indices)

	for _, vtx := range res.Mesh.Vertices {
		assert.GreaterOrEqual(t, vtx.UV.U, -1e-9)
		assert.LessOrEqual(t, vtx.UV.U, 1+1e-9)
		assert.GreaterOrEqual(t, vtx.UV.V, -1e-9)
		assert.LessOrEqual(t, vtx.UV.V, 1+1e-9)
	}

	// LowerLeft of the unit square covers parent UV [0,0.5]^2, remapped to
	// [0,1]^2: the parent's (0,0) corner should remap to output (0,0), and
	// the parent's (0.5,0.5) interior split point should remap to (1,1).
	var sawOrigin, sawInnerCorner bool
	for _, vtx := range res.Mesh.Vertices {
		if approxEqual(vtx.Position.X, 0) && approxEqual(vtx.Position.Y, 0) {
			sawOrigin = true
			assert.InDelta(t, 0, vtx.UV.U, 1e-6)
			assert.InDelta(t, 0, vtx.UV.V, 1e-6)
		}
		if approxEqual(vtx.Position.X, 0.5) && approxEqual(vtx.Position.Y, 0.5) {
			sawInnerCorner = true
			assert.InDelta(t, 1, vtx.UV.U, 1e-6)
			assert.InDelta(t, 1, vtx.UV.V, 1e-6)
		}
	}
	assert.True(t, sawOrigin)
	assert.True(t, sawInnerCorner)
}

func TestUpsampleCoverage(t *testing.T) {
	parent := unitSquareMesh()
	quads := []Quadrant{LowerLeft, LowerRight, UpperLeft, UpperRight}

	totalArea := 0.0
	for _, q := range quads {
		res, err := Upsample(parent, q)
		require.NoError(t, err)
		totalArea += meshArea(res.Mesh)
	}
	// Only UVs are remapped to [0,1]^2; positions stay in the parent's frame,
	// so the four quadrants together tile the parent's unit square exactly —
	// a total of 1 means coverage is complete with no gaps or overlaps.
	assert.InDelta(t, 1.0, totalArea, 1e-6)
}

func TestUpsampleIsDeterministic(t *testing.T) {
	parent := unitSquareMesh()

	first, err := Upsample(parent, LowerLeft)
	require.NoError(t, err)
	second, err := Upsample(parent, LowerLeft)
	require.NoError(t, err)

	// Upsampling the same parent/quadrant pair twice must be deterministic:
	// same vertex count, same triangle count, same positions.
	require.Equal(t, len(first.Mesh.Vertices), len(second.Mesh.Vertices))
	require.Equal(t, len(first.Mesh.Indices), len(second.Mesh.Indices))
	for i := range first.Mesh.Vertices {
		assert.InDelta(t, first.Mesh.Vertices[i].Position.X, second.Mesh.Vertices[i].Position.X, 1e-9)
		assert.InDelta(t, first.Mesh.Vertices[i].Position.Y, second.Mesh.Vertices[i].Position.Y, 1e-9)
	}
}

func TestUpsampleVertexDedup(t *testing.T) {
	parent := unitSquareMesh()

	res, err := Upsample(parent, LowerLeft)
	require.NoError(t, err)

	seen := make(map[[2]float64]int)
	for _, vtx := range res.Mesh.Vertices {
		key := [2]float64{round6(vtx.Position.X), round6(vtx.Position.Y)}
		seen[key]++
	}
	for key, count := range seen {
		assert.Equal(t, 1, count, "vertex at %v duplicated instead of shared across triangles", key)
	}
}

func TestUpsampleDegenerateVertexProducesNoTriangles(t *testing.T) {
	// A triangle touching the LowerLeft quadrant at exactly one point on its
	// boundary, with its other two vertices strictly outside, must
	// contribute zero triangles, not a degenerate sliver.
	v := func(u, vv float64) tileset.Vertex {
		return tileset.Vertex{Position: geom.Vector3{X: u, Y: vv, Z: 0}, UV: tileset.UV{U: u, V: vv}}
	}
	parent := &tileset.Mesh{
		Vertices: []tileset.Vertex{v(0.5, 0.5), v(1, 0.5), v(0.5, 1)},
		Indices:  []uint32{0, 1, 2},
	}

	res, err := Upsample(parent, LowerLeft)
	require.NoError(t, err)
	assert.Empty(t, res.Mesh.Indices)
}

func TestUpsampleMalformedMeshRejected(t *testing.T) {
	bad := &tileset.Mesh{Indices: []uint32{0, 1}}
	_, err := Upsample(bad, LowerLeft)
	assert.ErrorIs(t, err, ErrMalformedMesh)

	outOfRange := &tileset.Mesh{
		Vertices: []tileset.Vertex{{}},
		Indices:  []uint32{0, 1, 2},
	}
	_, err = Upsample(outOfRange, LowerLeft)
	assert.ErrorIs(t, err, ErrMalformedMesh)
}

func TestUpsampleSkirtRegeneratesWithHalvedInteriorHeight(t *testing.T) {
	parent := unitSquareMesh()
	parent.Skirt = &tileset.SkirtMetadata{
		Down:        geom.Vector3{X: 0, Y: 0, Z: -1},
		EdgeHeight:  [4]float64{10, 10, 10, 10},
		WasTileEdge: [4]bool{true, true, true, true},
	}

	res, err := Upsample(parent, LowerLeft)
	require.NoError(t, err)
	require.NotNil(t, res.Mesh.Skirt)

	// LowerLeft keeps the parent's original West and South edges at full
	// height, but its East and North edges are newly introduced interior
	// splits and must be halved.
	assert.True(t, res.Mesh.Skirt.WasTileEdge[tileset.SkirtWest])
	assert.True(t, res.Mesh.Skirt.WasTileEdge[tileset.SkirtSouth])
	assert.False(t, res.Mesh.Skirt.WasTileEdge[tileset.SkirtEast])
	assert.False(t, res.Mesh.Skirt.WasTileEdge[tileset.SkirtNorth])

	assert.InDelta(t, 10, res.Mesh.Skirt.EdgeHeight[tileset.SkirtWest], 1e-9)
	assert.InDelta(t, 10, res.Mesh.Skirt.EdgeHeight[tileset.SkirtSouth], 1e-9)
	assert.InDelta(t, 5, res.Mesh.Skirt.EdgeHeight[tileset.SkirtEast], 1e-9)
	assert.InDelta(t, 5, res.Mesh.Skirt.EdgeHeight[tileset.SkirtNorth], 1e-9)

	assert.Greater(t, len(res.Mesh.Indices), res.Mesh.Skirt.NonSkirtIndexCount)

	// The surface indices (before NonSkirtIndexCount) reference only the
	// first surfaceVertexCount vertices; skirt vertices must follow them.
	surfaceVertexCount := 0
	for i := 0; i < res.Mesh.Skirt.NonSkirtIndexCount; i++ {
		if int(res.Mesh.Indices[i]) >= surfaceVertexCount {
			surfaceVertexCount = int(res.Mesh.Indices[i]) + 1
		}
	}
	assert.Less(t, surfaceVertexCount, len(res.Mesh.Vertices), "expected extra skirt vertices beyond the surface mesh")
}

func meshArea(m *tileset.Mesh) float64 {
	total := 0.0
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		pa, pb, pc := m.Vertices[a].Position, m.Vertices[b].Position, m.Vertices[c].Position
		ab := pb.Sub(pa)
		ac := pc.Sub(pa)
		total += 0.5 * ab.Cross(ac).Length()
	}
	return total
}

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func round6(f float64) float64 {
	scaled := f * 1e6
	if scaled < 0 {
		scaled -= 0.5
	} else {
		scaled += 0.5
	}
	return float64(int64(scaled)) / 1e6
}
