package tileset

import "github.com/MeKo-Tech/tile3d/internal/geom"

// UV is a 2D texture coordinate, the overlay UV space the upsampler clips
// against.
type UV struct {
	U, V float64
}

// Vertex is one mesh vertex: position, the overlay-UV texture coordinate,
// and an optional normal.
type Vertex struct {
	Position geom.Vector3
	UV       UV
	Normal   *geom.Vector3
}

// SkirtQuadrant names the four edges of a quadrant, matching the UV axes:
// West/East are fixed-U edges, South/North are fixed-V edges.
type SkirtQuadrant int

const (
	SkirtWest SkirtQuadrant = iota
	SkirtSouth
	SkirtEast
	SkirtNorth
)

// SkirtMetadata carries the per-edge apron the upsampler needs to hide
// cracks between tile neighbors.
type SkirtMetadata struct {
	// Down is the geodetic "down" direction skirt vertices are displaced
	// along (see geom.GeodeticSurfaceNormal).
	Down geom.Vector3
	// EdgeHeight is the skirt height for each of the four edges.
	EdgeHeight [4]float64
	// WasTileEdge marks which of the four quadrant edges coincide with an
	// edge of the parent mesh it was upsampled from, vs. an interior split
	// introduced by this upsampling; interior edges get half height.
	WasTileEdge [4]bool
	// NonSkirtIndexCount records where this mesh's surface indices end and
	// skirt indices begin, so the mesh can itself be upsampled later.
	NonSkirtIndexCount int
}

// Mesh is an indexed triangle mesh in a local coordinate frame: the input
// and output of the Upsampler.
type Mesh struct {
	Vertices []Vertex
	// Indices lists triangles as flat vertex-index triples.
	Indices []uint32
	// InvertV indicates the UV V axis is inverted relative to the
	// clip-quadrant convention.
	InvertV bool
	// Skirt is nil when the mesh carries no skirt metadata (e.g. it is
	// itself the root tile's un-upsampled content).
	Skirt *SkirtMetadata
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Triangle returns the three vertex indices of triangle i.
func (m *Mesh) Triangle(i int) (a, b, c uint32) {
	return m.Indices[i*3], m.Indices[i*3+1], m.Indices[i*3+2]
}
