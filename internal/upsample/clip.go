package upsample

import (
	"math"

	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// vertexClass is a per-vertex classification against one clip boundary.
type vertexClass int

const (
	classOutside vertexClass = iota
	classOn
	classInside
)

const boundaryEpsilon = 1e-9

// clipVert is a polygon vertex flowing through the clipper: either a
// passthrough of an original parent vertex, or a new vertex synthesized at
// a boundary crossing between two original parent vertices.
type clipVert struct {
	v tileset.Vertex

	// originalIndex identifies an unmodified parent vertex (>=0), or -1 if
	// this vertex was synthesized by a boundary clip.
	originalIndex int

	// edge identifies the parent-vertex pair and axis/parameter this vertex
	// was interpolated from, for dedup. Zero value when originalIndex >= 0.
	edge edgeKey
}

// edgeKey dedups vertices synthesized at the same boundary crossing by
// adjacent triangles: the (sorted) endpoint pair, the clip axis, and the
// interpolation parameter bucketed to a tolerance.
type edgeKey struct {
	a, b   uint32
	axis   int
	bucket int64
}

const dedupBucketScale = 1 << 20 // ~1e-6 parameter resolution

func makeEdgeKey(a, b uint32, axis int, t float64) edgeKey {
	if a > b {
		a, b = b, a
		t = 1 - t
	}
	return edgeKey{a: a, b: b, axis: axis, bucket: int64(math.Round(t * dedupBucketScale))}
}

// clipper accumulates output vertices/indices for one quadrant mesh,
// deduplicating synthesized boundary vertices and passthrough originals.
type clipper struct {
	parent *tileset.Mesh
	quad   Quadrant

	outVerts []tileset.Vertex
	outIdx   []uint32

	byOriginal map[uint32]uint32
	byEdge     map[edgeKey]uint32
}

func newClipper(parent *tileset.Mesh, quad Quadrant) *clipper {
	return &clipper{
		parent:     parent,
		quad:       quad,
		byOriginal: make(map[uint32]uint32),
		byEdge:     make(map[edgeKey]uint32),
	}
}

// emit returns the output index for a clipVert, deduplicating by original
// parent index or by boundary-crossing edge key, and remapping the UV into
// the quadrant's [0,1]^2 space.
func (c *clipper) emit(cv clipVert) uint32 {
	if cv.originalIndex >= 0 {
		oi := uint32(cv.originalIndex)
		if idx, ok := c.byOriginal[oi]; ok {
			return idx
		}
		idx := c.appendRemapped(cv.v)
		c.byOriginal[oi] = idx
		return idx
	}

	if idx, ok := c.byEdge[cv.edge]; ok {
		return idx
	}
	idx := c.appendRemapped(cv.v)
	c.byEdge[cv.edge] = idx
	return idx
}

func (c *clipper) appendRemapped(v tileset.Vertex) uint32 {
	ru, rv := c.quad.remap(v.UV.U, v.UV.V)
	v.UV = tileset.UV{U: ru, V: rv}
	idx := uint32(len(c.outVerts))
	c.outVerts = append(c.outVerts, v)
	return idx
}

// lerpVertex linearly interpolates position, UV and (if present on both
// endpoints) normal between two parent vertices at parameter t.
func lerpVertex(a, b tileset.Vertex, t float64) tileset.Vertex {
	out := tileset.Vertex{
		Position: a.Position.Lerp(b.Position, t),
		UV: tileset.UV{
			U: a.UV.U + (b.UV.U-a.UV.U)*t,
			V: a.UV.V + (b.UV.V-a.UV.V)*t,
		},
	}
	if a.Normal != nil && b.Normal != nil {
		n := a.Normal.Lerp(*b.Normal, t).Normalize()
		out.Normal = &n
	}
	return out
}

// classify classifies a UV coordinate against one clip axis/threshold.
func classify(u, threshold float64, keepLessEqual bool) vertexClass {
	d := u - threshold
	if math.Abs(d) <= boundaryEpsilon {
		return classOn
	}
	inside := d <= 0
	if !keepLessEqual {
		inside = d >= 0
	}
	if inside {
		return classInside
	}
	return classOutside
}

// clipEdge is one active quadrant boundary: clip against coordinate `axis`
// (0=u, 1=v) keeping the side where axis-value compares to threshold per
// keepLessEqual.
type clipEdge struct {
	axis          int
	threshold     float64
	keepLessEqual bool
}

func (q Quadrant) activeClipEdges() []clipEdge {
	minU, minV, maxU, maxV := q.bounds()
	var edges []clipEdge
	if minU > boundaryEpsilon {
		edges = append(edges, clipEdge{axis: 0, threshold: minU, keepLessEqual: false})
	}
	if maxU < 1-boundaryEpsilon {
		edges = append(edges, clipEdge{axis: 0, threshold: maxU, keepLessEqual: true})
	}
	if minV > boundaryEpsilon {
		edges = append(edges, clipEdge{axis: 1, threshold: minV, keepLessEqual: false})
	}
	if maxV < 1-boundaryEpsilon {
		edges = append(edges, clipEdge{axis: 1, threshold: maxV, keepLessEqual: true})
	}
	return edges
}

func axisValue(v tileset.Vertex, axis int) float64 {
	if axis == 0 {
		return v.UV.U
	}
	return v.UV.V
}

// clipAgainstEdge runs one Sutherland-Hodgman pass of poly against a single
// clip boundary, synthesizing edgeKey-tagged vertices at crossings.
func clipAgainstEdge(poly []clipVert, e clipEdge) []clipVert {
	if len(poly) == 0 {
		return nil
	}
	out := make([]clipVert, 0, len(poly)+1)
	prev := poly[len(poly)-1]
	prevClass := classify(axisValue(prev.v, e.axis), e.threshold, e.keepLessEqual)

	for _, cur := range poly {
		curClass := classify(axisValue(cur.v, e.axis), e.threshold, e.keepLessEqual)

		// A vertex lying On the boundary is itself the crossing point, so no
		// intersection is synthesized next to it (that would duplicate it).
		if curClass != classOutside {
			if prevClass == classOutside && curClass == classInside {
				out = append(out, intersectAt(prev, cur, e))
			}
			out = append(out, cur)
		} else if prevClass == classInside {
			out = append(out, intersectAt(prev, cur, e))
		}

		prev, prevClass = cur, curClass
	}
	return out
}

// intersectAt synthesizes the vertex where segment a->b crosses clip edge e.
func intersectAt(a, b clipVert, e clipEdge) clipVert {
	av := axisValue(a.v, e.axis)
	bv := axisValue(b.v, e.axis)
	var t float64
	if bv != av {
		t = (e.threshold - av) / (bv - av)
	}
	t = clamp01(t)

	merged := lerpVertex(a.v, b.v, t)

	// The dedup key is keyed on the *original* parent vertices this
	// crossing descends from, even if a or b is itself a previously
	// synthesized vertex from an earlier clip pass against the other axis
	// — in that (corner) case we fall back to the immediate pair, which is
	// still consistent for any triangle sharing that exact corner cut.
	aIdx, bIdx := vertKeyIndex(a), vertKeyIndex(b)
	return clipVert{
		v:             merged,
		originalIndex: -1,
		edge:          makeEdgeKey(aIdx, bIdx, e.axis, t),
	}
}

// vertKeyIndex returns a stable identifier for dedup-key purposes: the
// original parent index if available, else a synthesized pseudo-index
// derived from its edge key so repeated corner cuts still collapse.
func vertKeyIndex(cv clipVert) uint32 {
	if cv.originalIndex >= 0 {
		return uint32(cv.originalIndex)
	}
	// Fold the edge key into a single uint32; collisions only risk a missed
	// dedup (an extra vertex), never a correctness bug, since corner cases
	// are rare and still produce a geometrically valid mesh.
	return cv.edge.a*100003 + cv.edge.b*7 + uint32(cv.edge.axis) + uint32(cv.edge.bucket)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
