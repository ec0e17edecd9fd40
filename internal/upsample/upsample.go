package upsample

import "github.com/MeKo-Tech/tile3d/internal/tileset"

// Result is the output of Upsample: a new indexed mesh covering only the
// requested quadrant, rescaled to [0,1]^2.
type Result struct {
	Mesh *tileset.Mesh
}

// Upsample clips parent to the given quadrant of its UV space, producing a
// new indexed triangle mesh with a rebuilt skirt. It fails only when parent
// is malformed; an empty (zero-triangle) mesh with no error is returned
// when no parent triangle intersects the quadrant.
func Upsample(parent *tileset.Mesh, quad Quadrant) (*Result, error) {
	if parent == nil || len(parent.Indices)%3 != 0 {
		return nil, ErrMalformedMesh
	}
	for _, idx := range parent.Indices {
		if int(idx) >= len(parent.Vertices) {
			return nil, ErrMalformedMesh
		}
	}

	edges := quad.activeClipEdges()
	c := newClipper(parent, quad)

	for t := 0; t < parent.TriangleCount(); t++ {
		ia, ib, ic := parent.Triangle(t)
		poly := []clipVert{
			{v: parent.Vertices[ia], originalIndex: int(ia)},
			{v: parent.Vertices[ib], originalIndex: int(ib)},
			{v: parent.Vertices[ic], originalIndex: int(ic)},
		}

		classes := triangleClasses(poly, edges)
		if allOutside(classes) {
			continue
		}
		if allInside(classes) {
			emitPolygon(c, poly)
			continue
		}
		// A triangle with no strictly-inside vertex (only On-boundary and
		// Outside combinations, e.g. exactly one On vertex and two Outside)
		// contributes zero output triangles. A stricter reading might emit a
		// degenerate sliver; this preserves the original's behavior verbatim.
		if !anyInside(classes) {
			continue
		}

		clipped := poly
		for _, e := range edges {
			clipped = clipAgainstEdge(clipped, e)
			if len(clipped) == 0 {
				break
			}
		}
		if len(clipped) < 3 {
			continue
		}
		emitPolygon(c, clipped)
	}

	mesh := &tileset.Mesh{
		Vertices: c.outVerts,
		Indices:  c.outIdx,
		InvertV:  parent.InvertV,
	}

	if parent.Skirt != nil {
		buildSkirt(mesh, parent.Skirt, quad)
	}

	return &Result{Mesh: mesh}, nil
}

// triangleClasses classifies each of a triangle's three vertices against
// every active clip edge. A vertex is Outside overall if it fails any
// active edge, On if it is On at least one and fails none, else Inside.
func triangleClasses(poly []clipVert, edges []clipEdge) []vertexClass {
	out := make([]vertexClass, len(poly))
	for i, cv := range poly {
		best := classInside
		for _, e := range edges {
			cl := classify(axisValue(cv.v, e.axis), e.threshold, e.keepLessEqual)
			if cl == classOutside {
				best = classOutside
				break
			}
			if cl == classOn && best == classInside {
				best = classOn
			}
		}
		out[i] = best
	}
	return out
}

func allOutside(classes []vertexClass) bool {
	for _, c := range classes {
		if c != classOutside {
			return false
		}
	}
	return true
}

func allInside(classes []vertexClass) bool {
	for _, c := range classes {
		if c == classOutside {
			return false
		}
	}
	return true
}

func anyInside(classes []vertexClass) bool {
	for _, c := range classes {
		if c == classInside {
			return true
		}
	}
	return false
}

// emitPolygon fan-triangulates a convex polygon (already wound consistently
// with the parent triangle, since Sutherland-Hodgman clipping preserves
// vertex order) starting from an unambiguous original vertex when one is
// present.
func emitPolygon(c *clipper, poly []clipVert) {
	if len(poly) < 3 {
		return
	}

	apex := 0
	for i, cv := range poly {
		if cv.originalIndex >= 0 {
			apex = i
			break
		}
	}
	rotated := make([]clipVert, len(poly))
	for i := range poly {
		rotated[i] = poly[(apex+i)%len(poly)]
	}

	apexIdx := c.emit(rotated[0])
	prevIdx := c.emit(rotated[1])
	for i := 2; i < len(rotated); i++ {
		curIdx := c.emit(rotated[i])
		c.outIdx = append(c.outIdx, apexIdx, prevIdx, curIdx)
		prevIdx = curIdx
	}
}
