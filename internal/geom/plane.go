package geom

import "math"

// PlaneSide is the result of classifying a bounding volume against a single
// plane of the view frustum.
type PlaneSide int

const (
	// Outside means the volume lies entirely on the negative side of the plane.
	Outside PlaneSide = iota
	// Intersecting means the volume straddles the plane.
	Intersecting
	// Inside means the volume lies entirely on the positive (inward) side.
	Inside
)

// Plane is a half-space boundary: points p with Normal.Dot(p)+Distance >= 0
// are on the inward side.
type Plane struct {
	Normal   Vector3
	Distance float64
}

// SignedDistanceTo returns the signed distance from p to the plane, positive
// on the inward side.
func (p Plane) SignedDistanceTo(point Vector3) float64 {
	return p.Normal.Dot(point) + p.Distance
}

// Frustum is the four side planes of a camera view volume. Near/far culling
// is not modeled; depth clipping is a rendering concern, out of scope here.
type Frustum struct {
	Left, Right, Top, Bottom Plane
}

// Planes returns the frustum's four side planes for iteration.
func (f Frustum) Planes() [4]Plane {
	return [4]Plane{f.Left, f.Right, f.Top, f.Bottom}
}

// NewFrustum builds a view frustum from an eye position, a normalized view
// direction, a normalized up vector, vertical field of view (radians) and
// aspect ratio (width/height). Mirrors the camera construction in the
// original ViewState, generalized to an explicit eye/direction/up triple.
func NewFrustum(eye, direction, up Vector3, fovY, aspect float64) Frustum {
	right := direction.Cross(up).Normalize()
	trueUp := right.Cross(direction).Normalize()

	halfV := math.Tan(fovY / 2)
	halfH := halfV * aspect

	// Side plane normals point inward; each is built from two frustum edge
	// directions so SignedDistanceTo is positive for points inside.
	leftEdge := direction.Add(right.Scale(-halfH)).Normalize()
	rightEdge := direction.Add(right.Scale(halfH)).Normalize()
	topEdge := direction.Add(trueUp.Scale(halfV)).Normalize()
	bottomEdge := direction.Add(trueUp.Scale(-halfV)).Normalize()

	mkPlane := func(a, b Vector3) Plane {
		n := a.Cross(b).Normalize()
		return Plane{Normal: n, Distance: -n.Dot(eye)}
	}

	return Frustum{
		Left:   mkPlane(leftEdge, trueUp),
		Right:  mkPlane(trueUp, rightEdge),
		Top:    mkPlane(topEdge, right),
		Bottom: mkPlane(right, bottomEdge),
	}
}
