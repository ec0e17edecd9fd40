package geom

import "math"

// VolumeKind tags which variant of BoundingVolume is populated — a
// tagged-union data model: a match over a sum type, not virtual dispatch.
type VolumeKind int

const (
	KindOrientedBox VolumeKind = iota
	KindRegion
	KindRegionLooseFitHeights
	KindSphere
)

func (k VolumeKind) String() string {
	switch k {
	case KindOrientedBox:
		return "OrientedBox"
	case KindRegion:
		return "Region"
	case KindRegionLooseFitHeights:
		return "RegionLooseFitHeights"
	case KindSphere:
		return "Sphere"
	default:
		return "Unknown"
	}
}

// OrientedBox is an arbitrary-orientation cuboid: a center plus three
// half-length axis vectors (not necessarily axis-aligned or unit length).
type OrientedBox struct {
	Center   Vector3
	HalfAxes [3]Vector3
}

// Region is a geographic rectangle (radians) with a height range. West/East
// and South/North follow standard longitude/latitude sign conventions.
type Region struct {
	West, South, East, North float64
	MinHeight, MaxHeight     float64
}

// ContainsLonLat reports whether a longitude/latitude (radians) falls
// within the region's horizontal extent, ignoring height. Used by the
// render-tiles-under-camera eye test.
func (r Region) ContainsLonLat(lonRad, latRad float64) bool {
	if latRad < r.South || latRad > r.North {
		return false
	}
	if r.West <= r.East {
		return lonRad >= r.West && lonRad <= r.East
	}
	// Antimeridian-crossing region.
	return lonRad >= r.West || lonRad <= r.East
}

// Sphere is a center and radius.
type Sphere struct {
	Center Vector3
	Radius float64
}

// BoundingVolume is the tagged union of the four bounding-volume kinds.
// Only the field matching Kind is meaningful.
type BoundingVolume struct {
	Kind   VolumeKind
	Box    OrientedBox
	Region Region
	Sphere Sphere
}

// NewSphereVolume builds a Sphere-kind BoundingVolume.
func NewSphereVolume(center Vector3, radius float64) BoundingVolume {
	return BoundingVolume{Kind: KindSphere, Sphere: Sphere{Center: center, Radius: radius}}
}

// NewOrientedBoxVolume builds an OrientedBox-kind BoundingVolume.
func NewOrientedBoxVolume(center Vector3, halfAxes [3]Vector3) BoundingVolume {
	return BoundingVolume{Kind: KindOrientedBox, Box: OrientedBox{Center: center, HalfAxes: halfAxes}}
}

// NewRegionVolume builds a Region-kind BoundingVolume.
func NewRegionVolume(r Region) BoundingVolume {
	return BoundingVolume{Kind: KindRegion, Region: r}
}

// NewRegionLooseFitVolume builds a RegionLooseFitHeights-kind BoundingVolume,
// used when the height range is conservative (padded) rather than exact.
func NewRegionLooseFitVolume(r Region) BoundingVolume {
	return BoundingVolume{Kind: KindRegionLooseFitHeights, Region: r}
}

// approximateCenter returns the midpoint of the region's longitude,
// latitude and height ranges.
func (r Region) approximateCenter() (lon, lat, height float64) {
	lon = (r.West + r.East) / 2
	lat = (r.South + r.North) / 2
	height = (r.MinHeight + r.MaxHeight) / 2
	return
}

// classifySphere classifies a sphere-equivalent (center, radius) against
// a plane, shared by all volume kinds via their bounding-sphere fallback.
func classifySphere(center Vector3, radius float64, p Plane) PlaneSide {
	d := p.SignedDistanceTo(center)
	switch {
	case d < -radius:
		return Outside
	case d > radius:
		return Inside
	default:
		return Intersecting
	}
}

// IntersectPlane classifies the volume against a single frustum plane.
func (v BoundingVolume) IntersectPlane(p Plane) PlaneSide {
	switch v.Kind {
	case KindSphere:
		return classifySphere(v.Sphere.Center, v.Sphere.Radius, p)
	case KindOrientedBox:
		// Project the box's half-axes onto the plane normal; the box's
		// extent along the normal is the sum of the absolute projections.
		extent := math.Abs(v.Box.HalfAxes[0].Dot(p.Normal)) +
			math.Abs(v.Box.HalfAxes[1].Dot(p.Normal)) +
			math.Abs(v.Box.HalfAxes[2].Dot(p.Normal))
		d := p.SignedDistanceTo(v.Box.Center)
		switch {
		case d < -extent:
			return Outside
		case d > extent:
			return Inside
		default:
			return Intersecting
		}
	case KindRegion, KindRegionLooseFitHeights:
		center, radius := v.regionBoundingSphere()
		return classifySphere(center, radius, p)
	default:
		return Intersecting
	}
}

// IsVisible reports whether the volume passes all four frustum side planes.
func (v BoundingVolume) IsVisible(f Frustum) bool {
	for _, p := range f.Planes() {
		if v.IntersectPlane(p) == Outside {
			return false
		}
	}
	return true
}

// regionBoundingSphere approximates a Region as a sphere centered at the
// region's midpoint, using a spherical (non-ellipsoidal) Earth. Exact
// geodesy is explicitly out of scope; this is a deliberate simplification,
// not a missing feature.
func (v BoundingVolume) regionBoundingSphere() (Vector3, float64) {
	lon, lat, height := v.Region.approximateCenter()
	center := LonLatHeightToECEF(lon, lat, height)
	corners := []Vector3{
		LonLatHeightToECEF(v.Region.West, v.Region.South, v.Region.MinHeight),
		LonLatHeightToECEF(v.Region.West, v.Region.North, v.Region.MinHeight),
		LonLatHeightToECEF(v.Region.East, v.Region.South, v.Region.MaxHeight),
		LonLatHeightToECEF(v.Region.East, v.Region.North, v.Region.MaxHeight),
	}
	radius := 0.0
	for _, c := range corners {
		d := c.Sub(center).Length()
		if d > radius {
			radius = d
		}
	}
	return center, radius
}

// minDistEpsilon clamps zero-distance degeneracies for the screen-space
// error denominator.
const minDistEpsilon = 1e-6

// DistanceSquaredTo returns the squared distance from point to the nearest
// surface point of the volume, clamped away from zero.
func (v BoundingVolume) DistanceSquaredTo(point Vector3) float64 {
	var d2 float64
	switch v.Kind {
	case KindSphere:
		d := point.Sub(v.Sphere.Center).Length() - v.Sphere.Radius
		if d < 0 {
			d = 0
		}
		d2 = d * d
	case KindOrientedBox:
		d2 = obbDistanceSquared(v.Box, point)
	case KindRegion, KindRegionLooseFitHeights:
		center, radius := v.regionBoundingSphere()
		d := point.Sub(center).Length() - radius
		if d < 0 {
			d = 0
		}
		d2 = d * d
	}
	if d2 < minDistEpsilon {
		return minDistEpsilon
	}
	return d2
}

// Contains reports whether point lies on or inside the volume's surface,
// used by the viewer-request-volume test, which needs an exact
// inside/outside answer rather than the epsilon-clamped distance used for
// screen-space error.
func (v BoundingVolume) Contains(point Vector3) bool {
	switch v.Kind {
	case KindSphere:
		return point.Sub(v.Sphere.Center).Length() <= v.Sphere.Radius
	case KindOrientedBox:
		return obbDistanceSquared(v.Box, point) == 0
	case KindRegion, KindRegionLooseFitHeights:
		center, radius := v.regionBoundingSphere()
		return point.Sub(center).Length() <= radius
	default:
		return false
	}
}

// obbDistanceSquared returns the squared distance from p to the nearest
// point on an oriented box's surface (0 if p is inside).
func obbDistanceSquared(b OrientedBox, p Vector3) float64 {
	local := p.Sub(b.Center)
	d2 := 0.0
	for _, axis := range b.HalfAxes {
		axisLen := axis.Length()
		if axisLen == 0 {
			continue
		}
		unit := axis.Scale(1 / axisLen)
		proj := local.Dot(unit)
		if proj > axisLen {
			d2 += (proj - axisLen) * (proj - axisLen)
		} else if proj < -axisLen {
			d2 += (proj + axisLen) * (proj + axisLen)
		}
	}
	return d2
}
