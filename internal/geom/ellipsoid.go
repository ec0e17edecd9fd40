package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// LonLatHeightToECEF converts a geodetic position (radians, radians, meters)
// to an earth-centered cartesian vector using a spherical (non-ellipsoidal)
// Earth of orb/geo.EarthRadius. Precise ellipsoid geodesy is a black-box
// non-goal; this spherical approximation is the deliberate simplification,
// used only for the Region bounding-sphere fallback.
func LonLatHeightToECEF(lonRad, latRad, height float64) Vector3 {
	r := geo.EarthRadius + height
	cosLat := math.Cos(latRad)
	return Vector3{
		X: r * cosLat * math.Cos(lonRad),
		Y: r * cosLat * math.Sin(lonRad),
		Z: r * math.Sin(latRad),
	}
}

// GeodeticSurfaceNormal returns the outward surface normal at a
// longitude/latitude (radians) on the reference sphere; "down" for skirt
// regeneration is the negation of this vector.
func GeodeticSurfaceNormal(lonRad, latRad float64) Vector3 {
	cosLat := math.Cos(latRad)
	return Vector3{
		X: cosLat * math.Cos(lonRad),
		Y: cosLat * math.Sin(lonRad),
		Z: math.Sin(latRad),
	}
}

// GreatCircleDistance returns the surface distance in meters between two
// lon/lat points given in radians, via orb/geo's haversine implementation
// (orb.Point is degrees, hence the conversion).
func GreatCircleDistance(lon1, lat1, lon2, lat2 float64) float64 {
	a := orb.Point{radToDeg(lon1), radToDeg(lat1)}
	b := orb.Point{radToDeg(lon2), radToDeg(lat2)}
	return geo.Distance(a, b)
}

func radToDeg(r float64) float64 { return r * 180 / math.Pi }
