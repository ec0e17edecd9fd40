package geom

import "math"

// GeodeticPosition is the optional cartographic form of a ViewState's eye,
// used for fog-height lookup and camera-under-tile tests.
type GeodeticPosition struct {
	Longitude float64 // radians
	Latitude  float64 // radians
	Height    float64 // meters above the reference sphere
}

// ViewState is the immutable per-frame camera input the selector consumes.
// Mirrors the constructor shape of the original ViewState: eye position,
// view direction, up vector, viewport size, vertical field of view, and an
// optional geodetic eye.
type ViewState struct {
	Position      Vector3
	Direction     Vector3
	Up            Vector3
	ViewportWidth float64
	ViewportHeight float64
	FovY          float64 // vertical field of view, radians
	Geodetic      *GeodeticPosition

	frustum       Frustum
	sseDenominator float64
}

// NewViewState builds a ViewState, precomputing the frustum and the
// screen-space-error denominator (2*tan(fovY/2)) once per frame.
func NewViewState(position, direction, up Vector3, viewportWidth, viewportHeight, fovY float64, geodetic *GeodeticPosition) ViewState {
	aspect := viewportWidth / viewportHeight
	return ViewState{
		Position:       position,
		Direction:      direction,
		Up:             up,
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
		FovY:           fovY,
		Geodetic:       geodetic,
		frustum:        NewFrustum(position, direction, up, fovY, aspect),
		sseDenominator: 2.0 * math.Tan(0.5*fovY),
	}
}

// IsVisible reports whether the bounding volume passes the view frustum.
func (vs ViewState) IsVisible(v BoundingVolume) bool {
	return v.IsVisible(vs.frustum)
}

// DistanceSquaredTo returns the squared distance from the eye to the nearest
// surface point of v.
func (vs ViewState) DistanceSquaredTo(v BoundingVolume) float64 {
	return v.DistanceSquaredTo(vs.Position)
}

// ScreenSpaceError converts a world-space geometric error at a given
// distance into a pixel-space screen-space error.
func (vs ViewState) ScreenSpaceError(geometricError, distance float64) float64 {
	if distance < 1e-7 {
		distance = 1e-7
	}
	return (geometricError * vs.ViewportHeight) / (distance * vs.sseDenominator)
}

// EyeHeight returns the eye's height above the reference sphere, falling
// back to 0 when no geodetic position was supplied.
func (vs ViewState) EyeHeight() float64 {
	if vs.Geodetic == nil {
		return 0
	}
	return vs.Geodetic.Height
}
