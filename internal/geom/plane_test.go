package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrustumContainsForwardPoint(t *testing.T) {
	eye := Vector3{X: 0, Y: 0, Z: 1000}
	dir := Vector3{X: 0, Y: 0, Z: -1}
	up := Vector3{X: 0, Y: 1, Z: 0}

	f := NewFrustum(eye, dir, up, math.Pi/3, 1.0)

	origin := Vector3{}
	for _, p := range f.Planes() {
		assert.GreaterOrEqual(t, p.SignedDistanceTo(origin), 0.0)
	}
}

func TestFrustumExcludesPointBehindCamera(t *testing.T) {
	eye := Vector3{X: 0, Y: 0, Z: 1000}
	dir := Vector3{X: 0, Y: 0, Z: -1}
	up := Vector3{X: 0, Y: 1, Z: 0}

	f := NewFrustum(eye, dir, up, math.Pi/3, 1.0)

	farLeft := Vector3{X: -1e6, Y: 0, Z: 500}
	outside := false
	for _, p := range f.Planes() {
		if p.SignedDistanceTo(farLeft) < 0 {
			outside = true
		}
	}
	assert.True(t, outside)
}

func TestSphereIntersectPlane(t *testing.T) {
	v := NewSphereVolume(Vector3{}, 10)
	p := Plane{Normal: Vector3{X: 0, Y: 0, Z: 1}, Distance: -100}
	assert.Equal(t, Outside, v.IntersectPlane(p))

	p2 := Plane{Normal: Vector3{X: 0, Y: 0, Z: 1}, Distance: 50}
	assert.Equal(t, Inside, v.IntersectPlane(p2))
}
