package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMetersZeroForSamePoint(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{10.0, 106.0},
		{-33.8688, 151.2093},
		{89.9, -179.9},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, DistanceMeters(p[0], p[1], p[0], p[1]))
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	d1 := DistanceMeters(10.0, 106.0, 10.001, 106.001)
	d2 := DistanceMeters(10.001, 106.001, 10.0, 106.0)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestDistanceMetersKnownOffsets(t *testing.T) {
	// ~156 m for a 0.001°/0.001° offset near (10, 106).
	d := DistanceMeters(10.0, 106.0, 10.001, 106.001)
	assert.InDelta(t, 156.0, d, 1.0)

	// One degree of latitude is ~111.2 km anywhere.
	d = DistanceMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195.0, d, 100.0)
}

func TestDistanceMetersNonNegative(t *testing.T) {
	d := DistanceMeters(-10.5, -70.2, 48.85, 2.35)
	assert.Greater(t, d, 0.0)
}
