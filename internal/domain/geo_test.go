package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// KSOX antenna.
const (
	ksoxLat = 33.8178
	ksoxLon = -117.636
	ksoxAlt = 955.0
)

func TestGatePosition_AtAntenna(t *testing.T) {
	lat, lon, alt := GatePosition(ksoxLat, ksoxLon, ksoxAlt, 123, 0.5, 0)
	assert.Equal(t, ksoxLat, lat)
	assert.Equal(t, ksoxLon, lon)
	assert.InDelta(t, ksoxAlt, alt, 1e-6)
}

func TestGatePosition_DueNorth(t *testing.T) {
	// 100 km north at zero elevation: ~0.9 degrees of latitude.
	lat, lon, alt := GatePosition(ksoxLat, ksoxLon, ksoxAlt, 0, 0, 100_000)

	assert.InDelta(t, ksoxLat+0.899, lat, 0.005)
	assert.InDelta(t, ksoxLon, lon, 1e-9)
	// Earth curvature lifts a level beam ~590 m above the antenna at 100 km.
	assert.InDelta(t, ksoxAlt+588, alt, 5)
}

func TestGatePosition_DueEast(t *testing.T) {
	lat, lon, _ := GatePosition(ksoxLat, ksoxLon, ksoxAlt, 90, 0, 50_000)

	assert.InDelta(t, ksoxLat, lat, 0.01)
	// 50 km east at 33.8N: 50 / (111.2 * cos 33.8) degrees.
	assert.InDelta(t, ksoxLon+0.541, lon, 0.005)
}

func TestGatePosition_ElevationRaisesBeam(t *testing.T) {
	_, _, low := GatePosition(ksoxLat, ksoxLon, ksoxAlt, 45, 0.5, 60_000)
	_, _, high := GatePosition(ksoxLat, ksoxLon, ksoxAlt, 45, 4.0, 60_000)
	assert.Greater(t, high, low)
}

func TestGatePosition_WrapsAntimeridian(t *testing.T) {
	_, lon, _ := GatePosition(0, 179.9, 0, 90, 0, 50_000)
	assert.Less(t, lon, -179.0)
}
