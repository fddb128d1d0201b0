package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-tracking/internal/models"
)

// moving north, degrees per meter
const degPerMeter = 1.0 / 111194.9

func TestHaversineZero(t *testing.T) {
	assert.Zero(t, Haversine(0, 0, 0, 0))
}

func TestHaversineKnownDistance(t *testing.T) {
	// 1500m due north of (45, 19)
	d := Haversine(45.0, 19.0, 45.0+1500*degPerMeter, 19.0)
	assert.InDelta(t, 1500, d, 1)
}

func TestLerpMidpoint(t *testing.T) {
	a := models.Coord{Lat: 45.0, Lon: 19.0}
	b := models.Coord{Lat: 46.0, Lon: 20.0}
	mid := Lerp(a, b, 0.5)
	assert.InDelta(t, 45.5, mid.Lat, 1e-9)
	assert.InDelta(t, 19.5, mid.Lon, 1e-9)
}

func TestBBoxRandomPoint(t *testing.T) {
	box := BBox{MinLat: 45.22, MinLon: 19.76, MaxLat: 45.30, MaxLon: 19.88}
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		p := box.RandomPoint(rnd)
		assert.True(t, box.Contains(p), "point %v outside box", p)
	}
}

func TestAdvanceConsumesWholeSegments(t *testing.T) {
	start := models.Coord{Lat: 45.0, Lon: 19.0}
	route := []models.Coord{
		{Lat: 45.0 + 50*degPerMeter, Lon: 19.0},
		{Lat: 45.0 + 100*degPerMeter, Lon: 19.0},
		{Lat: 45.0 + 200*degPerMeter, Lon: 19.0},
	}

	pos, cursor, exhausted := Advance(start, route, 0, 120)
	require.False(t, exhausted)
	assert.Equal(t, 2, cursor)
	assert.InDelta(t, 120, Distance(start, pos), 1)
}

func TestAdvanceInterpolatesPartialSegment(t *testing.T) {
	start := models.Coord{Lat: 45.0, Lon: 19.0}
	route := []models.Coord{{Lat: 45.0 + 100*degPerMeter, Lon: 19.0}}

	pos, cursor, exhausted := Advance(start, route, 0, 40)
	require.False(t, exhausted)
	assert.Equal(t, 0, cursor)
	assert.InDelta(t, 40, Distance(start, pos), 1)
}

func TestAdvanceReportsExhaustion(t *testing.T) {
	start := models.Coord{Lat: 45.0, Lon: 19.0}
	route := []models.Coord{{Lat: 45.0 + 30*degPerMeter, Lon: 19.0}}

	pos, cursor, exhausted := Advance(start, route, 0, 50)
	assert.True(t, exhausted)
	assert.Equal(t, 1, cursor)
	assert.InDelta(t, 30, Distance(start, pos), 1)
}
