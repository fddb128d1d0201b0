package geo

import (
	"math"
	"math/rand"

	"github.com/example/ride-tracking/internal/models"
)

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Distance is Haversine over Coord values.
func Distance(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Lerp returns the point a fraction t (0..1) of the way from a to b.
// Linear interpolation in lat/lon is fine at street scale.
func Lerp(a, b models.Coord, t float64) models.Coord {
	return models.Coord{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lon: a.Lon + (b.Lon-a.Lon)*t,
	}
}

// BBox is a geographic bounding box used to pick patrol destinations.
type BBox struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

func (b BBox) Contains(c models.Coord) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// RandomPoint returns a uniformly distributed point inside the box.
func (b BBox) RandomPoint(rnd *rand.Rand) models.Coord {
	return models.Coord{
		Lat: b.MinLat + rnd.Float64()*(b.MaxLat-b.MinLat),
		Lon: b.MinLon + rnd.Float64()*(b.MaxLon-b.MinLon),
	}
}

// Advance walks dist meters along the polyline route starting from pos at
// waypoint index cursor. It consumes whole segments while dist allows and
// interpolates inside the final partial one. Returns the new position, the
// new cursor, and whether the route was exhausted before dist ran out.
func Advance(pos models.Coord, route []models.Coord, cursor int, dist float64) (models.Coord, int, bool) {
	for cursor < len(route) {
		next := route[cursor]
		seg := Distance(pos, next)
		if seg <= dist {
			dist -= seg
			pos = next
			cursor++
			continue
		}
		return Lerp(pos, next, dist/seg), cursor, false
	}
	return pos, cursor, true
}
