// Package fares holds the per-category pricing table.
package fares

import (
	"math"

	"github.com/example/ride-tracking/internal/models"
)

// Rate is the fare definition for one vehicle category. Amounts are in the
// platform currency; PerKm applies to tracked distance.
type Rate struct {
	Base  float64
	PerKm float64
}

var table = map[models.VehicleCategory]Rate{
	models.CategoryStandard: {Base: 150, PerKm: 85},
	models.CategoryLuxury:   {Base: 250, PerKm: 130},
	models.CategoryVan:      {Base: 200, PerKm: 100},
}

// For returns the rate for a category, falling back to standard for
// unknown values so a bad record never zeroes a fare.
func For(category models.VehicleCategory) Rate {
	if r, ok := table[category]; ok {
		return r
	}
	return table[models.CategoryStandard]
}

// Cost computes base + distance*perKm rounded to currency precision.
func Cost(category models.VehicleCategory, distanceKm float64) float64 {
	r := For(category)
	return Round2(r.Base + distanceKm*r.PerKm)
}

// Round2 rounds to 2 decimals (currency precision).
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// RoundKm rounds to 3 decimals, meter resolution on a km figure.
func RoundKm(v float64) float64 { return math.Round(v*1000) / 1000 }
