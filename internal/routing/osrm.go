// Package routing wraps the external street-routing provider. The provider
// is best-effort: callers treat any failure as transient and retry on
// their next natural tick.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-tracking/internal/models"
)

// Client returns an ordered polyline between two coordinates.
type Client interface {
	Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error)
}

// OSRMClient fetches routes from an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// Route queries OSRM /route with full GeoJSON geometry and returns the
// polyline as coordinate pairs.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
			} `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("osrm no route: %v", out.Code)
	}
	coords := out.Routes[0].Geometry.Coordinates
	route := make([]models.Coord, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		route = append(route, models.Coord{Lat: c[1], Lon: c[0]})
	}
	if len(route) == 0 {
		return nil, fmt.Errorf("osrm empty polyline")
	}
	return route, nil
}
