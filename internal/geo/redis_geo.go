package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-tracking/internal/models"
)

// RedisVehicles mirrors vehicle positions into Redis GEO for the map feed.
type RedisVehicles struct {
	client *redis.Client
	key    string
}

func NewRedisVehicles(addr, password, key string) *RedisVehicles {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisVehicles{client: c, key: key}
}

func (r *RedisVehicles) Upsert(ctx context.Context, v models.Vehicle) error {
	_, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: v.Location.Lon,
		Latitude:  v.Location.Lat,
		Name:      v.ID,
	}).Result()
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(v.ID), map[string]interface{}{
		"occupancy": string(v.Occupancy),
		"category":  string(v.Category),
		"updated":   time.Now().Format(time.RFC3339),
	}).Err()
}

// Nearby returns up to limit vehicles within radius meters of the point.
func (r *RedisVehicles) Nearby(ctx context.Context, lat, lon, radius float64, limit int) []models.Vehicle {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radius, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Vehicle, 0, len(res))
	for _, g := range res {
		v := models.Vehicle{ID: g.Name}
		v.Location.Lat = g.Latitude
		v.Location.Lon = g.Longitude
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			v.Occupancy = models.OccupancyStatus(m["occupancy"])
			v.Category = models.VehicleCategory(m["category"])
			if ts, ok := m["updated"]; ok {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					v.Updated = t
				}
			}
		}
		out = append(out, v)
	}
	return out
}

func (r *RedisVehicles) Close() error { return r.client.Close() }

func metaKey(id string) string { return "vehicle:meta:" + id }
