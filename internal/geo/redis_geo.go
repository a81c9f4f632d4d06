package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/freight-matching/internal/models"
)

// RedisPositions caches the current position of in-transit shipments in
// Redis GEO structures so map views can query them without touching the
// tracking table. The consumer process keeps it updated from the feed.
type RedisPositions struct {
	client *redis.Client
	key    string
}

func NewRedisPositions(addr, password, key string) *RedisPositions {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisPositions{client: c, key: key}
}

// Update writes the point as the shipment's current position unless the
// cache already holds an equal-or-newer timestamp; points can arrive out of
// order and must never roll the cached position backwards.
func (r *RedisPositions) Update(ctx context.Context, p models.TrackingPoint) error {
	if v, err := r.client.HGet(ctx, metaKey(p.ShipmentID), "ts").Result(); err == nil {
		if cached, perr := time.Parse(time.RFC3339Nano, v); perr == nil && !p.Timestamp.After(cached) {
			return nil
		}
	}
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: p.Lon, Latitude: p.Lat, Name: p.ShipmentID}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(p.ShipmentID), map[string]interface{}{
		"speed":   strconv.FormatFloat(p.SpeedMps, 'f', -1, 64),
		"heading": strconv.FormatFloat(p.Heading, 'f', -1, 64),
		"ts":      p.Timestamp.Format(time.RFC3339Nano),
	}).Err()
}

// Current returns the cached position, or ok=false when the shipment has no
// entry yet.
func (r *RedisPositions) Current(ctx context.Context, shipmentID string) (models.TrackingPoint, bool) {
	pos, err := r.client.GeoPos(ctx, r.key, shipmentID).Result()
	if err != nil || len(pos) == 0 || pos[0] == nil {
		return models.TrackingPoint{}, false
	}
	p := models.TrackingPoint{ShipmentID: shipmentID, Lat: pos[0].Latitude, Lon: pos[0].Longitude}
	if m, err := r.client.HGetAll(ctx, metaKey(shipmentID)).Result(); err == nil {
		if v, ok := m["speed"]; ok {
			p.SpeedMps, _ = strconv.ParseFloat(v, 64)
		}
		if v, ok := m["heading"]; ok {
			p.Heading, _ = strconv.ParseFloat(v, 64)
		}
		if v, ok := m["ts"]; ok {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				p.Timestamp = t
			}
		}
	}
	return p, true
}

func (r *RedisPositions) Close() error { return r.client.Close() }

func metaKey(id string) string { return "shipment:pos:" + id }
