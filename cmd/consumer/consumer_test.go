package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/freight-matching/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	hashes   map[string]map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	if f.hashes == nil {
		f.hashes = make(map[string]map[string]interface{})
	}
	f.hashes[key] = values
	return nil
}

func (f *fakeUpdater) HGet(ctx context.Context, key, field string) (string, error) {
	v, ok := f.hashes[key][field]
	if !ok {
		return "", nil
	}
	s, _ := v.(string)
	return s, nil
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	p := &models.TrackingPoint{ShipmentID: "s1", Lat: 9.01, Lon: 38.76, SpeedMps: 11, Timestamp: time.Now()}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, "shipments_geo", p, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestOlderPointDoesNotOverwriteCachedPosition(t *testing.T) {
	f := &fakeUpdater{}
	ctx := context.Background()

	newer := &models.TrackingPoint{ShipmentID: "s1", Lat: 9.01, Lon: 38.76, Timestamp: time.Unix(105, 0)}
	if staleForCache(ctx, f, newer) {
		t.Fatal("empty cache must not block the first write")
	}
	if err := updateRedisWithRetry(ctx, f, "shipments_geo", newer, 1, time.Millisecond); err != nil {
		t.Fatalf("initial write failed: %v", err)
	}

	// the t=102 straggler arrives after t=105 was cached
	late := &models.TrackingPoint{ShipmentID: "s1", Timestamp: time.Unix(102, 0)}
	if !staleForCache(ctx, f, late) {
		t.Fatal("older point must be skipped, not cached as current")
	}
	dup := &models.TrackingPoint{ShipmentID: "s1", Timestamp: time.Unix(105, 0)}
	if !staleForCache(ctx, f, dup) {
		t.Fatal("duplicate timestamp must be skipped")
	}

	next := &models.TrackingPoint{ShipmentID: "s1", Timestamp: time.Unix(106, 0)}
	if staleForCache(ctx, f, next) {
		t.Fatal("newer point must pass the guard")
	}
	// other shipments have their own cache entries
	other := &models.TrackingPoint{ShipmentID: "s2", Timestamp: time.Unix(50, 0)}
	if staleForCache(ctx, f, other) {
		t.Fatal("guard must be scoped per shipment")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	p := &models.TrackingPoint{ShipmentID: "s1", Lat: 9.01, Lon: 38.76, Timestamp: time.Now()}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, "shipments_geo", p, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
