package eta

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/freight-matching/internal/geo"
	"github.com/example/freight-matching/internal/models"
)

// Client is the routing collaborator: given two coordinates it returns the
// routed driving distance in meters. Callers fall back to straight-line
// distance when the router is unavailable.
type Client interface {
	RouteMeters(from, to models.Coord) (float64, error)
}

// Cache is a tiny in-memory cache for routing lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Distance resolves the distance between two coordinates: routed when a
// client is available, straight-line haversine otherwise. The cache, when
// present, short-circuits repeated lookups for the same pair.
func Distance(client Client, cache *Cache, from, to models.Coord) float64 {
	if cache != nil {
		if v, ok := cache.Get(from, to); ok {
			return v
		}
	}
	if client != nil {
		if v, err := client.RouteMeters(from, to); err == nil {
			if cache != nil {
				cache.Set(from, to, v)
			}
			return v
		}
	}
	return geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
}

// DefaultSpeedMps is assumed when a point reports no usable speed and no
// fallback is configured. ~28.8 km/h, a loaded truck in city traffic.
const DefaultSpeedMps = 8.0

// EstimateSeconds is the naive travel-time estimate: distance / speed.
// fallbackMps substitutes for a missing or nonsensical reported speed.
func EstimateSeconds(distanceM, speedMps, fallbackMps float64) float64 {
	if speedMps <= 0 {
		speedMps = fallbackMps
	}
	if speedMps <= 0 {
		speedMps = DefaultSpeedMps
	}
	return distanceM / speedMps
}
