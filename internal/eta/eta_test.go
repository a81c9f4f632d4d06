package eta

import (
	"errors"
	"testing"
	"time"

	"github.com/example/freight-matching/internal/models"
)

type fakeRouter struct {
	dist  float64
	err   error
	calls int
}

func (f *fakeRouter) RouteMeters(from, to models.Coord) (float64, error) {
	f.calls++
	return f.dist, f.err
}

func TestDistance_RoutedWhenAvailable(t *testing.T) {
	r := &fakeRouter{dist: 1234}
	got := Distance(r, nil, models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 1, Lon: 1})
	if got != 1234 {
		t.Fatalf("expected routed distance, got %f", got)
	}
}

func TestDistance_FallsBackToHaversine(t *testing.T) {
	r := &fakeRouter{err: errors.New("router down")}
	from := models.Coord{Lat: 0, Lon: 0}
	to := models.Coord{Lat: 0, Lon: 1}
	got := Distance(r, nil, from, to)
	// one degree of longitude at the equator is ~111km
	if got < 110000 || got > 112000 {
		t.Fatalf("expected haversine fallback ~111km, got %f", got)
	}
}

func TestDistance_CacheShortCircuits(t *testing.T) {
	r := &fakeRouter{dist: 500}
	c := NewCache(time.Minute)
	from := models.Coord{Lat: 1, Lon: 2}
	to := models.Coord{Lat: 3, Lon: 4}
	Distance(r, c, from, to)
	Distance(r, c, from, to)
	if r.calls != 1 {
		t.Fatalf("expected 1 router call, got %d", r.calls)
	}
}

func TestEstimateSeconds_SpeedFallbacks(t *testing.T) {
	if got := EstimateSeconds(100, 10, 0); got != 10 {
		t.Fatalf("expected 10s at reported speed, got %f", got)
	}
	if got := EstimateSeconds(90, 0, 9); got != 10 {
		t.Fatalf("expected the configured fallback speed, got %f", got)
	}
	if got := EstimateSeconds(800, 0, 0); got != 100 {
		t.Fatalf("expected 100s at the built-in default, got %f", got)
	}
}
