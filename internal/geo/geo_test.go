package geo

import "testing"

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Addis Ababa to Adama is roughly 75km straight line
	d := Haversine(9.0108, 38.7613, 8.5400, 39.2705)
	if d < 70000 || d > 80000 {
		t.Fatalf("expected ~75km, got %f m", d)
	}
}
