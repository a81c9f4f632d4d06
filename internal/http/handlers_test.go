package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/freight-matching/internal/auth"
	"github.com/example/freight-matching/internal/config"
	"github.com/example/freight-matching/internal/models"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		JWTSecret:        testSecret,
		StaleAfter:       time.Minute,
		StoreCallTimeout: time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger)
}

func token(t *testing.T, id string, role models.Role) string {
	t.Helper()
	tok, err := auth.SignToken(auth.Identity{ID: id, Role: role}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, srv *Server, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func decodeShipment(t *testing.T, w *httptest.ResponseRecorder) models.Shipment {
	t.Helper()
	var s models.Shipment
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode shipment: %v (%s)", err, w.Body.String())
	}
	return s
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return out.Error.Kind
}

func createVia(t *testing.T, srv *Server, shipperTok string) models.Shipment {
	t.Helper()
	w := doJSON(t, srv, "POST", "/api/v1/shipments", shipperTok, models.CreateShipmentRequest{
		OriginAddress: "Bole, Addis Ababa",
		DestAddress:   "Adama, Oromia",
		OriginCoord:   models.Coord{Lat: 9.0108, Lon: 38.7613},
		DestCoord:     models.Coord{Lat: 8.5400, Lon: 39.2705},
		WeightKg:      500,
		PaymentAmount: 1200,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	return decodeShipment(t, w)
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, "GET", "/api/v1/shipments", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if kind := errorKind(t, w); kind != "authentication_required" {
		t.Fatalf("kind = %s", kind)
	}
}

func TestCreateAndLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	shipperTok := token(t, "shipper1", models.RoleShipper)
	t1 := token(t, "t1", models.RoleTruckOwner)
	t2 := token(t, "t2", models.RoleTruckOwner)

	s := createVia(t, srv, shipperTok)
	if s.Status != models.StatusPending || s.TruckOwnerID != "" {
		t.Fatalf("new shipment: %s/%q", s.Status, s.TruckOwnerID)
	}

	// t1 claims it, t2 loses the race
	w := doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/assign", t1, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", w.Code, w.Body.String())
	}
	got := decodeShipment(t, w)
	if got.Status != models.StatusAccepted || got.TruckOwnerID != "t1" {
		t.Fatalf("after assign: %s/%q", got.Status, got.TruckOwnerID)
	}
	w = doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/assign", t2, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second assign: %d", w.Code)
	}
	if kind := errorKind(t, w); kind != "conflict_already_assigned" {
		t.Fatalf("kind = %s", kind)
	}

	// skipping straight to deliver is rejected
	w = doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/deliver", t1, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("skip deliver: %d", w.Code)
	}
	if kind := errorKind(t, w); kind != "invalid_transition" {
		t.Fatalf("kind = %s", kind)
	}

	// in order each call returns the advanced record
	for _, step := range []struct {
		path string
		want models.Status
	}{
		{"pickup", models.StatusPickedUp},
		{"start", models.StatusInTransit},
		{"deliver", models.StatusDelivered},
	} {
		w = doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/"+step.path, t1, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step.path, w.Code, w.Body.String())
		}
		if got := decodeShipment(t, w); got.Status != step.want {
			t.Fatalf("%s: status %s, want %s", step.path, got.Status, step.want)
		}
	}
}

func TestListFiltering(t *testing.T) {
	srv := newTestServer(t)
	aliceTok := token(t, "alice", models.RoleShipper)
	bobTok := token(t, "bob", models.RoleShipper)
	adminTok := token(t, "root", models.RoleAdmin)

	s := createVia(t, srv, aliceTok)

	var list []models.Shipment
	w := doJSON(t, srv, "GET", "/api/v1/shipments", bobTok, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Fatalf("bob sees %d shipments", len(list))
	}
	// direct fetch by id is hidden too
	w = doJSON(t, srv, "GET", "/api/v1/shipments/"+s.ID, bobTok, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("bob get by id: %d", w.Code)
	}

	w = doJSON(t, srv, "GET", "/api/v1/shipments", adminTok, nil)
	list = nil
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("admin sees %d shipments", len(list))
	}
}

func TestTrackingIngestAndCurrent(t *testing.T) {
	srv := newTestServer(t)
	shipperTok := token(t, "shipper1", models.RoleShipper)
	t1 := token(t, "t1", models.RoleTruckOwner)

	s := createVia(t, srv, shipperTok)
	doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/assign", t1, nil)

	// window not open before in_transit
	pt := models.TrackingPoint{Lat: 9.0, Lon: 38.76, SpeedMps: 12, Timestamp: time.Now()}
	w := doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/tracking", t1, pt)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("tracking before in_transit: %d", w.Code)
	}

	doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/pickup", t1, nil)
	doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/start", t1, nil)

	w = doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/tracking", t1, pt)
	if w.Code != http.StatusNoContent {
		t.Fatalf("tracking append: %d %s", w.Code, w.Body.String())
	}
	// only the assigned carrier may report
	w = doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/tracking", token(t, "t2", models.RoleTruckOwner), pt)
	if w.Code != http.StatusNotFound && w.Code != http.StatusForbidden {
		t.Fatalf("foreign tracking append: %d", w.Code)
	}

	w = doJSON(t, srv, "GET", "/api/v1/shipments/"+s.ID+"/tracking/current", shipperTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("current: %d %s", w.Code, w.Body.String())
	}
	var pos models.Position
	if err := json.Unmarshal(w.Body.Bytes(), &pos); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if pos.SpeedKmh < 43 || pos.SpeedKmh > 44 {
		t.Fatalf("12 m/s should be ~43.2 km/h, got %f", pos.SpeedKmh)
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	shipperTok := token(t, "shipper1", models.RoleShipper)
	t1 := token(t, "t1", models.RoleTruckOwner)

	s := createVia(t, srv, shipperTok)

	// carrier sees the open load
	var notifs []models.Notification
	w := doJSON(t, srv, "GET", "/api/v1/notifications", t1, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &notifs)
	if len(notifs) != 1 || notifs[0].Key != s.ID+"-new" {
		t.Fatalf("carrier notifications: %+v", notifs)
	}

	doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/assign", t1, nil)
	doJSON(t, srv, "POST", "/api/v1/shipments/"+s.ID+"/pickup", t1, nil)

	notifs = nil
	w = doJSON(t, srv, "GET", "/api/v1/notifications", shipperTok, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &notifs)
	if len(notifs) != 2 {
		t.Fatalf("shipper should have accepted+picked_up entries, got %d", len(notifs))
	}
	if notifs[0].Key != s.ID+"-picked_up" {
		t.Fatalf("newest first, got %s", notifs[0].Key)
	}
}
