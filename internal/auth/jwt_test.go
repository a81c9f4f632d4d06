package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/freight-matching/internal/apperr"
	"github.com/example/freight-matching/internal/models"
)

func TestSignAndParseRoundTrip(t *testing.T) {
	tok, err := SignToken(Identity{ID: "u1", Role: models.RoleShipper}, "secret", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	id, err := ParseBearer(r, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.ID != "u1" || id.Role != models.RoleShipper {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestParseBearer_MissingHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := ParseBearer(r, "secret")
	if !apperr.Is(err, apperr.AuthenticationRequired) {
		t.Fatalf("expected authentication_required, got %v", err)
	}
}

func TestParseBearer_WrongSecret(t *testing.T) {
	tok, _ := SignToken(Identity{ID: "u1", Role: models.RoleShipper}, "secret", time.Minute)
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if _, err := ParseBearer(r, "other"); !apperr.Is(err, apperr.AuthenticationRequired) {
		t.Fatalf("expected authentication_required, got %v", err)
	}
}

func TestParseBearer_ExpiredToken(t *testing.T) {
	tok, _ := SignToken(Identity{ID: "u1", Role: models.RoleTruckOwner}, "secret", -time.Minute)
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if _, err := ParseBearer(r, "secret"); err == nil {
		t.Fatal("expected error for expired token")
	}
}
