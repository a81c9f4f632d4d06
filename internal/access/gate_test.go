package access

import (
	"testing"

	"github.com/example/freight-matching/internal/apperr"
	"github.com/example/freight-matching/internal/auth"
	"github.com/example/freight-matching/internal/models"
)

func TestCanCreate_ShipperOnly(t *testing.T) {
	if err := CanCreate(auth.Identity{ID: "u1", Role: models.RoleShipper}); err != nil {
		t.Fatalf("shipper should create: %v", err)
	}
	err := CanCreate(auth.Identity{ID: "u2", Role: models.RoleTruckOwner})
	if !apperr.Is(err, apperr.PermissionDenied) {
		t.Fatalf("expected permission_denied, got %v", err)
	}
}

func TestCanAdvance_AssignedOwnerOnly(t *testing.T) {
	s := &models.Shipment{ID: "s1", ShipperID: "alice", TruckOwnerID: "t1", Status: models.StatusAccepted}
	if err := CanAdvance(auth.Identity{ID: "t1", Role: models.RoleTruckOwner}, s); err != nil {
		t.Fatalf("assigned owner should advance: %v", err)
	}
	// wrong carrier, the shipper, and even an admin are all rejected
	for _, id := range []auth.Identity{
		{ID: "t2", Role: models.RoleTruckOwner},
		{ID: "alice", Role: models.RoleShipper},
		{ID: "root", Role: models.RoleAdmin},
	} {
		if err := CanAdvance(id, s); !apperr.Is(err, apperr.PermissionDenied) {
			t.Fatalf("%s/%s: expected permission_denied, got %v", id.ID, id.Role, err)
		}
	}
}

func TestCanView_HidesForeignShipments(t *testing.T) {
	owned := &models.Shipment{ID: "s1", ShipperID: "alice", Status: models.StatusPending}
	claimed := &models.Shipment{ID: "s2", ShipperID: "alice", TruckOwnerID: "t1", Status: models.StatusAccepted}

	// a shipper never sees another shipper's record, even by direct id
	if CanView(auth.Identity{ID: "bob", Role: models.RoleShipper}, owned) {
		t.Fatal("bob must not view alice's shipment")
	}
	if !CanView(auth.Identity{ID: "alice", Role: models.RoleShipper}, owned) {
		t.Fatal("alice must view her own shipment")
	}

	// open pending loads are visible to any truck owner; claimed ones only to theirs
	if !CanView(auth.Identity{ID: "t9", Role: models.RoleTruckOwner}, owned) {
		t.Fatal("open pending load should be visible to carriers")
	}
	if CanView(auth.Identity{ID: "t9", Role: models.RoleTruckOwner}, claimed) {
		t.Fatal("claimed shipment must be hidden from other carriers")
	}
	if !CanView(auth.Identity{ID: "t1", Role: models.RoleTruckOwner}, claimed) {
		t.Fatal("assigned carrier must view its shipment")
	}

	if !CanView(auth.Identity{ID: "m", Role: models.RoleManager}, claimed) {
		t.Fatal("manager sees all shipments")
	}
}

func TestListFilterFor(t *testing.T) {
	f := ListFilterFor(auth.Identity{ID: "alice", Role: models.RoleShipper})
	if f.ShipperID != "alice" || f.All || f.OpenPending {
		t.Fatalf("unexpected shipper filter: %+v", f)
	}
	f = ListFilterFor(auth.Identity{ID: "t1", Role: models.RoleTruckOwner})
	if f.TruckOwnerID != "t1" || !f.OpenPending {
		t.Fatalf("unexpected carrier filter: %+v", f)
	}
	if f = ListFilterFor(auth.Identity{ID: "a", Role: models.RoleAdmin}); !f.All {
		t.Fatalf("unexpected admin filter: %+v", f)
	}
}
