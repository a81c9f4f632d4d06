// Package access decides, per request, whether a caller may perform an
// operation on a shipment. Every check takes the caller identity explicitly;
// there is no ambient session state anywhere below the HTTP layer.
package access

import (
	"github.com/example/freight-matching/internal/apperr"
	"github.com/example/freight-matching/internal/auth"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/storage"
)

func isAdmin(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleManager
}

// CanCreate permits shipment creation to shippers only. The new record's
// shipper_id is always forced to the caller's identity by the engine.
func CanCreate(id auth.Identity) error {
	if id.Role != models.RoleShipper {
		return apperr.New(apperr.PermissionDenied, "only shippers may create shipments")
	}
	return nil
}

// CanAssign permits the self-assignment attempt itself; whether the shipment
// is still open is decided atomically by the store, not here.
func CanAssign(id auth.Identity) error {
	if id.Role != models.RoleTruckOwner {
		return apperr.New(apperr.PermissionDenied, "only truck owners may accept shipments")
	}
	return nil
}

// CanAdvance permits status advances by the assigned carrier only. Role is
// irrelevant here: even an admin may not advance a shipment it does not carry.
func CanAdvance(id auth.Identity, s *models.Shipment) error {
	if s.TruckOwnerID == "" || s.TruckOwnerID != id.ID {
		return apperr.New(apperr.PermissionDenied, "only the assigned truck owner may update this shipment")
	}
	return nil
}

// ListFilterFor translates the caller's role into the row-level visibility
// rule: shippers see their own shipments, truck owners see their assigned
// shipments plus open pending loads, admins and managers see everything.
func ListFilterFor(id auth.Identity) storage.ListFilter {
	switch {
	case isAdmin(id.Role):
		return storage.ListFilter{All: true}
	case id.Role == models.RoleTruckOwner:
		return storage.ListFilter{TruckOwnerID: id.ID, OpenPending: true}
	default:
		return storage.ListFilter{ShipperID: id.ID}
	}
}

// CanView reports whether a single record falls inside the caller's list
// visibility. Callers outside it are told "not found" rather than "forbidden"
// so record existence is never leaked.
func CanView(id auth.Identity, s *models.Shipment) bool {
	if isAdmin(id.Role) {
		return true
	}
	if id.Role == models.RoleTruckOwner {
		if s.TruckOwnerID == id.ID {
			return true
		}
		return s.Status == models.StatusPending && s.TruckOwnerID == ""
	}
	return s.ShipperID == id.ID
}
