// Package notify derives user-facing notifications from shipment state and
// pushes live updates over websocket sessions. The projector is a pure
// recomputation over current state: there is no persisted read/ack flag, so
// keys must be stable across calls.
package notify

import (
	"fmt"
	"sort"

	"github.com/example/freight-matching/internal/models"
)

var statusTitles = map[models.Status]string{
	models.StatusAccepted:  "Shipment accepted",
	models.StatusPickedUp:  "Goods picked up",
	models.StatusInTransit: "Shipment in transit",
	models.StatusDelivered: "Shipment delivered",
}

// ForStatusChange builds the shipper-facing notification for a shipment that
// has reached the given status. Key is <id>-<status> so recomputation of the
// same event always yields the same entry.
func ForStatusChange(s *models.Shipment, st models.Status) models.Notification {
	at, _ := s.StatusTime(st)
	return models.Notification{
		Key:        fmt.Sprintf("%s-%s", s.ID, st),
		ShipmentID: s.ID,
		Recipient:  s.ShipperID,
		Status:     st,
		Title:      statusTitles[st],
		Message:    fmt.Sprintf("Your shipment %s → %s is now %s", s.OriginAddress, s.DestAddress, st),
		At:         at,
	}
}

func forNewLoad(s *models.Shipment, recipient string) models.Notification {
	return models.Notification{
		Key:        s.ID + "-new",
		ShipmentID: s.ID,
		Recipient:  recipient,
		Title:      "New load available",
		Message:    fmt.Sprintf("%s → %s, %.0f kg of %s", s.OriginAddress, s.DestAddress, s.WeightKg, s.GoodsType),
		At:         s.CreatedAt,
	}
}

// Project computes the caller's notification feed from the given shipments,
// most recent first. Shippers get one entry per status their shipment has
// reached; truck owners get one entry per open pending load.
func Project(shipments []*models.Shipment, recipient string, role models.Role) []models.Notification {
	var out []models.Notification
	for _, s := range shipments {
		switch role {
		case models.RoleTruckOwner:
			if s.Status == models.StatusPending && s.TruckOwnerID == "" {
				out = append(out, forNewLoad(s, recipient))
			}
		default:
			if s.ShipperID != recipient {
				continue
			}
			for _, st := range models.StatusOrder[1:] {
				if _, reached := s.StatusTime(st); reached {
					out = append(out, ForStatusChange(s, st))
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}
