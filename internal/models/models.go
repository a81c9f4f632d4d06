package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Role identifies the kind of caller behind a request.
type Role string

const (
	RoleShipper    Role = "shipper"
	RoleTruckOwner Role = "truck_owner"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
)

// Status is the shipment lifecycle state. Shipments only ever move forward
// along StatusOrder, one step at a time.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
)

// StatusOrder is the fixed forward progression of a shipment.
var StatusOrder = []Status{StatusPending, StatusAccepted, StatusPickedUp, StatusInTransit, StatusDelivered}

// Rank returns the position of s in StatusOrder, or -1 for unknown statuses.
func (s Status) Rank() int {
	for i, v := range StatusOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// Next returns the single valid successor status, if any.
func (s Status) Next() (Status, bool) {
	r := s.Rank()
	if r < 0 || r+1 >= len(StatusOrder) {
		return "", false
	}
	return StatusOrder[r+1], true
}

type Shipment struct {
	ID             string  `json:"id"`
	ShipperID      string  `json:"shipper_id"`
	TruckOwnerID   string  `json:"truck_owner_id,omitempty"` // empty until assigned, set exactly once
	Status         Status  `json:"status"`
	OriginAddress  string  `json:"origin_address"`
	DestAddress    string  `json:"destination_address"`
	OriginCoord    Coord   `json:"origin_coord"`
	DestCoord      Coord   `json:"destination_coord"`
	GoodsDesc      string  `json:"goods_description"`
	GoodsType      string  `json:"goods_type"`
	WeightKg       float64 `json:"weight_kg"`
	PaymentAmount  float64 `json:"payment_amount"`
	PickupDatetime string  `json:"pickup_datetime,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Status-change stamps, set when the shipment reaches each state.
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	InTransitAt *time.Time `json:"in_transit_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// StatusTime returns when the shipment reached the given status, if it has.
func (s *Shipment) StatusTime(st Status) (time.Time, bool) {
	var t *time.Time
	switch st {
	case StatusPending:
		return s.CreatedAt, true
	case StatusAccepted:
		t = s.AcceptedAt
	case StatusPickedUp:
		t = s.PickedUpAt
	case StatusInTransit:
		t = s.InTransitAt
	case StatusDelivered:
		t = s.DeliveredAt
	}
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// TrackingPoint is one GPS sample for a shipment. Rows are append-only; the
// device clock supplies Timestamp, so samples may arrive out of order.
type TrackingPoint struct {
	ShipmentID string    `json:"shipment_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedMps   float64   `json:"speed"`
	AccuracyM  float64   `json:"accuracy"`
	Heading    float64   `json:"heading"`
	AltitudeM  float64   `json:"altitude"`
	Timestamp  time.Time `json:"timestamp"`
}

type Notification struct {
	Key        string    `json:"key"` // stable across recomputation
	ShipmentID string    `json:"shipment_id"`
	Recipient  string    `json:"recipient"`
	Status     Status    `json:"status,omitempty"` // empty for new-load entries
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

type CreateShipmentRequest struct {
	OriginAddress  string  `json:"origin_address"`
	DestAddress    string  `json:"destination_address"`
	OriginCoord    Coord   `json:"origin_coord"`
	DestCoord      Coord   `json:"destination_coord"`
	GoodsDesc      string  `json:"goods_description"`
	GoodsType      string  `json:"goods_type"`
	WeightKg       float64 `json:"weight_kg"`
	PaymentAmount  float64 `json:"payment_amount"`
	PickupDatetime string  `json:"pickup_datetime"`
}

// Position is the projected "current position" of a shipment as seen by an
// observer: the freshest tracking point plus derived figures.
type Position struct {
	ShipmentID  string    `json:"shipment_id"`
	Coord       Coord     `json:"coord"`
	SpeedKmh    float64   `json:"speed_kmh"`
	Heading     float64   `json:"heading"`
	Timestamp   time.Time `json:"timestamp"`
	DistOriginM float64   `json:"distance_from_origin_m"`
	DistDestM   float64   `json:"distance_to_destination_m"`
	ETASeconds  float64   `json:"eta_seconds"`
	StatusText  string    `json:"status_text"`
	Stale       bool      `json:"stale"`
}
