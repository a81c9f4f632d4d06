package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/freight-matching/internal/models"
)

var (
	// ErrNotFound is returned when the referenced shipment does not exist.
	ErrNotFound = errors.New("shipment not found")
	// ErrConditionFailed is returned when a conditional update matched no row:
	// the shipment exists but its current state differs from the expected one.
	ErrConditionFailed = errors.New("conditional update matched no row")
)

// ListFilter scopes a shipment listing to what the caller may see. Zero
// fields are ignored; All overrides the rest.
type ListFilter struct {
	ShipperID    string
	TruckOwnerID string
	OpenPending  bool // include unassigned pending shipments
	All          bool
}

// ShipmentStore defines persistence operations for shipments. Assign and
// AdvanceStatus are check-and-set writes: they succeed only if the row still
// matches the expected prior state, which is what makes concurrent
// assignment attempts resolve to exactly one winner.
type ShipmentStore interface {
	Create(ctx context.Context, s *models.Shipment) error
	Get(ctx context.Context, id string) (*models.Shipment, error)
	List(ctx context.Context, f ListFilter) ([]*models.Shipment, error)
	Assign(ctx context.Context, id, truckOwnerID string, at time.Time) (*models.Shipment, error)
	AdvanceStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.Shipment, error)
}

// TrackingStore is the append-only tracking point log.
type TrackingStore interface {
	Append(ctx context.Context, p models.TrackingPoint) error
	// Latest returns the point with the maximum timestamp for the shipment,
	// or ErrNotFound when no point has been recorded yet.
	Latest(ctx context.Context, shipmentID string) (models.TrackingPoint, error)
}

type MemoryStore struct {
	mu        sync.RWMutex
	shipments map[string]*models.Shipment
	points    map[string][]models.TrackingPoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shipments: make(map[string]*models.Shipment),
		points:    make(map[string][]models.TrackingPoint),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *models.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.shipments[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context, f ListFilter) ([]*models.Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Shipment, 0, len(m.shipments))
	for _, s := range m.shipments {
		if !matches(s, f) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func matches(s *models.Shipment, f ListFilter) bool {
	if f.All {
		return true
	}
	if f.ShipperID != "" && s.ShipperID == f.ShipperID {
		return true
	}
	if f.TruckOwnerID != "" && s.TruckOwnerID == f.TruckOwnerID {
		return true
	}
	if f.OpenPending && s.Status == models.StatusPending && s.TruckOwnerID == "" {
		return true
	}
	return false
}

func (m *MemoryStore) Assign(ctx context.Context, id, truckOwnerID string, at time.Time) (*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != models.StatusPending || s.TruckOwnerID != "" {
		return nil, ErrConditionFailed
	}
	s.TruckOwnerID = truckOwnerID
	s.Status = models.StatusAccepted
	s.AcceptedAt = &at
	s.UpdatedAt = at
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) AdvanceStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != from {
		return nil, ErrConditionFailed
	}
	s.Status = to
	s.UpdatedAt = at
	switch to {
	case models.StatusPickedUp:
		s.PickedUpAt = &at
	case models.StatusInTransit:
		s.InTransitAt = &at
	case models.StatusDelivered:
		s.DeliveredAt = &at
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Append(ctx context.Context, p models.TrackingPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[p.ShipmentID] = append(m.points[p.ShipmentID], p)
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, shipmentID string) (models.TrackingPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.points[shipmentID]
	if len(pts) == 0 {
		return models.TrackingPoint{}, ErrNotFound
	}
	latest := pts[0]
	for _, p := range pts[1:] {
		if p.Timestamp.After(latest.Timestamp) {
			latest = p
		}
	}
	return latest, nil
}
