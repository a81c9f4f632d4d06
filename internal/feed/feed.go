// Package feed is the tracking-point change feed: appended points are
// published to subscribers scoped to a single shipment. Subscriptions are
// explicit handles the caller must close; delivery is at-least-once, so
// consumers must tolerate duplicates.
package feed

import (
	"context"
	"sync"

	"github.com/example/freight-matching/internal/models"
)

// Subscription is the handle for one shipment's event stream. Events is
// closed when the subscription is closed or the feed shuts down.
type Subscription struct {
	events    chan models.TrackingPoint
	closeOnce sync.Once
	onClose   func()
}

func (s *Subscription) Events() <-chan models.TrackingPoint { return s.events }

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		close(s.events)
	})
}

type Feed interface {
	Subscribe(ctx context.Context, shipmentID string) (*Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, p models.TrackingPoint) error
}

// subscriptionBuffer bounds how far a slow subscriber can lag before events
// are dropped; the watcher backfills from the store on resubscribe anyway.
const subscriptionBuffer = 64

// MemoryFeed is the in-process change feed used by the API server: every
// accepted tracking point is fanned out to subscribers of that shipment.
type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[*Subscription]struct{})}
}

func (f *MemoryFeed) Subscribe(ctx context.Context, shipmentID string) (*Subscription, error) {
	sub := &Subscription{events: make(chan models.TrackingPoint, subscriptionBuffer)}
	sub.onClose = func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if set, ok := f.subs[shipmentID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(f.subs, shipmentID)
			}
		}
	}
	f.mu.Lock()
	if f.subs[shipmentID] == nil {
		f.subs[shipmentID] = make(map[*Subscription]struct{})
	}
	f.subs[shipmentID][sub] = struct{}{}
	f.mu.Unlock()
	return sub, nil
}

// SubscriberCount reports how many subscriptions are open for a shipment.
func (f *MemoryFeed) SubscriberCount(shipmentID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[shipmentID])
}

func (f *MemoryFeed) Publish(ctx context.Context, p models.TrackingPoint) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs[p.ShipmentID] {
		select {
		case sub.events <- p:
		default:
			// subscriber too slow; it will catch up from the store
		}
	}
	return nil
}
