// Package tracker turns the raw tracking-point feed into a continuously
// updating "current position" for one shipment at a time: backfill on
// subscribe, monotonic timestamps, distance projection, staleness marking
// and resubscribe on feed drop.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/freight-matching/internal/eta"
	"github.com/example/freight-matching/internal/feed"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/storage"
)

type Watcher struct {
	Feed         feed.Feed
	Store        storage.TrackingStore
	Router       eta.Client // optional routing collaborator
	Cache        *eta.Cache // optional
	StaleAfter   time.Duration
	DefaultSpeed float64 // m/s, used for ETA when a point reports none
	Logger       *slog.Logger

	mu     sync.Mutex
	active *Stream
}

// Watch starts observing the given shipment. Any previously active stream is
// stopped first: one watcher follows one shipment at a time, and leaking the
// old subscription would double-deliver events. The cancel handle is wired
// before the stream is published, so a Stop racing a concurrent Watch always
// tears down the subscription.
func (w *Watcher) Watch(ctx context.Context, s *models.Shipment) *Stream {
	runCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	if w.active != nil {
		w.active.Stop()
	}
	st := w.newStream(s)
	st.cancel = cancel
	w.active = st
	w.mu.Unlock()

	go st.run(runCtx, w)
	return st
}

func (w *Watcher) newStream(s *models.Shipment) *Stream {
	return &Stream{
		shipment:   *s,
		updates:    make(chan models.Position, 16),
		staleAfter: w.StaleAfter,
	}
}

func (w *Watcher) log() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Stream is one live observation of a shipment's position.
type Stream struct {
	shipment   models.Shipment
	updates    chan models.Position
	staleAfter time.Duration
	cancel     context.CancelFunc

	mu      sync.Mutex
	current models.Position
	has     bool
	stopped bool
}

// Updates delivers each newly accepted position. The channel is never closed
// while the stream runs; slow readers miss intermediate updates but Current
// always reflects the freshest accepted point.
func (s *Stream) Updates() <-chan models.Position { return s.updates }

// Current returns the last accepted position. During a feed outage the
// position is retained, not cleared; it is marked stale once older than the
// configured threshold.
func (s *Stream) Current() (models.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.current
	if s.has && s.staleAfter > 0 && time.Since(p.Timestamp) > s.staleAfter {
		p.Stale = true
	}
	return p, s.has
}

func (s *Stream) Stop() {
	s.mu.Lock()
	stopped := s.stopped
	s.stopped = true
	s.mu.Unlock()
	if !stopped && s.cancel != nil {
		s.cancel()
	}
}

func (s *Stream) run(ctx context.Context, w *Watcher) {
	// backfill so an observer joining mid-shipment is not shown a blank
	// position before the first live event
	if p, err := w.Store.Latest(ctx, s.shipment.ID); err == nil {
		s.apply(w, p)
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		sub, err := w.Feed.Subscribe(ctx, s.shipment.ID)
		if err != nil {
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = time.Second

	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case p, ok := <-sub.Events():
				if !ok {
					break recv
				}
				s.apply(w, p)
			}
		}
		// feed dropped: keep the last known position and resubscribe
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		w.log().Warn("tracking feed dropped, resubscribing", "shipment_id", s.shipment.ID)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// apply accepts p as the current position unless an equal-or-later point was
// already delivered in this stream's lifetime. Late points stay in the store
// but never regress the displayed position.
func (s *Stream) apply(w *Watcher, p models.TrackingPoint) {
	s.mu.Lock()
	if s.stopped || (s.has && !p.Timestamp.After(s.current.Timestamp)) {
		s.mu.Unlock()
		return
	}
	pos := s.project(w, p)
	s.current = pos
	s.has = true
	s.mu.Unlock()

	select {
	case s.updates <- pos:
	default:
	}
}

func (s *Stream) project(w *Watcher, p models.TrackingPoint) models.Position {
	return ProjectPoint(&s.shipment, p, w.Router, w.Cache, w.DefaultSpeed)
}

// ProjectPoint derives the observer-facing position from one tracking point:
// routed (or straight-line) distances to the shipment's endpoints, speed in
// km/h and a coarse status text. fallbackSpeedMps feeds the ETA when the
// point reports no speed.
func ProjectPoint(s *models.Shipment, p models.TrackingPoint, router eta.Client, cache *eta.Cache, fallbackSpeedMps float64) models.Position {
	here := models.Coord{Lat: p.Lat, Lon: p.Lon}
	distOrigin := eta.Distance(router, cache, here, s.OriginCoord)
	distDest := eta.Distance(router, cache, here, s.DestCoord)
	return models.Position{
		ShipmentID:  p.ShipmentID,
		Coord:       here,
		SpeedKmh:    p.SpeedMps * 3.6,
		Heading:     p.Heading,
		Timestamp:   p.Timestamp,
		DistOriginM: distOrigin,
		DistDestM:   distDest,
		ETASeconds:  eta.EstimateSeconds(distDest, p.SpeedMps, fallbackSpeedMps),
		StatusText:  statusText(distOrigin, distDest),
	}
}

func statusText(distOrigin, distDest float64) string {
	switch {
	case distDest < 500:
		return "arriving at destination"
	case distOrigin < 500:
		return "near pickup point"
	default:
		return "en route"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}
