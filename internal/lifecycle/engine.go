// Package lifecycle implements the shipment state machine:
// pending → accepted → picked_up → in_transit → delivered, one step at a
// time. The engine is stateless across calls; current status always comes
// from the store, and the claim/advance writes are conditional updates so
// racing callers resolve to exactly one winner.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/freight-matching/internal/access"
	"github.com/example/freight-matching/internal/apperr"
	"github.com/example/freight-matching/internal/auth"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/notify"
	"github.com/example/freight-matching/internal/observability"
	"github.com/example/freight-matching/internal/storage"
)

// Pusher delivers a live notification to a connected user. Delivery is
// best-effort; the projector recomputes the same entry on the next read.
type Pusher interface {
	Push(userID string, n models.Notification) error
}

// Payments is the optional hold/capture collaborator.
type Payments interface {
	HoldForShipment(ctx context.Context, shipmentID string, amount int64, currency string) error
	CaptureForShipment(ctx context.Context, shipmentID string) error
}

type Engine struct {
	Store       storage.ShipmentStore
	Push        Pusher   // optional
	Payments    Payments // optional
	Logger      *slog.Logger
	CallTimeout time.Duration // per store call; zero means no deadline
	Currency    string
	Now         func() time.Time // test hook
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.CallTimeout)
}

// Create registers a new pending shipment for the calling shipper. The
// record's shipper_id is always the caller's identity, never caller-supplied.
func (e *Engine) Create(ctx context.Context, caller auth.Identity, req models.CreateShipmentRequest) (*models.Shipment, error) {
	if err := access.CanCreate(caller); err != nil {
		return nil, err
	}
	now := e.now()
	s := &models.Shipment{
		ID:             uuid.NewString(),
		ShipperID:      caller.ID,
		Status:         models.StatusPending,
		OriginAddress:  req.OriginAddress,
		DestAddress:    req.DestAddress,
		OriginCoord:    req.OriginCoord,
		DestCoord:      req.DestCoord,
		GoodsDesc:      req.GoodsDesc,
		GoodsType:      req.GoodsType,
		WeightKg:       req.WeightKg,
		PaymentAmount:  req.PaymentAmount,
		PickupDatetime: req.PickupDatetime,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	if err := e.Store.Create(cctx, s); err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "could not persist shipment")
	}
	observability.ShipmentsCreated.Inc()
	return s, nil
}

// List returns the shipments the caller is allowed to see, newest first.
func (e *Engine) List(ctx context.Context, caller auth.Identity) ([]*models.Shipment, error) {
	filter := access.ListFilterFor(caller)
	out, err := e.readShipments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readShipments retries once on upstream failure; listing is a pure read.
func (e *Engine) readShipments(ctx context.Context, f storage.ListFilter) ([]*models.Shipment, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		cctx, cancel := e.callCtx(ctx)
		out, err := e.Store.List(cctx, f)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, apperr.Wrap(apperr.UpstreamUnavailable, lastErr, "could not list shipments")
}

// Get fetches one shipment, applying the same visibility rule as listing:
// a record outside the caller's scope reads as not found.
func (e *Engine) Get(ctx context.Context, caller auth.Identity, id string) (*models.Shipment, error) {
	s, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanView(caller, s) {
		return nil, apperr.New(apperr.NotFound, "shipment %s not found", id)
	}
	return s, nil
}

func (e *Engine) get(ctx context.Context, id string) (*models.Shipment, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		cctx, cancel := e.callCtx(ctx)
		s, err := e.Store.Get(cctx, id)
		cancel()
		if err == nil {
			return s, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "shipment %s not found", id)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, apperr.Wrap(apperr.UpstreamUnavailable, lastErr, "could not read shipment")
}

// Assign claims an open pending shipment for the calling truck owner. The
// store performs the check-and-set; under concurrent attempts exactly one
// caller wins and the rest get ConflictAlreadyAssigned with the current
// status. Assign is never retried here: the conditional write already makes
// a duplicate attempt harmless, but the failure must reach the caller.
func (e *Engine) Assign(ctx context.Context, caller auth.Identity, id string) (*models.Shipment, error) {
	if err := access.CanAssign(caller); err != nil {
		return nil, err
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	s, err := e.Store.Assign(cctx, id, caller.ID, e.now())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.New(apperr.NotFound, "shipment %s not found", id)
		case errors.Is(err, storage.ErrConditionFailed):
			observability.AssignConflicts.Inc()
			cur, gerr := e.get(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			return nil, apperr.New(apperr.ConflictAlreadyAssigned, "already assigned, current status: %s", cur.Status)
		default:
			return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "could not assign shipment")
		}
	}
	observability.AssignmentsTotal.Inc()
	observability.TransitionsTotal.WithLabelValues(string(models.StatusAccepted)).Inc()
	e.holdPayment(ctx, s)
	e.pushToShipper(s, models.StatusAccepted)
	return s, nil
}

// Advance moves a shipment exactly one step forward. The caller must be the
// assigned truck owner; any non-adjacent or backward target is rejected with
// an error naming the current state and the attempted one.
func (e *Engine) Advance(ctx context.Context, caller auth.Identity, id string, target models.Status) (*models.Shipment, error) {
	cur, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.CanAdvance(caller, cur); err != nil {
		return nil, err
	}
	next, ok := cur.Status.Next()
	if !ok || next != target {
		return nil, apperr.New(apperr.InvalidTransition, "cannot move from %s to %s", cur.Status, target)
	}

	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	s, err := e.Store.AdvanceStatus(cctx, id, cur.Status, target, e.now())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.New(apperr.NotFound, "shipment %s not found", id)
		case errors.Is(err, storage.ErrConditionFailed):
			// the status moved between our read and the write, e.g. the same
			// owner advancing from a second device
			cur, gerr := e.get(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			return nil, apperr.New(apperr.InvalidTransition, "cannot move from %s to %s", cur.Status, target)
		default:
			return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "could not update shipment")
		}
	}
	observability.TransitionsTotal.WithLabelValues(string(target)).Inc()
	if target == models.StatusDelivered {
		e.capturePayment(ctx, s)
	}
	e.pushToShipper(s, target)
	return s, nil
}

func (e *Engine) pushToShipper(s *models.Shipment, st models.Status) {
	if e.Push == nil {
		return
	}
	if err := e.Push.Push(s.ShipperID, notify.ForStatusChange(s, st)); err != nil && !errors.Is(err, notify.ErrNoSession) {
		e.log().Warn("notification push failed", "shipment_id", s.ID, "status", st, "error", err)
	}
}

func (e *Engine) holdPayment(ctx context.Context, s *models.Shipment) {
	if e.Payments == nil || s.PaymentAmount <= 0 {
		return
	}
	amount := int64(s.PaymentAmount * 100)
	if err := e.Payments.HoldForShipment(ctx, s.ID, amount, e.currency()); err != nil {
		e.log().Warn("payment hold failed", "shipment_id", s.ID, "error", err)
	}
}

func (e *Engine) capturePayment(ctx context.Context, s *models.Shipment) {
	if e.Payments == nil {
		return
	}
	if err := e.Payments.CaptureForShipment(ctx, s.ID); err != nil {
		e.log().Warn("payment capture failed", "shipment_id", s.ID, "error", err)
	}
}

func (e *Engine) currency() string {
	if e.Currency == "" {
		return "usd"
	}
	return e.Currency
}

func (e *Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
