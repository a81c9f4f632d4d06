package payments

import (
	"context"
	"os"
	"sync"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient is a thin wrapper around stripe-go for PaymentIntent
// hold/capture flows. Funds are held when a carrier claims a shipment and
// captured when it is delivered.
type StripeClient struct {
	mu      sync.Mutex
	intents map[string]string // shipment id -> payment intent id
}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeClient() *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	return &StripeClient{intents: make(map[string]string)}
}

// HoldForShipment creates a PaymentIntent with capture_method=manual to hold
// the agreed amount until delivery. Amount is in the currency's minor unit.
func (s *StripeClient) HoldForShipment(ctx context.Context, shipmentID string, amount int64, currency string) error {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.intents[shipmentID] = pi.ID
	s.mu.Unlock()
	return nil
}

// CaptureForShipment finalizes the hold placed for a shipment. A shipment
// with no recorded hold is a no-op rather than an error: holds are
// best-effort and the lifecycle must not wedge on a missing one.
func (s *StripeClient) CaptureForShipment(ctx context.Context, shipmentID string) error {
	s.mu.Lock()
	id, ok := s.intents[shipmentID]
	delete(s.intents, shipmentID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := paymentintent.Capture(id, nil)
	return err
}
