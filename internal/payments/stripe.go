package payments

import (
	"context"
	"math"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient wraps stripe-go for the seat-hold flow: a manual-capture
// PaymentIntent is created when a request is confirmed, captured when the
// ride completes, and cancelled when the seat is given back.
type StripeClient struct {
	Currency string
}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeClient(currency string) *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	if currency == "" {
		currency = "usd"
	}
	return &StripeClient{Currency: currency}
}

// HoldSeat holds one seat's price for the given rider. Price is the ride's
// per-seat decimal price; stripe wants minor units.
func (s *StripeClient) HoldSeat(ctx context.Context, riderID string, price float64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(math.Round(price * 100))),
		Currency: stripe.String(s.Currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	params.AddMetadata("rider_id", riderID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Release cancels the hold on a PaymentIntent.
func (s *StripeClient) Release(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
