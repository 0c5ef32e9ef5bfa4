package settlement

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/transfer"

	pkgstripe "github.com/stallside/stallside-backend/pkg/stripe"
)

// TransferInput moves held funds to a seller's payout destination.
type TransferInput struct {
	AmountCents    int
	Currency       string
	Destination    string
	TransferGroup  string
	IdempotencyKey string
}

// ProcessorClient exposes the processor operations settlement needs. Capture
// and transfer are idempotent through processor idempotency keys derived
// from the escrow record id, so a resumed worker cannot double-settle.
type ProcessorClient interface {
	CapturePaymentIntent(ctx context.Context, ref, idempotencyKey string) (*stripe.PaymentIntent, error)
	CreateTransfer(ctx context.Context, input TransferInput) (*stripe.Transfer, error)
}

type stripeClientWrapper struct{}

// NewProcessorClient wraps the provided Stripe client so settlement jobs can
// be tested against a stub.
func NewProcessorClient(api *pkgstripe.Client) ProcessorClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CapturePaymentIntent(ctx context.Context, ref, idempotencyKey string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(idempotencyKey)
	return paymentintent.Capture(ref, params)
}

func (w *stripeClientWrapper) CreateTransfer(ctx context.Context, input TransferInput) (*stripe.Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(int64(input.AmountCents)),
		Currency:    stripe.String(input.Currency),
		Destination: stripe.String(input.Destination),
	}
	if input.TransferGroup != "" {
		params.TransferGroup = stripe.String(input.TransferGroup)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	return transfer.New(params)
}
