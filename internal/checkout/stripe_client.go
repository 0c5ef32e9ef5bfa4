package checkout

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/stallside/stallside-backend/pkg/stripe"
)

// PaymentClient exposes the subset of processor operations checkout needs.
type PaymentClient interface {
	CreateSession(ctx context.Context, req *SessionRequest) (*stripe.CheckoutSession, error)
	CreateAuthorization(ctx context.Context, req *AuthorizationRequest) (*stripe.PaymentIntent, error)
}

type stripeClientWrapper struct{}

// NewPaymentClient wraps the provided Stripe client so the checkout service
// can be tested against a stub.
func NewPaymentClient(api *pkgstripe.Client) PaymentClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CreateSession(ctx context.Context, req *SessionRequest) (*stripe.CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if len(item.Metadata) > 0 {
			productData.Metadata = item.Metadata
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(req.Currency.String())),
				UnitAmount:  stripe.Int64(int64(item.UnitAmountCents)),
				ProductData: productData,
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems:  lineItems,
		Metadata:   req.Metadata,
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("session-" + req.IntentID.String())
	return checkoutsession.New(params)
}

func (w *stripeClientWrapper) CreateAuthorization(ctx context.Context, req *AuthorizationRequest) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(req.AmountCents)),
		Currency:      stripe.String(strings.ToLower(req.Currency.String())),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Metadata:      req.Metadata,
	}
	if req.ConnectDestination != nil {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(*req.ConnectDestination),
		}
		params.ApplicationFeeAmount = stripe.Int64(int64(req.ApplicationFeeCents))
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	return paymentintent.New(params)
}
