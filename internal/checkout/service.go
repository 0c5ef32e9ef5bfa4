package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/internal/checkout/helpers"
	"github.com/stallside/stallside-backend/internal/escrow"
	"github.com/stallside/stallside-backend/internal/verification"
	"github.com/stallside/stallside-backend/pkg/config"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
	"github.com/stallside/stallside-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutInput is the client-submitted checkout request after decoding.
type CheckoutInput struct {
	BuyerID           uuid.UUID
	CustomerEmail     string
	FulfillmentMethod enums.FulfillmentMethod
	Notes             string
	ShippingAddress   string
	Lines             []verification.CartLineRequest
}

// SessionResult is returned for a standard checkout.
type SessionResult struct {
	SessionID        string `json:"sessionId"`
	SessionURL       string `json:"sessionUrl"`
	SubtotalCents    int    `json:"subtotalCents"`
	PlatformFeeCents int    `json:"platformFeeCents"`
	TotalCents       int    `json:"totalCents"`
}

// EscrowResult is returned for an escrow checkout.
type EscrowResult struct {
	OrderID           uuid.UUID `json:"orderId"`
	PaymentIntentID   string    `json:"paymentIntentId"`
	ClientSecret      string    `json:"clientSecret"`
	AmountCents       int       `json:"amountCents"`
	SellerAmountCents int       `json:"sellerAmountCents"`
	PlatformFeeCents  int       `json:"platformFeeCents"`
}

// Service runs checkout orchestration for both modes.
type Service interface {
	CheckoutStandard(ctx context.Context, input CheckoutInput) (*SessionResult, error)
	CheckoutEscrow(ctx context.Context, input CheckoutInput) (*EscrowResult, error)
}

// ServiceParams configure the checkout service.
type ServiceParams struct {
	Tx       txRunner
	Verifier verification.Verifier
	Builder  *IntentBuilder
	Payments PaymentClient
	Escrow   escrow.Service
	Fees     config.FeesConfig
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	verifier verification.Verifier
	builder  *IntentBuilder
	payments PaymentClient
	escrow   escrow.Service
	fees     config.FeesConfig
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("verifier required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("intent builder required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment client required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       params.Tx,
		verifier: params.Verifier,
		builder:  params.Builder,
		payments: params.Payments,
		escrow:   params.Escrow,
		fees:     params.Fees,
		logg:     params.Logger,
	}, nil
}

func (s *service) CheckoutStandard(ctx context.Context, input CheckoutInput) (*SessionResult, error) {
	lines, groups, err := s.verifyAndGroup(ctx, input)
	if err != nil {
		return nil, err
	}

	breakdown, err := helpers.ComputeFees(groups, enums.CheckoutModeStandard, s.fees.StandardRateBPS)
	if err != nil {
		return nil, err
	}

	intentID := uuid.New()
	request, err := s.builder.BuildSession(SessionInput{
		IntentID:          intentID,
		BuyerID:           input.BuyerID,
		CustomerEmail:     input.CustomerEmail,
		FulfillmentMethod: input.FulfillmentMethod,
		Notes:             input.Notes,
		ShippingAddress:   input.ShippingAddress,
		Lines:             lines,
		Breakdown:         breakdown,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building checkout session")
	}

	session, err := s.payments.CreateSession(ctx, request)
	if err != nil {
		s.logg.Error(ctx, "processor session create failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating checkout session")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"checkout_intent_id": intentID.String(),
		"session_id":         session.ID,
		"total_cents":        breakdown.TotalCents,
	})
	s.logg.Info(logCtx, "checkout session created")

	return &SessionResult{
		SessionID:        session.ID,
		SessionURL:       session.URL,
		SubtotalCents:    breakdown.SubtotalCents,
		PlatformFeeCents: breakdown.PlatformFeeCents,
		TotalCents:       breakdown.TotalCents,
	}, nil
}

func (s *service) CheckoutEscrow(ctx context.Context, input CheckoutInput) (*EscrowResult, error) {
	lines, groups, err := s.verifyAndGroup(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(groups) != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "escrow checkout supports a single seller").
			WithDetails(map[string]any{"sellerCount": len(groups)})
	}

	breakdown, err := helpers.ComputeFees(groups, enums.CheckoutModeEscrow, s.fees.EscrowRateBPS)
	if err != nil {
		return nil, err
	}
	payout := breakdown.Payouts[0]

	orderID := uuid.New()
	request, err := s.builder.BuildAuthorization(AuthorizationInput{
		OrderID:           orderID,
		BuyerID:           input.BuyerID,
		FulfillmentMethod: input.FulfillmentMethod,
		Line:              lines[0],
		Payout:            payout,
		TotalCents:        breakdown.TotalCents,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building escrow authorization")
	}

	intent, err := s.payments.CreateAuthorization(ctx, request)
	if err != nil {
		s.logg.Error(ctx, "processor authorization failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "placing escrow hold")
	}

	var record *EscrowResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.escrow.Initiate(ctx, tx, escrow.InitiateInput{
			OrderID:            orderID,
			PaymentIntentRef:   intent.ID,
			SellerID:           payout.SellerID,
			BuyerID:            input.BuyerID,
			ConnectDestination: payout.ConnectDestination,
			AmountCents:        breakdown.TotalCents,
			SellerAmountCents:  payout.PayoutCents,
			PlatformFeeCents:   payout.FeeShareCents,
		})
		if err != nil {
			return err
		}
		record = &EscrowResult{
			OrderID:           created.OrderID,
			PaymentIntentID:   created.PaymentIntentRef,
			ClientSecret:      intent.ClientSecret,
			AmountCents:       created.AmountCents,
			SellerAmountCents: created.SellerAmountCents,
			PlatformFeeCents:  created.PlatformFeeCents,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(logCtx, "escrow hold initiated")
	return record, nil
}

func (s *service) verifyAndGroup(ctx context.Context, input CheckoutInput) ([]verification.VerifiedLine, []helpers.SellerGroup, error) {
	if input.BuyerID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if !input.FulfillmentMethod.IsValid() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid fulfillment method")
	}

	lines, err := s.verifier.Verify(ctx, input.Lines)
	if err != nil {
		return nil, nil, err
	}

	if input.FulfillmentMethod == enums.FulfillmentMethodPickup {
		for _, line := range lines {
			if !line.PickupEnabled {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "listing does not offer pickup").
					WithDetails(map[string]any{"listingId": line.ListingID})
			}
		}
	}

	return lines, helpers.GroupBySeller(lines), nil
}
