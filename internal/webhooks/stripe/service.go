package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/internal/checkout"
	"github.com/stallside/stallside-backend/internal/escrow"
	"github.com/stallside/stallside-backend/internal/orders"
	"github.com/stallside/stallside-backend/internal/reminders"
	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type catalogRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Listing, error)
}

// Service reconciles processor webhook events into local state. The checkout
// session metadata blob is the source of truth for order contents; amounts
// echoed by the processor are never trusted.
type Service interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// ServiceParams configure the webhook reconciler.
type ServiceParams struct {
	Tx        txRunner
	Orders    orders.Repository
	Catalog   catalogRepo
	Reminders reminders.Service
	Escrow    escrow.Service
	Outbox    outboxPublisher
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	orders    orders.Repository
	catalog   catalogRepo
	reminders reminders.Service
	escrow    escrow.Service
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the webhook reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Reminders == nil {
		return nil, fmt.Errorf("reminders service required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.Tx,
		orders:    params.Orders,
		catalog:   params.Catalog,
		reminders: params.Reminders,
		escrow:    params.Escrow,
		outbox:    params.Outbox,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// HandleEvent routes a verified event to its handler. Unknown event types are
// acknowledged without side effects so the endpoint can subscribe broadly.
func (s *service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding checkout session payload")
		}
		return s.handleSessionCompleted(logCtx, &session)
	case stripe.EventTypePaymentIntentAmountCapturableUpdated:
		intent, err := decodePaymentIntent(event)
		if err != nil {
			return err
		}
		return s.handleAuthorizationConfirmed(logCtx, intent)
	case stripe.EventTypePaymentIntentCanceled:
		intent, err := decodePaymentIntent(event)
		if err != nil {
			return err
		}
		return s.handleIntentCanceled(logCtx, intent)
	case stripe.EventTypeChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding dispute payload")
		}
		if dispute.PaymentIntent == nil || dispute.PaymentIntent.ID == "" {
			s.logg.Warn(logCtx, "dispute event carries no payment intent; ignoring")
			return nil
		}
		return s.escrow.MarkDisputed(logCtx, dispute.PaymentIntent.ID)
	default:
		s.logg.Info(logCtx, "ignoring unhandled event type")
		return nil
	}
}

// handleAuthorizationConfirmed materializes the escrow order. No checkout
// session exists in escrow mode, so the order row is built here from the hold
// metadata minted at checkout; the order id in that metadata is stable across
// redeliveries and keys the upsert.
func (s *service) handleAuthorizationConfirmed(ctx context.Context, intent *stripe.PaymentIntent) error {
	meta, err := checkout.ParseAuthorizationMetadata(intent.Metadata)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing authorization metadata")
	}

	name := "Listing"
	listing, err := s.catalog.FindByID(ctx, meta.ListingID)
	switch {
	case err == nil && listing.Title != "":
		name = listing.Title
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("loading listing name: %w", err)
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)

		existing, err := repo.FindByID(ctx, meta.OrderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			s.logg.Info(s.logg.WithOrderID(ctx, existing.ID.String()), "order already materialized for hold")
			return nil
		}

		order := buildEscrowOrder(intent.ID, meta, name)
		if err := repo.Create(ctx, order); err != nil {
			return err
		}

		if err := s.reminders.ScheduleForOrder(ctx, tx, order, now); err != nil {
			return err
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFinalized,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: map[string]any{
				"orderId":           order.ID,
				"buyerId":           order.BuyerID,
				"mode":              order.Mode,
				"subtotalCents":     order.SubtotalCents,
				"platformFeeCents":  order.PlatformFeeCents,
				"totalCents":        order.TotalCents,
				"fulfillmentMethod": order.FulfillmentMethod,
			},
			Version: 1,
		})
	})
	if err != nil {
		return err
	}

	return s.escrow.Authorize(ctx, intent.ID, now)
}

// handleIntentCanceled reverses the hold and cancels the order it produced.
// A cancellation can land before authorization, in which case no order row
// exists yet and there is nothing to cancel.
func (s *service) handleIntentCanceled(ctx context.Context, intent *stripe.PaymentIntent) error {
	if err := s.escrow.MarkRefunded(ctx, intent.ID); err != nil {
		return err
	}

	raw := intent.Metadata[checkout.AuthMetadataKeyOrderID]
	if raw == "" {
		return nil
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		s.logg.Warn(ctx, "canceled intent carries a malformed order id")
		return nil
	}
	rows, err := s.orders.UpdateStatus(ctx, orderID, enums.OrderStatusCanceled)
	if err != nil {
		return err
	}
	if rows == 0 {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "no order row for canceled hold")
	}
	return nil
}

func decodePaymentIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding payment intent payload")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent payload has no id")
	}
	return &intent, nil
}

// handleSessionCompleted finalizes the order described by the session
// metadata. The unique constraint on checkout_session_id plus the pre-check
// make duplicate deliveries converge on a single order.
func (s *service) handleSessionCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no id")
	}
	meta, err := checkout.ParseSessionMetadata(session.Metadata)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing session metadata")
	}

	names, err := s.listingNames(ctx, meta.Lines)
	if err != nil {
		return err
	}

	now := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)

		existing, err := repo.FindByCheckoutSessionID(ctx, session.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			s.logg.Info(s.logg.WithOrderID(ctx, existing.ID.String()), "order already finalized for session")
			return nil
		}

		order := s.buildOrder(session.ID, meta, names)
		if err := repo.Create(ctx, order); err != nil {
			return err
		}

		if err := s.reminders.ScheduleForOrder(ctx, tx, order, now); err != nil {
			return err
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFinalized,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: map[string]any{
				"orderId":           order.ID,
				"buyerId":           order.BuyerID,
				"mode":              order.Mode,
				"subtotalCents":     order.SubtotalCents,
				"platformFeeCents":  order.PlatformFeeCents,
				"totalCents":        order.TotalCents,
				"fulfillmentMethod": order.FulfillmentMethod,
			},
			Version: 1,
		})
	})
}

func (s *service) buildOrder(sessionID string, meta *checkout.SessionMetadata, names map[uuid.UUID]string) *models.Order {
	orderID := uuid.New()
	items := make([]models.OrderLineItem, len(meta.Lines))
	for i, line := range meta.Lines {
		name, ok := names[line.ListingID]
		if !ok || name == "" {
			name = "Listing"
		}
		items[i] = models.OrderLineItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ListingID:      line.ListingID,
			SellerID:       line.SellerID,
			Name:           name,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			TotalCents:     line.UnitPriceCents * line.Quantity,
		}
	}

	subtotal := meta.SubtotalCents()
	total := subtotal
	if meta.Mode == enums.CheckoutModeStandard {
		// Standard mode adds the fee on top; escrow deducts it from payouts.
		total = subtotal + meta.PlatformFeeCents
	}

	order := &models.Order{
		ID:                orderID,
		CheckoutSessionID: sessionID,
		BuyerID:           meta.BuyerID,
		Mode:              meta.Mode,
		Status:            enums.OrderStatusPaid,
		Currency:          enums.CurrencyUSD,
		FulfillmentMethod: meta.FulfillmentMethod,
		SubtotalCents:     subtotal,
		PlatformFeeCents:  meta.PlatformFeeCents,
		TotalCents:        total,
		Items:             items,
	}
	if meta.Notes != "" {
		order.Notes = &meta.Notes
	}
	if meta.ShippingAddress != "" {
		order.ShippingAddress = &meta.ShippingAddress
	}
	return order
}

// buildEscrowOrder reconstructs the single-seller order from the hold
// metadata. The platform fee is deducted from the seller payout in escrow
// mode, so the buyer total equals the subtotal.
func buildEscrowOrder(paymentIntentRef string, meta *checkout.AuthorizationMetadata, listingName string) *models.Order {
	subtotal := meta.SubtotalCents()
	return &models.Order{
		ID:                meta.OrderID,
		CheckoutSessionID: paymentIntentRef,
		BuyerID:           meta.BuyerID,
		Mode:              enums.CheckoutModeEscrow,
		Status:            enums.OrderStatusPaid,
		Currency:          enums.CurrencyUSD,
		FulfillmentMethod: meta.FulfillmentMethod,
		SubtotalCents:     subtotal,
		PlatformFeeCents:  meta.PlatformFeeCents,
		TotalCents:        subtotal,
		Items: []models.OrderLineItem{{
			ID:             uuid.New(),
			OrderID:        meta.OrderID,
			ListingID:      meta.ListingID,
			SellerID:       meta.SellerID,
			Name:           listingName,
			UnitPriceCents: meta.UnitPriceCents,
			Quantity:       meta.Quantity,
			TotalCents:     subtotal,
		}},
	}
}

func (s *service) listingNames(ctx context.Context, lines []checkout.MetadataLine) (map[uuid.UUID]string, error) {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ListingID]; ok {
			continue
		}
		seen[line.ListingID] = struct{}{}
		ids = append(ids, line.ListingID)
	}

	listings, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading listing names: %w", err)
	}
	names := make(map[uuid.UUID]string, len(listings))
	for _, listing := range listings {
		names[listing.ID] = listing.Title
	}
	return names, nil
}
