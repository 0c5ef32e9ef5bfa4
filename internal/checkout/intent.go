package checkout

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/internal/checkout/helpers"
	"github.com/stallside/stallside-backend/internal/verification"
	"github.com/stallside/stallside-backend/pkg/config"
	"github.com/stallside/stallside-backend/pkg/enums"
	"github.com/stallside/stallside-backend/pkg/sanitize"
)

const platformFeeItemName = "Platform fee"

// SessionLineItem is one display line on the hosted checkout page.
type SessionLineItem struct {
	Name            string
	UnitAmountCents int
	Quantity        int
	Metadata        map[string]string
}

// SessionRequest is the processor-agnostic checkout session to create.
type SessionRequest struct {
	IntentID      uuid.UUID
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Currency      enums.Currency
	LineItems     []SessionLineItem
	Metadata      map[string]string
}

// AuthorizationRequest is a manual-capture hold to place for escrow mode.
type AuthorizationRequest struct {
	OrderID             uuid.UUID
	AmountCents         int
	Currency            enums.Currency
	ConnectDestination  *string
	ApplicationFeeCents int
	Metadata            map[string]string
	IdempotencyKey      string
}

// SessionInput carries everything the builder needs for a standard session.
type SessionInput struct {
	IntentID          uuid.UUID
	BuyerID           uuid.UUID
	CustomerEmail     string
	FulfillmentMethod enums.FulfillmentMethod
	Notes             string
	ShippingAddress   string
	Lines             []verification.VerifiedLine
	Breakdown         helpers.FeeBreakdown
}

// AuthorizationInput carries the single-seller escrow hold parameters.
type AuthorizationInput struct {
	OrderID           uuid.UUID
	BuyerID           uuid.UUID
	FulfillmentMethod enums.FulfillmentMethod
	Line              verification.VerifiedLine
	Payout            helpers.SellerPayout
	TotalCents        int
}

// IntentBuilder assembles processor requests from verified checkout data.
type IntentBuilder struct {
	successURL string
	cancelURL  string
}

// NewIntentBuilder builds the intent builder from checkout config.
func NewIntentBuilder(cfg config.CheckoutConfig) (*IntentBuilder, error) {
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, fmt.Errorf("checkout success and cancel urls required")
	}
	return &IntentBuilder{successURL: cfg.SuccessURL, cancelURL: cfg.CancelURL}, nil
}

// BuildSession produces the session request: one line item per verified
// line plus exactly one platform-fee line, and the metadata blob the
// webhook reconciler treats as the source of truth.
func (b *IntentBuilder) BuildSession(input SessionInput) (*SessionRequest, error) {
	if input.IntentID == uuid.Nil {
		return nil, fmt.Errorf("intent id required")
	}
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("no verified lines")
	}

	items := make([]SessionLineItem, 0, len(input.Lines)+1)
	for _, line := range input.Lines {
		items = append(items, SessionLineItem{
			Name:            sanitize.Name(line.Title),
			UnitAmountCents: line.UnitPriceCents,
			Quantity:        line.Quantity,
			Metadata: map[string]string{
				"listingId": line.ListingID.String(),
				"sellerId":  line.SellerID.String(),
			},
		})
	}
	if input.Breakdown.Mode == enums.CheckoutModeStandard && input.Breakdown.PlatformFeeCents > 0 {
		items = append(items, SessionLineItem{
			Name:            platformFeeItemName,
			UnitAmountCents: input.Breakdown.PlatformFeeCents,
			Quantity:        1,
		})
	}

	blob, err := encodeMetadataLines(input.Lines)
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{
		MetadataKeyLines:       blob,
		MetadataKeyFulfillment: input.FulfillmentMethod.String(),
		MetadataKeyPlatformFee: strconv.Itoa(input.Breakdown.PlatformFeeCents),
		MetadataKeyIntentID:    input.IntentID.String(),
		MetadataKeyBuyerID:     input.BuyerID.String(),
		MetadataKeyMode:        input.Breakdown.Mode.String(),
	}
	if notes := sanitize.Note(input.Notes); notes != "" {
		metadata[MetadataKeyNotes] = notes
	}
	if address := sanitize.Address(input.ShippingAddress); address != "" {
		metadata[MetadataKeyShippingAddress] = address
	}

	return &SessionRequest{
		IntentID:      input.IntentID,
		SuccessURL:    b.successURL,
		CancelURL:     b.cancelURL,
		CustomerEmail: input.CustomerEmail,
		Currency:      enums.CurrencyUSD,
		LineItems:     items,
		Metadata:      metadata,
	}, nil
}

// BuildAuthorization produces the manual-capture hold request for escrow
// mode. transfer_data routing is attached only when the seller carries a
// payout destination; its absence is a valid pending-manual-payout state.
func (b *IntentBuilder) BuildAuthorization(input AuthorizationInput) (*AuthorizationRequest, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id required")
	}
	if input.TotalCents <= 0 {
		return nil, fmt.Errorf("hold amount must be positive")
	}

	metadata := map[string]string{
		AuthMetadataKeyOrderID:      input.OrderID.String(),
		AuthMetadataKeyListingID:    input.Line.ListingID.String(),
		AuthMetadataKeySellerID:     input.Payout.SellerID.String(),
		AuthMetadataKeyBuyerID:      input.BuyerID.String(),
		AuthMetadataKeyPlatformFee:  strconv.Itoa(input.Payout.FeeShareCents),
		AuthMetadataKeySellerAmount: strconv.Itoa(input.Payout.PayoutCents),
		AuthMetadataKeyQuantity:     strconv.Itoa(input.Line.Quantity),
		AuthMetadataKeyUnitPrice:    strconv.Itoa(input.Line.UnitPriceCents),
		AuthMetadataKeyFulfillment:  input.FulfillmentMethod.String(),
	}

	return &AuthorizationRequest{
		OrderID:             input.OrderID,
		AmountCents:         input.TotalCents,
		Currency:            enums.CurrencyUSD,
		ConnectDestination:  input.Payout.ConnectDestination,
		ApplicationFeeCents: input.Payout.FeeShareCents,
		Metadata:            metadata,
		IdempotencyKey:      "authorize-" + input.OrderID.String(),
	}, nil
}
