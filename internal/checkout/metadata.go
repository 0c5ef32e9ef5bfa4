package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/internal/verification"
	"github.com/stallside/stallside-backend/pkg/enums"
)

// Metadata keys attached to the processor checkout session. The blob under
// MetadataKeyLines is the single source of truth when the webhook finalizes
// the order; amounts echoed back by the processor are never authoritative.
const (
	MetadataKeyLines           = "lines"
	MetadataKeyFulfillment     = "fulfillmentMethod"
	MetadataKeyNotes           = "notes"
	MetadataKeyShippingAddress = "shippingAddress"
	MetadataKeyPlatformFee     = "platformFeeCents"
	MetadataKeyIntentID        = "checkoutIntentId"
	MetadataKeyBuyerID         = "buyerId"
	MetadataKeyMode            = "mode"
)

// Metadata keys attached to the manual-capture hold for escrow mode. No
// checkout session exists in this mode, so the authorization webhook rebuilds
// the order from the intent metadata alone.
const (
	AuthMetadataKeyOrderID      = "orderId"
	AuthMetadataKeyListingID    = "listingId"
	AuthMetadataKeySellerID     = "sellerId"
	AuthMetadataKeyBuyerID      = "buyerId"
	AuthMetadataKeyPlatformFee  = "platformFee"
	AuthMetadataKeySellerAmount = "sellerAmount"
	AuthMetadataKeyQuantity     = "quantity"
	AuthMetadataKeyUnitPrice    = "unitPriceCents"
	AuthMetadataKeyFulfillment  = "fulfillmentMethod"
)

// MetadataLine is one verified tuple serialized into the session metadata.
type MetadataLine struct {
	ListingID      uuid.UUID `json:"listingId"`
	SellerID       uuid.UUID `json:"sellerId"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unitPriceCents"`
}

// SessionMetadata is the parsed form of the metadata blob.
type SessionMetadata struct {
	IntentID          uuid.UUID
	BuyerID           uuid.UUID
	Mode              enums.CheckoutMode
	FulfillmentMethod enums.FulfillmentMethod
	Notes             string
	ShippingAddress   string
	PlatformFeeCents  int
	Lines             []MetadataLine
}

// SubtotalCents recomputes the canonical subtotal from the stored tuples.
func (m SessionMetadata) SubtotalCents() int {
	total := 0
	for _, line := range m.Lines {
		total += line.UnitPriceCents * line.Quantity
	}
	return total
}

// AuthorizationMetadata is the parsed form of the hold metadata.
type AuthorizationMetadata struct {
	OrderID           uuid.UUID
	ListingID         uuid.UUID
	SellerID          uuid.UUID
	BuyerID           uuid.UUID
	FulfillmentMethod enums.FulfillmentMethod
	PlatformFeeCents  int
	SellerAmountCents int
	Quantity          int
	UnitPriceCents    int
}

// SubtotalCents recomputes the canonical order subtotal from the hold tuple.
func (m AuthorizationMetadata) SubtotalCents() int {
	return m.UnitPriceCents * m.Quantity
}

// ParseAuthorizationMetadata decodes the metadata map stored on a
// manual-capture payment intent. Anything malformed fails the whole blob.
func ParseAuthorizationMetadata(metadata map[string]string) (*AuthorizationMetadata, error) {
	if len(metadata) == 0 {
		return nil, fmt.Errorf("authorization metadata is empty")
	}

	orderID, err := uuid.Parse(metadata[AuthMetadataKeyOrderID])
	if err != nil {
		return nil, fmt.Errorf("parsing order id: %w", err)
	}
	listingID, err := uuid.Parse(metadata[AuthMetadataKeyListingID])
	if err != nil {
		return nil, fmt.Errorf("parsing listing id: %w", err)
	}
	sellerID, err := uuid.Parse(metadata[AuthMetadataKeySellerID])
	if err != nil {
		return nil, fmt.Errorf("parsing seller id: %w", err)
	}
	buyerID, err := uuid.Parse(metadata[AuthMetadataKeyBuyerID])
	if err != nil {
		return nil, fmt.Errorf("parsing buyer id: %w", err)
	}
	method, err := enums.ParseFulfillmentMethod(metadata[AuthMetadataKeyFulfillment])
	if err != nil {
		return nil, err
	}
	fee, err := strconv.Atoi(metadata[AuthMetadataKeyPlatformFee])
	if err != nil || fee < 0 {
		return nil, fmt.Errorf("parsing platform fee: %q", metadata[AuthMetadataKeyPlatformFee])
	}
	sellerAmount, err := strconv.Atoi(metadata[AuthMetadataKeySellerAmount])
	if err != nil || sellerAmount < 0 {
		return nil, fmt.Errorf("parsing seller amount: %q", metadata[AuthMetadataKeySellerAmount])
	}
	quantity, err := strconv.Atoi(metadata[AuthMetadataKeyQuantity])
	if err != nil || quantity <= 0 {
		return nil, fmt.Errorf("parsing quantity: %q", metadata[AuthMetadataKeyQuantity])
	}
	unitPrice, err := strconv.Atoi(metadata[AuthMetadataKeyUnitPrice])
	if err != nil || unitPrice < 0 {
		return nil, fmt.Errorf("parsing unit price: %q", metadata[AuthMetadataKeyUnitPrice])
	}

	return &AuthorizationMetadata{
		OrderID:           orderID,
		ListingID:         listingID,
		SellerID:          sellerID,
		BuyerID:           buyerID,
		FulfillmentMethod: method,
		PlatformFeeCents:  fee,
		SellerAmountCents: sellerAmount,
		Quantity:          quantity,
		UnitPriceCents:    unitPrice,
	}, nil
}

func encodeMetadataLines(lines []verification.VerifiedLine) (string, error) {
	tuples := make([]MetadataLine, len(lines))
	for i, line := range lines {
		tuples[i] = MetadataLine{
			ListingID:      line.ListingID,
			SellerID:       line.SellerID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		}
	}
	raw, err := json.Marshal(tuples)
	if err != nil {
		return "", fmt.Errorf("encoding metadata lines: %w", err)
	}
	return string(raw), nil
}

// ParseSessionMetadata decodes the metadata map stored on a checkout
// session. Every field the reconciler depends on must parse; anything
// malformed fails the whole blob.
func ParseSessionMetadata(metadata map[string]string) (*SessionMetadata, error) {
	if len(metadata) == 0 {
		return nil, fmt.Errorf("session metadata is empty")
	}

	intentID, err := uuid.Parse(metadata[MetadataKeyIntentID])
	if err != nil {
		return nil, fmt.Errorf("parsing checkout intent id: %w", err)
	}
	buyerID, err := uuid.Parse(metadata[MetadataKeyBuyerID])
	if err != nil {
		return nil, fmt.Errorf("parsing buyer id: %w", err)
	}
	mode, err := enums.ParseCheckoutMode(metadata[MetadataKeyMode])
	if err != nil {
		return nil, err
	}
	method, err := enums.ParseFulfillmentMethod(metadata[MetadataKeyFulfillment])
	if err != nil {
		return nil, err
	}
	fee, err := strconv.Atoi(metadata[MetadataKeyPlatformFee])
	if err != nil {
		return nil, fmt.Errorf("parsing platform fee: %w", err)
	}

	var lines []MetadataLine
	if err := json.Unmarshal([]byte(metadata[MetadataKeyLines]), &lines); err != nil {
		return nil, fmt.Errorf("decoding metadata lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("metadata blob contains no lines")
	}
	for _, line := range lines {
		if line.ListingID == uuid.Nil || line.SellerID == uuid.Nil || line.Quantity <= 0 || line.UnitPriceCents < 0 {
			return nil, fmt.Errorf("metadata line is malformed")
		}
	}

	return &SessionMetadata{
		IntentID:          intentID,
		BuyerID:           buyerID,
		Mode:              mode,
		FulfillmentMethod: method,
		Notes:             metadata[MetadataKeyNotes],
		ShippingAddress:   metadata[MetadataKeyShippingAddress],
		PlatformFeeCents:  fee,
		Lines:             lines,
	}, nil
}
