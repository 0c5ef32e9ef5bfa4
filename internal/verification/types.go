package verification

import "github.com/google/uuid"

// CartLineRequest is the client-submitted cart line. Any price the client
// sends is ignored; only the listing id and quantity matter.
type CartLineRequest struct {
	ListingID uuid.UUID `json:"listingId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// VerifiedLine is a cart line stamped with canonical catalog data.
type VerifiedLine struct {
	ListingID          uuid.UUID
	SellerID           uuid.UUID
	Title              string
	Quantity           int
	UnitPriceCents     int
	PickupEnabled      bool
	ConnectDestination *string
}

// TotalCents returns the canonical line total.
func (l VerifiedLine) TotalCents() int {
	return l.UnitPriceCents * l.Quantity
}
