package verification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/internal/catalog"
	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
)

// Verifier re-prices a submitted cart against the canonical catalog. The
// whole cart passes or the whole cart fails; partial checkouts are never
// produced.
type Verifier interface {
	Verify(ctx context.Context, lines []CartLineRequest) ([]VerifiedLine, error)
}

type verifier struct {
	catalogRepo catalog.Repository
}

// NewVerifier builds the cart verifier.
func NewVerifier(catalogRepo catalog.Repository) (Verifier, error) {
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &verifier{catalogRepo: catalogRepo}, nil
}

func (v *verifier) Verify(ctx context.Context, lines []CartLineRequest) ([]VerifiedLine, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	for _, line := range lines {
		if line.ListingID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"listingId": line.ListingID})
		}
	}

	listings, err := v.catalogRepo.FindByIDs(ctx, dedupeIDs(lines))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading listings")
	}
	byID := make(map[uuid.UUID]models.Listing, len(listings))
	for _, listing := range listings {
		byID[listing.ID] = listing
	}

	// Duplicate lines for one listing draw down availability cumulatively.
	requested := make(map[uuid.UUID]int, len(lines))
	verified := make([]VerifiedLine, 0, len(lines))
	for _, line := range lines {
		listing, ok := byID[line.ListingID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "listing not found").
				WithDetails(map[string]any{"listingId": line.ListingID})
		}
		if listing.Status != enums.ListingStatusActive {
			return nil, pkgerrors.New(pkgerrors.CodeProductUnavailable, "listing is not purchasable").
				WithDetails(map[string]any{"listingId": line.ListingID, "status": listing.Status})
		}
		requested[line.ListingID] += line.Quantity
		if listing.TracksInventory() && requested[line.ListingID] > *listing.AvailableQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "not enough inventory").
				WithDetails(map[string]any{
					"listingId": line.ListingID,
					"requested": requested[line.ListingID],
					"available": *listing.AvailableQuantity,
				})
		}
		verified = append(verified, VerifiedLine{
			ListingID:          listing.ID,
			SellerID:           listing.SellerID,
			Title:              listing.Title,
			Quantity:           line.Quantity,
			UnitPriceCents:     listing.PriceCents,
			PickupEnabled:      listing.PickupEnabled,
			ConnectDestination: listing.ConnectDestination,
		})
	}
	return verified, nil
}

func dedupeIDs(lines []CartLineRequest) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ListingID]; ok {
			continue
		}
		seen[line.ListingID] = struct{}{}
		ids = append(ids, line.ListingID)
	}
	return ids
}
