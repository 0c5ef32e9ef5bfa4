package verification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/internal/catalog"
	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
)

type stubCatalogRepo struct {
	listings map[uuid.UUID]models.Listing
	err      error
}

func (s *stubCatalogRepo) WithTx(tx *gorm.DB) catalog.Repository { return s }

func (s *stubCatalogRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if listing, ok := s.listings[id]; ok {
		return &listing, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCatalogRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Listing, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Listing, 0, len(ids))
	for _, id := range ids {
		if listing, ok := s.listings[id]; ok {
			out = append(out, listing)
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func newRepoWith(listings ...models.Listing) *stubCatalogRepo {
	repo := &stubCatalogRepo{listings: map[uuid.UUID]models.Listing{}}
	for _, listing := range listings {
		repo.listings[listing.ID] = listing
	}
	return repo
}

func activeListing(priceCents int) models.Listing {
	return models.Listing{
		ID:            uuid.New(),
		SellerID:      uuid.New(),
		Title:         "hand-thrown mug",
		Status:        enums.ListingStatusActive,
		PriceCents:    priceCents,
		PickupEnabled: true,
	}
}

func TestVerifyStampsCanonicalPrice(t *testing.T) {
	t.Parallel()
	listing := activeListing(1250)
	verifier, err := NewVerifier(newRepoWith(listing))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	lines, err := verifier.Verify(context.Background(), []CartLineRequest{
		{ListingID: listing.ID, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].UnitPriceCents != 1250 {
		t.Fatalf("expected canonical price 1250, got %d", lines[0].UnitPriceCents)
	}
	if lines[0].SellerID != listing.SellerID {
		t.Fatalf("seller id not stamped")
	}
	if lines[0].TotalCents() != 3750 {
		t.Fatalf("expected total 3750, got %d", lines[0].TotalCents())
	}
}

func TestVerifyRejectsEmptyCart(t *testing.T) {
	t.Parallel()
	verifier, _ := NewVerifier(newRepoWith())
	_, err := verifier.Verify(context.Background(), nil)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestVerifyRejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()
	listing := activeListing(100)
	verifier, _ := NewVerifier(newRepoWith(listing))
	_, err := verifier.Verify(context.Background(), []CartLineRequest{
		{ListingID: listing.ID, Quantity: 0},
	})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestVerifyMissingListing(t *testing.T) {
	t.Parallel()
	verifier, _ := NewVerifier(newRepoWith())
	missing := uuid.New()
	_, err := verifier.Verify(context.Background(), []CartLineRequest{
		{ListingID: missing, Quantity: 1},
	})
	typed := assertCode(t, err, pkgerrors.CodeProductNotFound)
	details, ok := typed.Details().(map[string]any)
	if !ok || details["listingId"] != missing {
		t.Fatalf("expected offending listing id in details, got %v", typed.Details())
	}
}

func TestVerifyInactiveListing(t *testing.T) {
	t.Parallel()
	listing := activeListing(100)
	listing.Status = enums.ListingStatusInactive
	verifier, _ := NewVerifier(newRepoWith(listing))
	_, err := verifier.Verify(context.Background(), []CartLineRequest{
		{ListingID: listing.ID, Quantity: 1},
	})
	assertCode(t, err, pkgerrors.CodeProductUnavailable)
}

func TestVerifyDuplicateLinesCountCumulatively(t *testing.T) {
	t.Parallel()
	listing := activeListing(100)
	listing.AvailableQuantity = intPtr(5)
	verifier, _ := NewVerifier(newRepoWith(listing))

	// 3 + 3 exceeds the 5 available even though each line alone fits.
	_, err := verifier.Verify(context.Background(), []CartLineRequest{
		{ListingID: listing.ID, Quantity: 3},
		{ListingID: listing.ID, Quantity: 3},
	})
	assertCode(t, err, pkgerrors.CodeInsufficientInventory)
}

func TestVerifyUntrackedInventoryAlwaysAvailable(t *testing.T) {
	t.Parallel()
	listing := activeListing(100)
	verifier, _ := NewVerifier(newRepoWith(listing))
	lines, err := verifier.Verify(context.Background(), []CartLineRequest{
		{ListingID: listing.ID, Quantity: 100000},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
}

func TestVerifyAllOrNothing(t *testing.T) {
	t.Parallel()
	good := activeListing(100)
	verifier, _ := NewVerifier(newRepoWith(good))
	_, err := verifier.Verify(context.Background(), []CartLineRequest{
		{ListingID: good.ID, Quantity: 1},
		{ListingID: uuid.New(), Quantity: 1},
	})
	if err == nil {
		t.Fatal("expected failure when any line is invalid")
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected coded error, got %T: %v", err, err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s", code, typed.Code())
	}
	return typed
}
