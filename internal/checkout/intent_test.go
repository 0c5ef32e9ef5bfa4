package checkout

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/internal/checkout/helpers"
	"github.com/stallside/stallside-backend/internal/verification"
	"github.com/stallside/stallside-backend/pkg/config"
	"github.com/stallside/stallside-backend/pkg/enums"
)

func testBuilder(t *testing.T) *IntentBuilder {
	t.Helper()
	builder, err := NewIntentBuilder(config.CheckoutConfig{
		SuccessURL: "https://stallside.example/checkout/success",
		CancelURL:  "https://stallside.example/checkout/cancel",
	})
	if err != nil {
		t.Fatalf("NewIntentBuilder: %v", err)
	}
	return builder
}

func verifiedLine(priceCents, qty int) verification.VerifiedLine {
	return verification.VerifiedLine{
		ListingID:      uuid.New(),
		SellerID:       uuid.New(),
		Title:          "heirloom tomatoes",
		Quantity:       qty,
		UnitPriceCents: priceCents,
		PickupEnabled:  true,
	}
}

func TestBuildSessionAddsSingleFeeLine(t *testing.T) {
	t.Parallel()
	builder := testBuilder(t)
	lines := []verification.VerifiedLine{verifiedLine(1000, 2), verifiedLine(500, 1)}
	groups := helpers.GroupBySeller(lines)
	breakdown, err := helpers.ComputeFees(groups, enums.CheckoutModeStandard, 1000)
	if err != nil {
		t.Fatalf("ComputeFees: %v", err)
	}

	request, err := builder.BuildSession(SessionInput{
		IntentID:          uuid.New(),
		BuyerID:           uuid.New(),
		FulfillmentMethod: enums.FulfillmentMethodPickup,
		Lines:             lines,
		Breakdown:         breakdown,
	})
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}

	if len(request.LineItems) != 3 {
		t.Fatalf("expected 2 product lines + 1 fee line, got %d", len(request.LineItems))
	}
	feeLines := 0
	for _, item := range request.LineItems {
		if item.Name == platformFeeItemName {
			feeLines++
			if item.UnitAmountCents != breakdown.PlatformFeeCents {
				t.Fatalf("fee line amount %d != computed fee %d", item.UnitAmountCents, breakdown.PlatformFeeCents)
			}
		}
	}
	if feeLines != 1 {
		t.Fatalf("expected exactly one fee line, got %d", feeLines)
	}
}

func TestBuildSessionSanitizesFreeText(t *testing.T) {
	t.Parallel()
	builder := testBuilder(t)
	lines := []verification.VerifiedLine{verifiedLine(1000, 1)}
	groups := helpers.GroupBySeller(lines)
	breakdown, _ := helpers.ComputeFees(groups, enums.CheckoutModeStandard, 1000)

	request, err := builder.BuildSession(SessionInput{
		IntentID:          uuid.New(),
		BuyerID:           uuid.New(),
		FulfillmentMethod: enums.FulfillmentMethodShipping,
		Notes:             "<script>alert(1)</script>leave by the gate",
		ShippingAddress:   "12 Orchard Way <b>Unit 4</b>",
		Lines:             lines,
		Breakdown:         breakdown,
	})
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}
	if strings.ContainsAny(request.Metadata[MetadataKeyNotes], "<>") {
		t.Fatalf("notes not sanitized: %q", request.Metadata[MetadataKeyNotes])
	}
	if strings.ContainsAny(request.Metadata[MetadataKeyShippingAddress], "<>") {
		t.Fatalf("address not sanitized: %q", request.Metadata[MetadataKeyShippingAddress])
	}
}

func TestSessionMetadataRoundTrip(t *testing.T) {
	t.Parallel()
	builder := testBuilder(t)
	lines := []verification.VerifiedLine{verifiedLine(1250, 3)}
	groups := helpers.GroupBySeller(lines)
	breakdown, _ := helpers.ComputeFees(groups, enums.CheckoutModeStandard, 1000)

	intentID := uuid.New()
	buyerID := uuid.New()
	request, err := builder.BuildSession(SessionInput{
		IntentID:          intentID,
		BuyerID:           buyerID,
		FulfillmentMethod: enums.FulfillmentMethodPickup,
		Lines:             lines,
		Breakdown:         breakdown,
	})
	if err != nil {
		t.Fatalf("BuildSession: %v", err)
	}

	parsed, err := ParseSessionMetadata(request.Metadata)
	if err != nil {
		t.Fatalf("ParseSessionMetadata: %v", err)
	}
	if parsed.IntentID != intentID || parsed.BuyerID != buyerID {
		t.Fatal("ids did not round-trip")
	}
	if parsed.SubtotalCents() != 3750 {
		t.Fatalf("expected subtotal 3750 from tuples, got %d", parsed.SubtotalCents())
	}
	if parsed.PlatformFeeCents != breakdown.PlatformFeeCents {
		t.Fatal("platform fee did not round-trip")
	}
	if parsed.Lines[0].UnitPriceCents != 1250 {
		t.Fatal("canonical unit price did not round-trip")
	}
}

func TestParseSessionMetadataRejectsMalformedBlob(t *testing.T) {
	t.Parallel()
	if _, err := ParseSessionMetadata(nil); err == nil {
		t.Fatal("expected error for empty metadata")
	}
	if _, err := ParseSessionMetadata(map[string]string{
		MetadataKeyIntentID:    uuid.NewString(),
		MetadataKeyBuyerID:     uuid.NewString(),
		MetadataKeyMode:        "standard",
		MetadataKeyFulfillment: "pickup",
		MetadataKeyPlatformFee: "10",
		MetadataKeyLines:       "not json",
	}); err == nil {
		t.Fatal("expected error for unparseable lines")
	}
	if _, err := ParseSessionMetadata(map[string]string{
		MetadataKeyIntentID:    uuid.NewString(),
		MetadataKeyBuyerID:     uuid.NewString(),
		MetadataKeyMode:        "standard",
		MetadataKeyFulfillment: "pickup",
		MetadataKeyPlatformFee: "10",
		MetadataKeyLines:       `[{"listingId":"` + uuid.NewString() + `","sellerId":"` + uuid.NewString() + `","quantity":0,"unitPriceCents":100}]`,
	}); err == nil {
		t.Fatal("expected error for non-positive quantity in blob")
	}
}

func TestAuthorizationMetadataRoundTrip(t *testing.T) {
	t.Parallel()
	builder := testBuilder(t)
	line := verifiedLine(10000, 2)
	orderID := uuid.New()
	buyerID := uuid.New()

	request, err := builder.BuildAuthorization(AuthorizationInput{
		OrderID:           orderID,
		BuyerID:           buyerID,
		FulfillmentMethod: enums.FulfillmentMethodPickup,
		Line:              line,
		Payout: helpers.SellerPayout{
			SellerID:      line.SellerID,
			SubtotalCents: 20000,
			FeeShareCents: 1000,
			PayoutCents:   19000,
		},
		TotalCents: 20000,
	})
	if err != nil {
		t.Fatalf("BuildAuthorization: %v", err)
	}

	parsed, err := ParseAuthorizationMetadata(request.Metadata)
	if err != nil {
		t.Fatalf("ParseAuthorizationMetadata: %v", err)
	}
	if parsed.OrderID != orderID || parsed.BuyerID != buyerID || parsed.SellerID != line.SellerID {
		t.Fatal("ids did not round-trip")
	}
	if parsed.SubtotalCents() != 20000 {
		t.Fatalf("expected subtotal 20000 from the tuple, got %d", parsed.SubtotalCents())
	}
	if parsed.PlatformFeeCents != 1000 || parsed.SellerAmountCents != 19000 {
		t.Fatal("amounts did not round-trip")
	}
	if parsed.FulfillmentMethod != enums.FulfillmentMethodPickup {
		t.Fatal("fulfillment method did not round-trip")
	}
}

func TestParseAuthorizationMetadataRejectsMalformedBlob(t *testing.T) {
	t.Parallel()
	if _, err := ParseAuthorizationMetadata(nil); err == nil {
		t.Fatal("expected error for empty metadata")
	}
	base := map[string]string{
		AuthMetadataKeyOrderID:      uuid.NewString(),
		AuthMetadataKeyListingID:    uuid.NewString(),
		AuthMetadataKeySellerID:     uuid.NewString(),
		AuthMetadataKeyBuyerID:      uuid.NewString(),
		AuthMetadataKeyPlatformFee:  "500",
		AuthMetadataKeySellerAmount: "9500",
		AuthMetadataKeyQuantity:     "0",
		AuthMetadataKeyUnitPrice:    "10000",
		AuthMetadataKeyFulfillment:  "pickup",
	}
	if _, err := ParseAuthorizationMetadata(base); err == nil {
		t.Fatal("expected error for non-positive quantity")
	}
	base[AuthMetadataKeyQuantity] = "1"
	base[AuthMetadataKeyOrderID] = "not-a-uuid"
	if _, err := ParseAuthorizationMetadata(base); err == nil {
		t.Fatal("expected error for unparseable order id")
	}
}

func TestBuildAuthorizationAttachesRoutingOnlyWithDestination(t *testing.T) {
	t.Parallel()
	builder := testBuilder(t)
	line := verifiedLine(10000, 1)

	without, err := builder.BuildAuthorization(AuthorizationInput{
		OrderID:           uuid.New(),
		BuyerID:           uuid.New(),
		FulfillmentMethod: enums.FulfillmentMethodPickup,
		Line:              line,
		Payout: helpers.SellerPayout{
			SellerID:      line.SellerID,
			SubtotalCents: 10000,
			FeeShareCents: 500,
			PayoutCents:   9500,
		},
		TotalCents: 10000,
	})
	if err != nil {
		t.Fatalf("BuildAuthorization: %v", err)
	}
	if without.ConnectDestination != nil {
		t.Fatal("expected no destination for unrouted seller")
	}

	destination := "acct_123"
	with, err := builder.BuildAuthorization(AuthorizationInput{
		OrderID:           uuid.New(),
		BuyerID:           uuid.New(),
		FulfillmentMethod: enums.FulfillmentMethodPickup,
		Line:              line,
		Payout: helpers.SellerPayout{
			SellerID:           line.SellerID,
			ConnectDestination: &destination,
			SubtotalCents:      10000,
			FeeShareCents:      500,
			PayoutCents:        9500,
		},
		TotalCents: 10000,
	})
	if err != nil {
		t.Fatalf("BuildAuthorization: %v", err)
	}
	if with.ConnectDestination == nil || *with.ConnectDestination != destination {
		t.Fatal("destination not carried through")
	}
	if with.ApplicationFeeCents != 500 {
		t.Fatalf("expected application fee 500, got %d", with.ApplicationFeeCents)
	}
}
