package controllers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	checkoutsvc "github.com/stallside/stallside-backend/internal/checkout"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/sanitize"
)

type stubCheckoutService struct {
	standardCalls int
	escrowCalls   int
}

func (s *stubCheckoutService) CheckoutStandard(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.SessionResult, error) {
	s.standardCalls++
	return &checkoutsvc.SessionResult{SessionID: "cs_test", SessionURL: "https://pay.example/cs_test"}, nil
}

func (s *stubCheckoutService) CheckoutEscrow(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.EscrowResult, error) {
	s.escrowCalls++
	return &checkoutsvc.EscrowResult{PaymentIntentID: "pi_test"}, nil
}

func checkoutBody(address string) string {
	return fmt.Sprintf(
		`{"buyerId":%q,"fulfillmentMethod":"shipping","shippingAddress":%q,"lines":[{"listingId":%q,"quantity":1}]}`,
		uuid.NewString(), address, uuid.NewString())
}

func postCheckout(t *testing.T, svc *stubCheckoutService, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := Checkout(svc, logger.New(logger.Options{Level: zerolog.ErrorLevel}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/", strings.NewReader(body))
	handler(rec, req)
	return rec
}

func TestCheckoutRejectsOverlongShippingAddress(t *testing.T) {
	t.Parallel()
	svc := &stubCheckoutService{}
	rec := postCheckout(t, svc, checkoutBody(strings.Repeat("a", sanitize.MaxAddressLen+1)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for address over %d chars, got %d", sanitize.MaxAddressLen, rec.Code)
	}
	if svc.standardCalls != 0 {
		t.Fatal("overlong address must be rejected before the service runs")
	}
}

func TestCheckoutAcceptsAddressAtLimit(t *testing.T) {
	t.Parallel()
	svc := &stubCheckoutService{}
	rec := postCheckout(t, svc, checkoutBody(strings.Repeat("a", sanitize.MaxAddressLen)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 at the address limit, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.standardCalls != 1 {
		t.Fatal("service should run exactly once")
	}
}
