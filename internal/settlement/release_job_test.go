package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/internal/escrow"
	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
	"github.com/stallside/stallside-backend/pkg/logger"
)

type stubEscrowService struct {
	due []models.EscrowRecord

	beginReleaseErr error
	began           []uuid.UUID
	captured        []uuid.UUID
	released        []uuid.UUID
	transferRefs    map[uuid.UUID]*string
}

func (s *stubEscrowService) Initiate(ctx context.Context, tx *gorm.DB, input escrow.InitiateInput) (*models.EscrowRecord, error) {
	return nil, errors.New("not used")
}

func (s *stubEscrowService) FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error) {
	return s.due, nil
}

func (s *stubEscrowService) Authorize(ctx context.Context, ref string, at time.Time) error { return nil }

func (s *stubEscrowService) BeginRelease(ctx context.Context, id uuid.UUID, now time.Time) error {
	if s.beginReleaseErr != nil {
		return s.beginReleaseErr
	}
	s.began = append(s.began, id)
	return nil
}

func (s *stubEscrowService) MarkCaptured(ctx context.Context, id uuid.UUID) error {
	s.captured = append(s.captured, id)
	return nil
}

func (s *stubEscrowService) MarkReleased(ctx context.Context, id uuid.UUID, transferRef *string, at time.Time) error {
	s.released = append(s.released, id)
	if s.transferRefs == nil {
		s.transferRefs = map[uuid.UUID]*string{}
	}
	s.transferRefs[id] = transferRef
	return nil
}

func (s *stubEscrowService) MarkRefunded(ctx context.Context, ref string) error { return nil }
func (s *stubEscrowService) MarkDisputed(ctx context.Context, ref string) error { return nil }

type stubProcessor struct {
	captureErr   error
	transferErr  error
	captureCalls int
	transfers    []TransferInput
}

func (s *stubProcessor) CapturePaymentIntent(ctx context.Context, ref, idempotencyKey string) (*stripe.PaymentIntent, error) {
	s.captureCalls++
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	return &stripe.PaymentIntent{ID: ref}, nil
}

func (s *stubProcessor) CreateTransfer(ctx context.Context, input TransferInput) (*stripe.Transfer, error) {
	if s.transferErr != nil {
		return nil, s.transferErr
	}
	s.transfers = append(s.transfers, input)
	return &stripe.Transfer{ID: "tr_" + input.IdempotencyKey}, nil
}

func dueRecord(state enums.EscrowState, destination *string) models.EscrowRecord {
	due := time.Now().Add(-time.Hour)
	return models.EscrowRecord{
		ID:                 uuid.New(),
		OrderID:            uuid.New(),
		PaymentIntentRef:   "pi_" + uuid.NewString(),
		State:              state,
		SellerID:           uuid.New(),
		BuyerID:            uuid.New(),
		ConnectDestination: destination,
		AmountCents:        10000,
		SellerAmountCents:  9500,
		PlatformFeeCents:   500,
		ReleaseDueAt:       &due,
	}
}

func newReleaseJob(t *testing.T, esc *stubEscrowService, processor *stubProcessor) *ReleaseJob {
	t.Helper()
	job, err := NewReleaseJob(ReleaseJobParams{
		Escrow:    esc,
		Processor: processor,
		Logger:    logger.New(logger.Options{Level: zerolog.ErrorLevel}),
		BatchSize: 10,
	})
	if err != nil {
		t.Fatalf("NewReleaseJob: %v", err)
	}
	return job
}

func TestReleaseJobSettlesRoutedHold(t *testing.T) {
	t.Parallel()
	destination := "acct_seller"
	record := dueRecord(enums.EscrowStateAuthorized, &destination)
	esc := &stubEscrowService{due: []models.EscrowRecord{record}}
	processor := &stubProcessor{}
	job := newReleaseJob(t, esc, processor)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(esc.began) != 1 {
		t.Fatal("expected release marker before the external call")
	}
	if processor.captureCalls != 1 {
		t.Fatalf("expected one capture, got %d", processor.captureCalls)
	}
	if len(esc.released) != 1 {
		t.Fatal("routed hold should be released after capture")
	}
	if len(processor.transfers) != 0 {
		t.Fatal("no separate transfer when routing was attached at authorization")
	}
}

func TestReleaseJobCapturesUnroutedHoldPendingPayout(t *testing.T) {
	t.Parallel()
	record := dueRecord(enums.EscrowStateAuthorized, nil)
	esc := &stubEscrowService{due: []models.EscrowRecord{record}}
	processor := &stubProcessor{}
	job := newReleaseJob(t, esc, processor)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(esc.captured) != 1 {
		t.Fatal("unrouted hold should park in captured pending a destination")
	}
	if len(esc.released) != 0 {
		t.Fatal("unrouted hold must not be marked released")
	}
}

func TestReleaseJobTransfersBackfilledDestination(t *testing.T) {
	t.Parallel()
	destination := "acct_late_onboard"
	record := dueRecord(enums.EscrowStateCaptured, &destination)
	esc := &stubEscrowService{due: []models.EscrowRecord{record}}
	processor := &stubProcessor{}
	job := newReleaseJob(t, esc, processor)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if processor.captureCalls != 0 {
		t.Fatal("captured record must not be captured again")
	}
	if len(processor.transfers) != 1 {
		t.Fatalf("expected one transfer, got %d", len(processor.transfers))
	}
	if processor.transfers[0].AmountCents != record.SellerAmountCents {
		t.Fatalf("transfer must move the seller amount, got %d", processor.transfers[0].AmountCents)
	}
	if len(esc.released) != 1 || esc.transferRefs[record.ID] == nil {
		t.Fatal("record should be released with the transfer ref recorded")
	}
}

func TestReleaseJobLeavesRecordOnCaptureFailure(t *testing.T) {
	t.Parallel()
	record := dueRecord(enums.EscrowStateAuthorized, nil)
	esc := &stubEscrowService{due: []models.EscrowRecord{record}}
	processor := &stubProcessor{captureErr: errors.New("processor timeout")}
	job := newReleaseJob(t, esc, processor)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected run error when capture keeps failing")
	}
	if len(esc.released) != 0 || len(esc.captured) != 0 {
		t.Fatal("failed capture must leave the record for the next cycle")
	}
}

func TestReleaseJobSkipsLostRace(t *testing.T) {
	t.Parallel()
	record := dueRecord(enums.EscrowStateAuthorized, nil)
	esc := &stubEscrowService{
		due:             []models.EscrowRecord{record},
		beginReleaseErr: pkgerrors.New(pkgerrors.CodeStateConflict, "escrow record not eligible for release"),
	}
	processor := &stubProcessor{}
	job := newReleaseJob(t, esc, processor)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("losing the CAS race must not fail the run: %v", err)
	}
	if processor.captureCalls != 0 {
		t.Fatal("no capture after losing the CAS race")
	}
}
