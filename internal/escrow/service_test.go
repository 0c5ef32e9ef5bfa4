package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/outbox"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubRepo struct {
	records map[string]*models.EscrowRecord

	beginReleaseRows int64
	capturedRows     int64
	releasedRows     int64
}

func newStubRepo(records ...*models.EscrowRecord) *stubRepo {
	repo := &stubRepo{records: map[string]*models.EscrowRecord{}}
	for _, record := range records {
		repo.records[record.PaymentIntentRef] = record
	}
	return repo
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, record *models.EscrowRecord) error {
	record.ID = uuid.New()
	s.records[record.PaymentIntentRef] = record
	return nil
}

func (s *stubRepo) FindByPaymentIntentRef(ctx context.Context, ref string) (*models.EscrowRecord, error) {
	if record, ok := s.records[ref]; ok {
		return record, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error) {
	var due []models.EscrowRecord
	for _, record := range s.records {
		if record.ReleaseDueAt != nil && !record.ReleaseDueAt.After(now) &&
			(record.State == enums.EscrowStateAuthorized || record.State == enums.EscrowStateReleasing) {
			due = append(due, *record)
		}
	}
	return due, nil
}

func (s *stubRepo) Authorize(ctx context.Context, ref string, authorizedAt, releaseDueAt time.Time) (int64, error) {
	record, ok := s.records[ref]
	if !ok || record.State != enums.EscrowStateInitiated {
		return 0, nil
	}
	record.State = enums.EscrowStateAuthorized
	record.AuthorizedAt = &authorizedAt
	record.ReleaseDueAt = &releaseDueAt
	return 1, nil
}

func (s *stubRepo) BeginRelease(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	return s.beginReleaseRows, nil
}

func (s *stubRepo) MarkCaptured(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.capturedRows, nil
}

func (s *stubRepo) MarkReleased(ctx context.Context, id uuid.UUID, transferRef *string, releasedAt time.Time) (int64, error) {
	return s.releasedRows, nil
}

func (s *stubRepo) MarkRefunded(ctx context.Context, ref string) (int64, error) {
	record, ok := s.records[ref]
	if !ok || (record.State != enums.EscrowStateInitiated && record.State != enums.EscrowStateAuthorized) {
		return 0, nil
	}
	record.State = enums.EscrowStateRefunded
	return 1, nil
}

func (s *stubRepo) MarkDisputed(ctx context.Context, ref string) (int64, error) {
	record, ok := s.records[ref]
	if !ok || record.State.IsTerminal() {
		return 0, nil
	}
	record.State = enums.EscrowStateDisputed
	return 1, nil
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Tx:         stubTxRunner{},
		Repo:       repo,
		Outbox:     &stubOutbox{},
		Logger:     logger.New(logger.Options{Level: zerolog.ErrorLevel}),
		HoldPeriod: 168 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestInitiateRejectsUnbalancedAmounts(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, newStubRepo())
	_, err := svc.Initiate(context.Background(), &gorm.DB{}, InitiateInput{
		OrderID:           uuid.New(),
		PaymentIntentRef:  "pi_1",
		AmountCents:       1000,
		SellerAmountCents: 900,
		PlatformFeeCents:  50,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuthorizeStampsHoldWindow(t *testing.T) {
	t.Parallel()
	record := &models.EscrowRecord{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		PaymentIntentRef: "pi_hold",
		State:            enums.EscrowStateInitiated,
	}
	repo := newStubRepo(record)
	svc := newTestService(t, repo)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := svc.Authorize(context.Background(), "pi_hold", at); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if record.State != enums.EscrowStateAuthorized {
		t.Fatalf("expected authorized, got %s", record.State)
	}
	if record.ReleaseDueAt == nil || !record.ReleaseDueAt.Equal(at.Add(168*time.Hour)) {
		t.Fatalf("release due not stamped with hold period: %v", record.ReleaseDueAt)
	}
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	t.Parallel()
	record := &models.EscrowRecord{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		PaymentIntentRef: "pi_dup",
		State:            enums.EscrowStateInitiated,
	}
	svc := newTestService(t, newStubRepo(record))

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := svc.Authorize(context.Background(), "pi_dup", first); err != nil {
		t.Fatalf("first Authorize: %v", err)
	}
	// A duplicate delivery hours later must not move the release clock.
	if err := svc.Authorize(context.Background(), "pi_dup", first.Add(5*time.Hour)); err != nil {
		t.Fatalf("second Authorize: %v", err)
	}
	if !record.ReleaseDueAt.Equal(first.Add(168 * time.Hour)) {
		t.Fatalf("duplicate authorize moved the release clock: %v", record.ReleaseDueAt)
	}
}

func TestBeginReleaseConflictWhenNotEligible(t *testing.T) {
	t.Parallel()
	repo := newStubRepo()
	repo.beginReleaseRows = 0
	svc := newTestService(t, repo)

	err := svc.BeginRelease(context.Background(), uuid.New(), time.Now())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRefundBeforeReleaseShortCircuits(t *testing.T) {
	t.Parallel()
	record := &models.EscrowRecord{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		PaymentIntentRef: "pi_refund",
		State:            enums.EscrowStateAuthorized,
	}
	svc := newTestService(t, newStubRepo(record))

	if err := svc.MarkRefunded(context.Background(), "pi_refund"); err != nil {
		t.Fatalf("MarkRefunded: %v", err)
	}
	if record.State != enums.EscrowStateRefunded {
		t.Fatalf("expected refunded, got %s", record.State)
	}
}

func TestRefundAfterSettlementIsNoOp(t *testing.T) {
	t.Parallel()
	record := &models.EscrowRecord{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		PaymentIntentRef: "pi_settled",
		State:            enums.EscrowStateReleased,
	}
	svc := newTestService(t, newStubRepo(record))

	if err := svc.MarkRefunded(context.Background(), "pi_settled"); err != nil {
		t.Fatalf("MarkRefunded: %v", err)
	}
	if record.State != enums.EscrowStateReleased {
		t.Fatalf("released record must stay released, got %s", record.State)
	}
}
