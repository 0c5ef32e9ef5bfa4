package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// InitiateInput carries the amounts for a new escrow hold.
type InitiateInput struct {
	OrderID            uuid.UUID
	PaymentIntentRef   string
	SellerID           uuid.UUID
	BuyerID            uuid.UUID
	ConnectDestination *string
	AmountCents        int
	SellerAmountCents  int
	PlatformFeeCents   int
}

// Service is the escrow ledger. It owns every state transition; callers
// never mutate records directly.
type Service interface {
	Initiate(ctx context.Context, tx *gorm.DB, input InitiateInput) (*models.EscrowRecord, error)
	Authorize(ctx context.Context, paymentIntentRef string, at time.Time) error
	BeginRelease(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkCaptured(ctx context.Context, id uuid.UUID) error
	MarkReleased(ctx context.Context, id uuid.UUID, transferRef *string, at time.Time) error
	MarkRefunded(ctx context.Context, paymentIntentRef string) error
	MarkDisputed(ctx context.Context, paymentIntentRef string) error
	FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error)
}

// ServiceParams configure the escrow service.
type ServiceParams struct {
	Tx         txRunner
	Repo       Repository
	Outbox     outboxPublisher
	Logger     *logger.Logger
	HoldPeriod time.Duration
}

type service struct {
	tx         txRunner
	repo       Repository
	outbox     outboxPublisher
	logg       *logger.Logger
	holdPeriod time.Duration
}

// NewService builds the escrow ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.HoldPeriod <= 0 {
		return nil, fmt.Errorf("hold period must be positive")
	}
	return &service{
		tx:         params.Tx,
		repo:       params.Repo,
		outbox:     params.Outbox,
		logg:       params.Logger,
		holdPeriod: params.HoldPeriod,
	}, nil
}

func (s *service) Initiate(ctx context.Context, tx *gorm.DB, input InitiateInput) (*models.EscrowRecord, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.PaymentIntentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent ref required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.SellerAmountCents+input.PlatformFeeCents != input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller amount and fee must sum to the hold amount")
	}

	record := &models.EscrowRecord{
		OrderID:            input.OrderID,
		PaymentIntentRef:   input.PaymentIntentRef,
		State:              enums.EscrowStateInitiated,
		SellerID:           input.SellerID,
		BuyerID:            input.BuyerID,
		ConnectDestination: input.ConnectDestination,
		AmountCents:        input.AmountCents,
		SellerAmountCents:  input.SellerAmountCents,
		PlatformFeeCents:   input.PlatformFeeCents,
	}
	if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Authorize moves the hold to authorized and stamps the release clock. The
// transition is a no-op when the record already left initiated, so duplicate
// webhook deliveries cannot rewind state.
func (s *service) Authorize(ctx context.Context, paymentIntentRef string, at time.Time) error {
	dueAt := at.Add(s.holdPeriod)
	var affected int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.Authorize(ctx, paymentIntentRef, at, dueAt)
		if err != nil {
			return err
		}
		affected = rows
		if rows == 0 {
			return nil
		}
		record, err := repo.FindByPaymentIntentRef(ctx, paymentIntentRef)
		if err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowAuthorized,
			AggregateType: enums.AggregateEscrowRecord,
			AggregateID:   record.ID,
			Data: map[string]any{
				"escrowRecordId": record.ID,
				"orderId":        record.OrderID,
				"amountCents":    record.AmountCents,
				"releaseDueAt":   dueAt,
			},
			Version: 1,
		})
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		s.logg.Warn(ctx, fmt.Sprintf("escrow authorize skipped; %s not in initiated state", paymentIntentRef))
	}
	return nil
}

func (s *service) BeginRelease(ctx context.Context, id uuid.UUID, now time.Time) error {
	rows, err := s.repo.BeginRelease(ctx, id, now)
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow record not eligible for release").
			WithDetails(map[string]any{"escrowRecordId": id})
	}
	return nil
}

func (s *service) MarkCaptured(ctx context.Context, id uuid.UUID) error {
	rows, err := s.repo.MarkCaptured(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow record not in releasing state").
			WithDetails(map[string]any{"escrowRecordId": id})
	}
	return nil
}

func (s *service) MarkReleased(ctx context.Context, id uuid.UUID, transferRef *string, at time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.MarkReleased(ctx, id, transferRef, at)
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow record not releasable").
				WithDetails(map[string]any{"escrowRecordId": id})
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleased,
			AggregateType: enums.AggregateEscrowRecord,
			AggregateID:   id,
			Data: map[string]any{
				"escrowRecordId": id,
				"releasedAt":     at,
			},
			Version: 1,
		})
	})
}

func (s *service) MarkRefunded(ctx context.Context, paymentIntentRef string) error {
	return s.reverse(ctx, paymentIntentRef, enums.EventEscrowRefunded)
}

func (s *service) MarkDisputed(ctx context.Context, paymentIntentRef string) error {
	return s.reverse(ctx, paymentIntentRef, enums.EventEscrowDisputed)
}

func (s *service) reverse(ctx context.Context, paymentIntentRef string, eventType enums.OutboxEventType) error {
	var affected int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var rows int64
		var err error
		if eventType == enums.EventEscrowRefunded {
			rows, err = repo.MarkRefunded(ctx, paymentIntentRef)
		} else {
			rows, err = repo.MarkDisputed(ctx, paymentIntentRef)
		}
		if err != nil {
			return err
		}
		affected = rows
		if rows == 0 {
			return nil
		}
		record, err := repo.FindByPaymentIntentRef(ctx, paymentIntentRef)
		if err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateEscrowRecord,
			AggregateID:   record.ID,
			Data: map[string]any{
				"escrowRecordId": record.ID,
				"orderId":        record.OrderID,
			},
			Version: 1,
		})
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		s.logg.Warn(ctx, fmt.Sprintf("escrow reversal skipped; %s already settled", paymentIntentRef))
	}
	return nil
}

func (s *service) FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.FindDueForRelease(ctx, now, limit)
}
