package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/outbox"
)

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service schedules fulfillment reminders when an order is finalized.
type Service interface {
	ScheduleForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error
}

// ServiceParams configure the reminder scheduler.
type ServiceParams struct {
	Repo             Repository
	Outbox           outboxPublisher
	Logger           *logger.Logger
	PickupReadyDelay time.Duration
}

type service struct {
	repo             Repository
	outbox           outboxPublisher
	logg             *logger.Logger
	pickupReadyDelay time.Duration
}

// NewService builds the reminder scheduler.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reminder repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PickupReadyDelay <= 0 {
		return nil, fmt.Errorf("pickup ready delay must be positive")
	}
	return &service{
		repo:             params.Repo,
		outbox:           params.Outbox,
		logg:             params.Logger,
		pickupReadyDelay: params.PickupReadyDelay,
	}, nil
}

// ScheduleForOrder writes the reminder rows for a finalized order. Pickup
// orders get exactly two: seller_prepare due immediately and pickup_ready
// after the configured buffer. Shipping orders get none. Re-running for the
// same order is a no-op thanks to the (order, type) unique constraint.
func (s *service) ScheduleForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	if order.FulfillmentMethod != enums.FulfillmentMethodPickup {
		return nil
	}

	sellerID := order.BuyerID
	if len(order.Items) > 0 {
		sellerID = order.Items[0].SellerID
	}

	pending := []models.Reminder{
		{
			OrderID:      order.ID,
			Type:         enums.ReminderTypeSellerPrepare,
			RecipientID:  sellerID,
			ScheduledFor: now,
		},
		{
			OrderID:      order.ID,
			Type:         enums.ReminderTypePickupReady,
			RecipientID:  order.BuyerID,
			ScheduledFor: now.Add(s.pickupReadyDelay),
		},
	}

	repo := s.repo.WithTx(tx)
	for i := range pending {
		reminder := &pending[i]
		reminder.ID = uuid.New()
		inserted, err := repo.CreateIfAbsent(ctx, reminder)
		if err != nil {
			return err
		}
		if !inserted {
			continue
		}
		if err := s.emitScheduled(ctx, tx, reminder); err != nil {
			return err
		}
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "pickup reminders scheduled")
	return nil
}

func (s *service) emitScheduled(ctx context.Context, tx *gorm.DB, reminder *models.Reminder) error {
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReminderScheduled,
		AggregateType: enums.AggregateReminder,
		AggregateID:   reminder.ID,
		Data: map[string]any{
			"reminderId":   reminder.ID,
			"orderId":      reminder.OrderID,
			"type":         reminder.Type,
			"recipientId":  reminder.RecipientID,
			"scheduledFor": reminder.ScheduledFor,
		},
		Version: 1,
	})
}
