package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/outbox"
)

type reminderKey struct {
	orderID uuid.UUID
	kind    enums.ReminderType
}

type stubRepo struct {
	created map[reminderKey]models.Reminder
}

func newStubRepo() *stubRepo {
	return &stubRepo{created: map[reminderKey]models.Reminder{}}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) CreateIfAbsent(ctx context.Context, reminder *models.Reminder) (bool, error) {
	key := reminderKey{orderID: reminder.OrderID, kind: reminder.Type}
	if _, ok := s.created[key]; ok {
		return false, nil
	}
	s.created[key] = *reminder
	return true, nil
}

func (s *stubRepo) ListByOrderID(ctx context.Context, orderID string) ([]models.Reminder, error) {
	var out []models.Reminder
	for _, reminder := range s.created {
		if reminder.OrderID.String() == orderID {
			out = append(out, reminder)
		}
	}
	return out, nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func newScheduler(t *testing.T, repo Repository, ob outboxPublisher) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:             repo,
		Outbox:           ob,
		Logger:           logger.New(logger.Options{Level: zerolog.ErrorLevel}),
		PickupReadyDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func pickupOrder() *models.Order {
	sellerID := uuid.New()
	return &models.Order{
		ID:                uuid.New(),
		BuyerID:           uuid.New(),
		FulfillmentMethod: enums.FulfillmentMethodPickup,
		Items: []models.OrderLineItem{
			{ListingID: uuid.New(), SellerID: sellerID, Quantity: 1, UnitPriceCents: 100, TotalCents: 100},
		},
	}
}

func TestScheduleForPickupOrderCreatesExactlyTwo(t *testing.T) {
	t.Parallel()
	repo := newStubRepo()
	ob := &stubOutbox{}
	svc := newScheduler(t, repo, ob)
	order := pickupOrder()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	if err := svc.ScheduleForOrder(context.Background(), nil, order, now); err != nil {
		t.Fatalf("ScheduleForOrder: %v", err)
	}
	if len(repo.created) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(repo.created))
	}

	prepare := repo.created[reminderKey{order.ID, enums.ReminderTypeSellerPrepare}]
	if !prepare.ScheduledFor.Equal(now) {
		t.Fatalf("seller_prepare should be due immediately, got %v", prepare.ScheduledFor)
	}
	if prepare.RecipientID != order.Items[0].SellerID {
		t.Fatal("seller_prepare should target the seller")
	}

	ready := repo.created[reminderKey{order.ID, enums.ReminderTypePickupReady}]
	if !ready.ScheduledFor.Equal(now.Add(time.Hour)) {
		t.Fatalf("pickup_ready should be due after the buffer, got %v", ready.ScheduledFor)
	}
	if ready.RecipientID != order.BuyerID {
		t.Fatal("pickup_ready should target the buyer")
	}

	if len(ob.events) != 2 {
		t.Fatalf("expected 2 scheduled events, got %d", len(ob.events))
	}
	for _, event := range ob.events {
		if event.EventType != enums.EventReminderScheduled {
			t.Fatalf("unexpected event type %s", event.EventType)
		}
	}
}

func TestScheduleForShippingOrderCreatesNone(t *testing.T) {
	t.Parallel()
	repo := newStubRepo()
	svc := newScheduler(t, repo, &stubOutbox{})
	order := pickupOrder()
	order.FulfillmentMethod = enums.FulfillmentMethodShipping

	if err := svc.ScheduleForOrder(context.Background(), nil, order, time.Now()); err != nil {
		t.Fatalf("ScheduleForOrder: %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("shipping orders must not get reminders, got %d", len(repo.created))
	}
}

func TestScheduleTwiceIsExactlyOnce(t *testing.T) {
	t.Parallel()
	repo := newStubRepo()
	ob := &stubOutbox{}
	svc := newScheduler(t, repo, ob)
	order := pickupOrder()
	now := time.Now()

	if err := svc.ScheduleForOrder(context.Background(), nil, order, now); err != nil {
		t.Fatalf("first ScheduleForOrder: %v", err)
	}
	if err := svc.ScheduleForOrder(context.Background(), nil, order, now.Add(time.Minute)); err != nil {
		t.Fatalf("second ScheduleForOrder: %v", err)
	}
	if len(repo.created) != 2 {
		t.Fatalf("duplicate scheduling must not add rows, got %d", len(repo.created))
	}
	if len(ob.events) != 2 {
		t.Fatalf("duplicate scheduling must not re-emit events, got %d", len(ob.events))
	}
}
