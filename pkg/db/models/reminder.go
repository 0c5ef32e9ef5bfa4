package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/pkg/enums"
)

// Reminder is a scheduled notification task consumed by the external
// notifier. The (order_id, type) pair is unique so scheduling is
// exactly-once per order.
type Reminder struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_reminders_order_type"`
	Type         enums.ReminderType `gorm:"column:type;type:reminder_type;not null;uniqueIndex:ux_reminders_order_type"`
	RecipientID  uuid.UUID          `gorm:"column:recipient_id;type:uuid;not null"`
	ScheduledFor time.Time          `gorm:"column:scheduled_for;not null"`
	Delivered    bool               `gorm:"column:delivered;not null;default:false"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}
