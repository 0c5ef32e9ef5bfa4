package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/pkg/enums"
)

// Order is finalized by the webhook reconciler from the checkout metadata
// blob once the processor confirms payment. CheckoutSessionID holds the
// processor reference that produced the order (the session id in standard
// mode, the payment intent ref in escrow mode) and carries a unique
// constraint so duplicate webhook deliveries collapse into one row.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CheckoutSessionID string                  `gorm:"column:checkout_session_id;not null;uniqueIndex:ux_orders_checkout_session"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	Mode              enums.CheckoutMode      `gorm:"column:mode;type:checkout_mode;not null;default:'standard'"`
	Status            enums.OrderStatus       `gorm:"column:status;type:order_status;not null;default:'paid'"`
	Currency          enums.Currency          `gorm:"column:currency;type:text;not null;default:'USD'"`
	FulfillmentMethod enums.FulfillmentMethod `gorm:"column:fulfillment_method;type:fulfillment_method;not null"`
	SubtotalCents     int                     `gorm:"column:subtotal_cents;not null"`
	PlatformFeeCents  int                     `gorm:"column:platform_fee_cents;not null"`
	TotalCents        int                     `gorm:"column:total_cents;not null"`
	ShippingAddress   *string                 `gorm:"column:shipping_address"`
	Notes             *string                 `gorm:"column:notes"`
	Items             []OrderLineItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CanceledAt        *time.Time              `gorm:"column:canceled_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
