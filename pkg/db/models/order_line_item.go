package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem is one verified listing line copied from the checkout
// metadata blob. Prices are the canonical cents at verification time.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ListingID      uuid.UUID `gorm:"column:listing_id;type:uuid;not null"`
	SellerID       uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	TotalCents     int       `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
