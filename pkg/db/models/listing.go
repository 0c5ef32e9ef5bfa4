package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/pkg/enums"
)

// Listing is the canonical pricing record for a seller's item. Price and
// availability here are authoritative; client-submitted values never are.
type Listing struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID          uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title             string              `gorm:"column:title;not null"`
	Status            enums.ListingStatus `gorm:"column:status;type:listing_status;not null;default:'active'"`
	PriceCents        int                 `gorm:"column:price_cents;not null"`
	AvailableQuantity *int                `gorm:"column:available_quantity"`
	PickupEnabled     bool                `gorm:"column:pickup_enabled;not null;default:true"`
	// ConnectDestination is the seller's onboarded payout account, when any.
	ConnectDestination *string   `gorm:"column:connect_destination"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TracksInventory reports whether available quantity is enforced; a null
// quantity means unlimited inventory.
func (l Listing) TracksInventory() bool {
	return l.AvailableQuantity != nil
}
