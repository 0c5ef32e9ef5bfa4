package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/pkg/enums"
)

// EscrowRecord tracks a manual-capture payment from authorization through
// hold to release or reversal. Only the escrow ledger and the settlement
// worker mutate State.
type EscrowRecord struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	PaymentIntentRef string            `gorm:"column:payment_intent_ref;not null;uniqueIndex:ux_escrow_payment_intent"`
	State            enums.EscrowState `gorm:"column:state;type:escrow_state;not null;default:'initiated'"`
	SellerID         uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	BuyerID          uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	// ConnectDestination set at authorization means the processor routes the
	// transfer itself; nil means the platform holds funds pending payout.
	ConnectDestination *string    `gorm:"column:connect_destination"`
	AmountCents        int        `gorm:"column:amount_cents;not null"`
	SellerAmountCents  int        `gorm:"column:seller_amount_cents;not null"`
	PlatformFeeCents   int        `gorm:"column:platform_fee_cents;not null"`
	AuthorizedAt       *time.Time `gorm:"column:authorized_at"`
	ReleaseDueAt       *time.Time `gorm:"column:release_due_at"`
	ReleasedAt         *time.Time `gorm:"column:released_at"`
	TransferRef        *string    `gorm:"column:transfer_ref"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
