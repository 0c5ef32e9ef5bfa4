package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  checkout_session_id TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  mode TEXT NOT NULL DEFAULT 'standard',
  status TEXT NOT NULL DEFAULT 'paid',
  currency TEXT NOT NULL DEFAULT 'USD',
  fulfillment_method TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  platform_fee_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  shipping_address TEXT,
  notes TEXT,
  canceled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderLineItems := `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  listing_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(orderLineItems).Error)
	return db
}

func newOrder(t *testing.T, sessionID string) *models.Order {
	t.Helper()

	orderID := uuid.New()
	return &models.Order{
		ID:                orderID,
		CheckoutSessionID: sessionID,
		BuyerID:           uuid.New(),
		Mode:              enums.CheckoutModeStandard,
		Status:            enums.OrderStatusPaid,
		Currency:          enums.CurrencyUSD,
		FulfillmentMethod: enums.FulfillmentMethodPickup,
		SubtotalCents:     2400,
		PlatformFeeCents:  240,
		TotalCents:        2640,
		Items: []models.OrderLineItem{
			{
				ID:             uuid.New(),
				OrderID:        orderID,
				ListingID:      uuid.New(),
				SellerID:       uuid.New(),
				Name:           "Farm Eggs",
				UnitPriceCents: 1200,
				Quantity:       2,
				TotalCents:     2400,
			},
		},
	}
}

func TestRepositoryCreateAndFindBySession(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	sessionID := "cs_" + uuid.NewString()
	order := newOrder(t, sessionID)
	require.NoError(t, repo.Create(context.Background(), order))

	found, err := repo.FindByCheckoutSessionID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Farm Eggs", found.Items[0].Name)
	assert.Equal(t, 2640, found.TotalCents)
}

func TestRepositoryCreateRejectsDuplicateSession(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	sessionID := "cs_" + uuid.NewString()
	require.NoError(t, repo.Create(context.Background(), newOrder(t, sessionID)))

	err := repo.Create(context.Background(), newOrder(t, sessionID))
	require.Error(t, err, "checkout session id must be unique across orders")
}

func TestRepositoryFindByIDMissing(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUpdateStatus(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := newOrder(t, "cs_"+uuid.NewString())
	require.NoError(t, repo.Create(context.Background(), order))

	rows, err := repo.UpdateStatus(context.Background(), order.ID, enums.OrderStatusFulfilled)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.UpdateStatus(context.Background(), uuid.New(), enums.OrderStatusFulfilled)
	require.NoError(t, err)
	assert.Zero(t, rows, "unknown order ids update nothing")
}
