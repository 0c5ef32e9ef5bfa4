package reminders

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stallside/stallside-backend/pkg/db/models"
)

// Repository manages persistence for scheduled reminders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, reminder *models.Reminder) (bool, error)
	ListByOrderID(ctx context.Context, orderID string) ([]models.Reminder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reminder repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIfAbsent inserts the reminder unless one already exists for the
// (order, type) pair. Reports whether a row was actually written.
func (r *repository) CreateIfAbsent(ctx context.Context, reminder *models.Reminder) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(reminder)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID string) ([]models.Reminder, error) {
	var rows []models.Reminder
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("scheduled_for ASC").
		Find(&rows).Error
	return rows, err
}
