package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/pkg/db/models"
)

// Repository reads canonical listing records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Listing, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a listing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var listings []models.Listing
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}
