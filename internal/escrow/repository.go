package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
)

// Repository manages persistence for escrow records. State transitions are
// single conditional updates so concurrent workers cannot both win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.EscrowRecord) error
	FindByPaymentIntentRef(ctx context.Context, ref string) (*models.EscrowRecord, error)
	FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error)
	Authorize(ctx context.Context, ref string, authorizedAt, releaseDueAt time.Time) (int64, error)
	BeginRelease(ctx context.Context, id uuid.UUID, now time.Time) (int64, error)
	MarkCaptured(ctx context.Context, id uuid.UUID) (int64, error)
	MarkReleased(ctx context.Context, id uuid.UUID, transferRef *string, releasedAt time.Time) (int64, error)
	MarkRefunded(ctx context.Context, ref string) (int64, error)
	MarkDisputed(ctx context.Context, ref string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.EscrowRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByPaymentIntentRef(ctx context.Context, ref string) (*models.EscrowRecord, error) {
	var record models.EscrowRecord
	if err := r.db.WithContext(ctx).
		Where("payment_intent_ref = ?", ref).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindDueForRelease returns records the settlement worker should act on:
// holds past their due date (including releasing markers left by a crashed
// worker) and captured records whose payout destination has been backfilled.
func (r *repository) FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error) {
	var records []models.EscrowRecord
	err := r.db.WithContext(ctx).
		Where("(release_due_at <= ? AND state IN ?) OR (state = ? AND connect_destination IS NOT NULL)",
			now,
			[]enums.EscrowState{enums.EscrowStateAuthorized, enums.EscrowStateReleasing},
			enums.EscrowStateCaptured,
		).
		Order("release_due_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *repository) Authorize(ctx context.Context, ref string, authorizedAt, releaseDueAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("payment_intent_ref = ? AND state = ?", ref, enums.EscrowStateInitiated).
		Updates(map[string]any{
			"state":          enums.EscrowStateAuthorized,
			"authorized_at":  authorizedAt,
			"release_due_at": releaseDueAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) BeginRelease(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("id = ? AND state = ? AND release_due_at <= ?", id, enums.EscrowStateAuthorized, now).
		Update("state", enums.EscrowStateReleasing)
	return result.RowsAffected, result.Error
}

func (r *repository) MarkCaptured(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("id = ? AND state = ?", id, enums.EscrowStateReleasing).
		Update("state", enums.EscrowStateCaptured)
	return result.RowsAffected, result.Error
}

func (r *repository) MarkReleased(ctx context.Context, id uuid.UUID, transferRef *string, releasedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("id = ? AND state IN ?", id, []enums.EscrowState{enums.EscrowStateReleasing, enums.EscrowStateCaptured}).
		Updates(map[string]any{
			"state":        enums.EscrowStateReleased,
			"transfer_ref": transferRef,
			"released_at":  releasedAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkRefunded(ctx context.Context, ref string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("payment_intent_ref = ? AND state IN ?", ref,
			[]enums.EscrowState{enums.EscrowStateInitiated, enums.EscrowStateAuthorized}).
		Update("state", enums.EscrowStateRefunded)
	return result.RowsAffected, result.Error
}

func (r *repository) MarkDisputed(ctx context.Context, ref string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("payment_intent_ref = ? AND state NOT IN ?", ref,
			[]enums.EscrowState{enums.EscrowStateReleased, enums.EscrowStateRefunded, enums.EscrowStateDisputed}).
		Update("state", enums.EscrowStateDisputed)
	return result.RowsAffected, result.Error
}
