package balances

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
)

// SnapshotRepository persists the balances materialized at period close.
type SnapshotRepository interface {
	WithTx(tx *gorm.DB) SnapshotRepository
	Replace(ctx context.Context, periodID uuid.UUID, rows []models.PeriodItemBalance) error
	DeleteForPeriod(ctx context.Context, periodID uuid.UUID) error
	ListForPeriod(ctx context.Context, periodID uuid.UUID) ([]models.PeriodItemBalance, error)
}

type snapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) WithTx(tx *gorm.DB) SnapshotRepository {
	if tx == nil {
		return r
	}
	return &snapshotRepository{db: tx}
}

// Replace swaps every snapshot row of the period for rows. Callers run it
// inside a transaction.
func (r *snapshotRepository) Replace(ctx context.Context, periodID uuid.UUID, rows []models.PeriodItemBalance) error {
	if err := r.DeleteForPeriod(ctx, periodID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].PeriodID = periodID
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

func (r *snapshotRepository) DeleteForPeriod(ctx context.Context, periodID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("period_id = ?", periodID).
		Delete(&models.PeriodItemBalance{}).Error
}

func (r *snapshotRepository) ListForPeriod(ctx context.Context, periodID uuid.UUID) ([]models.PeriodItemBalance, error) {
	var rows []models.PeriodItemBalance
	if err := r.db.WithContext(ctx).
		Where("period_id = ?", periodID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
