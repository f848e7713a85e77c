package periods

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
)

// Repository persists accounting periods.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, period *models.Period) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Period, error)
	FindByCode(ctx context.Context, code string) (*models.Period, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*models.Period, error)
	FindByCodeForShare(ctx context.Context, code string) (*models.Period, error)
	FindByYearMonth(ctx context.Context, year, month int) (*models.Period, error)
	FindOpen(ctx context.Context) (*models.Period, error)
	List(ctx context.Context) ([]models.Period, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a period repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, period *models.Period) error {
	return r.db.WithContext(ctx).Create(period).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).First(&period, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).First(&period, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&period, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

// FindByCodeForShare blocks concurrent close/reopen of the period while the
// caller writes entries into it.
func (r *repository) FindByCodeForShare(ctx context.Context, code string) (*models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&period, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *repository) FindByYearMonth(ctx context.Context, year, month int) (*models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).
		First(&period, "year = ? AND month = ?", year, month).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

// FindOpen returns the single OPEN period or gorm.ErrRecordNotFound.
func (r *repository) FindOpen(ctx context.Context) (*models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.PeriodStatusOpen).
		Order("year ASC, month ASC").
		First(&period).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *repository) List(ctx context.Context) ([]models.Period, error) {
	var periods []models.Period
	if err := r.db.WithContext(ctx).
		Order("year DESC").
		Order("month DESC").
		Find(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Period{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
