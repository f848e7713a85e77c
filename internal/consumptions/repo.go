package consumptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/pagination"
)

// ListFilter narrows consumption listings.
type ListFilter struct {
	PeriodCode   string
	ItemID       *uuid.UUID
	IncludeLines bool
	IncludeVoid  bool
	Page         pagination.Params
}

// Repository persists consumptions, their lines and allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, consumption *models.Consumption) error
	CreateLine(ctx context.Context, line *models.ConsumptionLine) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Consumption, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Consumption, error)
	Allocations(ctx context.Context, consumptionID uuid.UUID) ([]models.ConsumptionAllocation, error)
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor) ([]models.Consumption, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a consumption repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the consumption with its lines and their allocations.
func (r *repository) Create(ctx context.Context, consumption *models.Consumption) error {
	return r.db.WithContext(ctx).Omit("Period").Create(consumption).Error
}

// CreateLine inserts one line of an existing consumption with its allocations.
func (r *repository) CreateLine(ctx context.Context, line *models.ConsumptionLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Consumption, error) {
	var consumption models.Consumption
	err := r.db.WithContext(ctx).
		Preload("Period").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("consumption_lines.id ASC") }).
		Preload("Lines.Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("consumption_allocations.id ASC") }).
		First(&consumption, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &consumption, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Consumption, error) {
	var consumption models.Consumption
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&consumption, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &consumption, nil
}

// Allocations returns every allocation recorded under the consumption's lines.
func (r *repository) Allocations(ctx context.Context, consumptionID uuid.UUID) ([]models.ConsumptionAllocation, error) {
	var allocations []models.ConsumptionAllocation
	err := r.db.WithContext(ctx).
		Model(&models.ConsumptionAllocation{}).
		Select("consumption_allocations.*").
		Joins("JOIN consumption_lines ON consumption_lines.id = consumption_allocations.consumption_line_id").
		Where("consumption_lines.consumption_id = ?", consumptionID).
		Order("consumption_allocations.id ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

// List returns consumptions newest first, fetching one extra row past the
// page limit so callers can detect a following page.
func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor) ([]models.Consumption, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Consumption{}).
		Preload("Period").
		Order("consumptions.id DESC").
		Limit(pagination.LimitWithBuffer(filter.Page.Limit))

	if filter.PeriodCode != "" {
		query = query.Where("consumptions.period_id IN (?)",
			r.db.Model(&models.Period{}).Select("id").Where("code = ?", filter.PeriodCode))
	}
	if filter.ItemID != nil {
		query = query.Where("EXISTS (?)",
			r.db.Model(&models.ConsumptionLine{}).
				Select("1").
				Where("consumption_lines.consumption_id = consumptions.id").
				Where("consumption_lines.item_id = ?", *filter.ItemID))
	}
	if !filter.IncludeVoid {
		query = query.Where("consumptions.is_void = ?", false)
	}
	if cursor != nil {
		query = query.Where("consumptions.id < ?", cursor.ID)
	}
	if filter.IncludeLines {
		query = query.
			Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("consumption_lines.id ASC") }).
			Preload("Lines.Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("consumption_allocations.id ASC") })
	}

	var consumptions []models.Consumption
	if err := query.Find(&consumptions).Error; err != nil {
		return nil, err
	}
	return consumptions, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Consumption{}).
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
