package receipts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/pagination"
)

// ListFilter narrows receipt listings.
type ListFilter struct {
	PeriodCode   string
	ItemID       *uuid.UUID
	IncludeLines bool
	IncludeVoid  bool
	Page         pagination.Params
}

// Repository persists receipts and their lots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, receipt *models.Receipt) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	LinesForUpdate(ctx context.Context, receiptID uuid.UUID) ([]models.ReceiptLine, error)
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor) ([]models.Receipt, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a receipt repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, receipt *models.Receipt) error {
	return r.db.WithContext(ctx).Omit("Period").Create(receipt).Error
}

// FindByID loads a receipt with its period and lots.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).
		Preload("Period").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("receipt_lines.id ASC") }).
		First(&receipt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&receipt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) LinesForUpdate(ctx context.Context, receiptID uuid.UUID) ([]models.ReceiptLine, error) {
	var lines []models.ReceiptLine
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("receipt_id = ?", receiptID).
		Order("id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// List returns receipts newest first, fetching one extra row past the page
// limit so callers can detect a following page.
func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor) ([]models.Receipt, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Preload("Period").
		Order("receipts.id DESC").
		Limit(pagination.LimitWithBuffer(filter.Page.Limit))

	if filter.PeriodCode != "" {
		query = query.Where("receipts.period_id IN (?)",
			r.db.Model(&models.Period{}).Select("id").Where("code = ?", filter.PeriodCode))
	}
	if filter.ItemID != nil {
		query = query.Where("EXISTS (?)",
			r.db.Model(&models.ReceiptLine{}).
				Select("1").
				Where("receipt_lines.receipt_id = receipts.id").
				Where("receipt_lines.item_id = ?", *filter.ItemID))
	}
	if !filter.IncludeVoid {
		query = query.Where("receipts.is_void = ?", false)
	}
	if cursor != nil {
		query = query.Where("receipts.id < ?", cursor.ID)
	}
	if filter.IncludeLines {
		query = query.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("receipt_lines.id ASC") })
	}

	var receipts []models.Receipt
	if err := query.Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Receipt{}).
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
