package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Consumption records stock drawn in a period.
type Consumption struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	PeriodID   uuid.UUID         `gorm:"column:period_id;type:uuid;not null;index"`
	Notes      *string           `gorm:"column:notes;type:text"`
	IsVoid     bool              `gorm:"column:is_void;not null;default:false"`
	VoidReason *string           `gorm:"column:void_reason;type:text"`
	VoidedAt   *time.Time        `gorm:"column:voided_at"`
	VoidedBy   *uuid.UUID        `gorm:"column:voided_by;type:uuid"`
	CreatedBy  *uuid.UUID        `gorm:"column:created_by;type:uuid"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	Period     *Period           `gorm:"foreignKey:PeriodID"`
	Lines      []ConsumptionLine `gorm:"foreignKey:ConsumptionID;constraint:OnDelete:CASCADE"`
}

func (c *Consumption) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// ConsumptionLine is one item drawn by a consumption. Its allocations sum to
// EnteredQty.
type ConsumptionLine struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ConsumptionID uuid.UUID               `gorm:"column:consumption_id;type:uuid;not null;index"`
	ItemID        uuid.UUID               `gorm:"column:item_id;type:uuid;not null;index"`
	EnteredQty    decimal.Decimal         `gorm:"column:entered_qty;type:numeric(18,3);not null"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	Allocations   []ConsumptionAllocation `gorm:"foreignKey:ConsumptionLineID;constraint:OnDelete:CASCADE"`
}

func (l *ConsumptionLine) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}

// ConsumptionAllocation records the quantity a line drew from one lot at the
// lot's rate.
type ConsumptionAllocation struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ConsumptionLineID uuid.UUID       `gorm:"column:consumption_line_id;type:uuid;not null;index"`
	ReceiptLineID     uuid.UUID       `gorm:"column:receipt_line_id;type:uuid;not null;index"`
	Qty               decimal.Decimal `gorm:"column:qty;type:numeric(18,3);not null"`
	Rate              decimal.Decimal `gorm:"column:rate;type:numeric(18,2);not null"`
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *ConsumptionAllocation) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
