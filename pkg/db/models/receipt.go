package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Receipt groups stock lots received in a period.
type Receipt struct {
	ID         uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	PeriodID   uuid.UUID     `gorm:"column:period_id;type:uuid;not null;index"`
	RefNo      *string       `gorm:"column:ref_no;size:255"`
	Notes      *string       `gorm:"column:notes;type:text"`
	IsVoid     bool          `gorm:"column:is_void;not null;default:false"`
	VoidReason *string       `gorm:"column:void_reason;type:text"`
	VoidedAt   *time.Time    `gorm:"column:voided_at"`
	VoidedBy   *uuid.UUID    `gorm:"column:voided_by;type:uuid"`
	CreatedBy  *uuid.UUID    `gorm:"column:created_by;type:uuid"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time     `gorm:"column:updated_at;autoUpdateTime"`
	Period     *Period       `gorm:"foreignKey:PeriodID"`
	Lines      []ReceiptLine `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
}

func (r *Receipt) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// ReceiptLine is a lot: a quantity of one item received at one rate.
// RemainingQty only decreases through allocation and only increases through
// reversal, staying within [0, Quantity].
type ReceiptLine struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ReceiptID    uuid.UUID       `gorm:"column:receipt_id;type:uuid;not null;index"`
	ItemID       uuid.UUID       `gorm:"column:item_id;type:uuid;not null;index:receipt_lines_item_remaining_idx,priority:1"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:numeric(18,3);not null"`
	Rate         decimal.Decimal `gorm:"column:rate;type:numeric(18,2);not null"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	RemainingQty decimal.Decimal `gorm:"column:remaining_qty;type:numeric(18,3);not null;index:receipt_lines_item_remaining_idx,priority:2"`
	LotNo        *string         `gorm:"column:lot_no;size:255"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *ReceiptLine) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}

// Untouched reports whether nothing has ever been allocated from the lot.
func (l ReceiptLine) Untouched() bool {
	return l.RemainingQty.Equal(l.Quantity)
}
