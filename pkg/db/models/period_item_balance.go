package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PeriodItemBalance is the balance snapshot materialized when a period closes.
type PeriodItemBalance struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PeriodID           uuid.UUID       `gorm:"column:period_id;type:uuid;not null;uniqueIndex:period_item_balances_period_item_key,priority:1"`
	ItemID             uuid.UUID       `gorm:"column:item_id;type:uuid;not null;uniqueIndex:period_item_balances_period_item_key,priority:2"`
	OpeningQty         decimal.Decimal `gorm:"column:opening_qty;type:numeric(18,3);not null;default:0"`
	OpeningAmt         decimal.Decimal `gorm:"column:opening_amt;type:numeric(18,2);not null;default:0"`
	ReceivedQty        decimal.Decimal `gorm:"column:received_qty;type:numeric(18,3);not null;default:0"`
	ReceivedAmt        decimal.Decimal `gorm:"column:received_amt;type:numeric(18,2);not null;default:0"`
	ConsFromOpeningQty decimal.Decimal `gorm:"column:cons_from_opening_qty;type:numeric(18,3);not null;default:0"`
	ConsFromOpeningAmt decimal.Decimal `gorm:"column:cons_from_opening_amt;type:numeric(18,2);not null;default:0"`
	ConsFromCurrentQty decimal.Decimal `gorm:"column:cons_from_current_qty;type:numeric(18,3);not null;default:0"`
	ConsFromCurrentAmt decimal.Decimal `gorm:"column:cons_from_current_amt;type:numeric(18,2);not null;default:0"`
	ClosingQty         decimal.Decimal `gorm:"column:closing_qty;type:numeric(18,3);not null;default:0"`
	ClosingAmt         decimal.Decimal `gorm:"column:closing_amt;type:numeric(18,2);not null;default:0"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *PeriodItemBalance) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}
