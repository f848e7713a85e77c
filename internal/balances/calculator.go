package balances

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

// Calculator derives per-item period balances from ledger rows. Sums are
// taken in decimal after fetching rows, never by the store, so sqlite and
// Postgres agree to the last digit.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

type priorLotRow struct {
	ID           uuid.UUID
	ItemID       uuid.UUID
	Amount       decimal.Decimal
	RemainingQty decimal.Decimal
}

type drawRow struct {
	ReceiptLineID uuid.UUID
	Amount        decimal.Decimal
}

type receivedRow struct {
	ItemID   uuid.UUID
	Quantity decimal.Decimal
	Amount   decimal.Decimal
}

type allocationRow struct {
	ReceiptLineID uuid.UUID
	ItemID        uuid.UUID
	Qty           decimal.Decimal
	Amount        decimal.Decimal
	ConsYear      int
	ConsMonth     int
	LotYear       int
	LotMonth      int
}

type accumulator struct {
	qty    decimal.Decimal
	amount decimal.Decimal
}

func (a *accumulator) add(qty, amount decimal.Decimal) {
	a.qty = a.qty.Add(qty)
	a.amount = a.amount.Add(amount)
}

func (a accumulator) bucket() Bucket {
	return NewBucket(a.qty, a.amount)
}

// Compute returns balances for every active item in period, ordered by item
// name.
//
// Opening is the prior-period stock as it stood when period began: each
// earlier lot contributes its current remaining quantity plus whatever
// non-void consumptions recorded in period or later drew from it. Its value is
// the lot amount less the stored amounts of non-void allocations recorded
// before period, so closing of one period equals opening of the next to the
// cent.
func (c *Calculator) Compute(ctx context.Context, tx *gorm.DB, period models.Period) ([]ItemBalance, error) {
	db := tx.WithContext(ctx)

	var items []models.Item
	if err := db.Where("is_active = ?", true).Order("name ASC").Find(&items).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load items")
	}
	if len(items) == 0 {
		return []ItemBalance{}, nil
	}

	var priorLots []priorLotRow
	if err := db.Table("receipt_lines AS rl").
		Select("rl.id, rl.item_id, rl.amount, rl.remaining_qty").
		Joins("JOIN receipts r ON r.id = rl.receipt_id").
		Joins("JOIN periods p ON p.id = r.period_id").
		Where("r.is_void = ?", false).
		Where("(p.year < ? OR (p.year = ? AND p.month < ?))", period.Year, period.Year, period.Month).
		Scan(&priorLots).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load prior lots")
	}

	var earlierDraws []drawRow
	if err := db.Table("consumption_allocations AS ca").
		Select("ca.receipt_line_id, ca.amount").
		Joins("JOIN consumption_lines cl ON cl.id = ca.consumption_line_id").
		Joins("JOIN consumptions c ON c.id = cl.consumption_id").
		Joins("JOIN periods cp ON cp.id = c.period_id").
		Where("c.is_void = ?", false).
		Where("(cp.year < ? OR (cp.year = ? AND cp.month < ?))", period.Year, period.Year, period.Month).
		Scan(&earlierDraws).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load earlier allocations")
	}

	var received []receivedRow
	if err := db.Table("receipt_lines AS rl").
		Select("rl.item_id, rl.quantity, rl.amount").
		Joins("JOIN receipts r ON r.id = rl.receipt_id").
		Where("r.is_void = ?", false).
		Where("r.period_id = ?", period.ID).
		Scan(&received).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load received lines")
	}

	var allocations []allocationRow
	if err := db.Table("consumption_allocations AS ca").
		Select("ca.receipt_line_id, rl.item_id, ca.qty, ca.amount, " +
			"cp.year AS cons_year, cp.month AS cons_month, lp.year AS lot_year, lp.month AS lot_month").
		Joins("JOIN consumption_lines cl ON cl.id = ca.consumption_line_id").
		Joins("JOIN consumptions c ON c.id = cl.consumption_id").
		Joins("JOIN periods cp ON cp.id = c.period_id").
		Joins("JOIN receipt_lines rl ON rl.id = ca.receipt_line_id").
		Joins("JOIN receipts r ON r.id = rl.receipt_id").
		Joins("JOIN periods lp ON lp.id = r.period_id").
		Where("c.is_void = ?", false).
		Where("r.is_void = ?", false).
		Where("(cp.year > ? OR (cp.year = ? AND cp.month >= ?))", period.Year, period.Year, period.Month).
		Where("(lp.year < ? OR (lp.year = ? AND lp.month <= ?))", period.Year, period.Year, period.Month).
		Scan(&allocations).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load allocations")
	}

	addBack := make(map[uuid.UUID]decimal.Decimal)
	fromOpening := make(map[uuid.UUID]*accumulator)
	fromCurrent := make(map[uuid.UUID]*accumulator)
	for _, row := range allocations {
		lotInPeriod := row.LotYear == period.Year && row.LotMonth == period.Month
		consInPeriod := row.ConsYear == period.Year && row.ConsMonth == period.Month
		if !lotInPeriod {
			addBack[row.ReceiptLineID] = addBack[row.ReceiptLineID].Add(row.Qty)
		}
		if !consInPeriod {
			continue
		}
		target := fromCurrent
		if !lotInPeriod {
			target = fromOpening
		}
		acc(target, row.ItemID).add(row.Qty, row.Amount)
	}

	drawnBefore := make(map[uuid.UUID]decimal.Decimal)
	for _, row := range earlierDraws {
		drawnBefore[row.ReceiptLineID] = drawnBefore[row.ReceiptLineID].Add(row.Amount)
	}

	opening := make(map[uuid.UUID]*accumulator)
	for _, lot := range priorLots {
		qty := numeric.RoundQty(lot.RemainingQty.Add(addBack[lot.ID]))
		amount := numeric.RoundAmount(lot.Amount.Sub(drawnBefore[lot.ID]))
		if qty.IsZero() && amount.IsZero() {
			continue
		}
		acc(opening, lot.ItemID).add(qty, amount)
	}

	receivedByItem := make(map[uuid.UUID]*accumulator)
	for _, row := range received {
		acc(receivedByItem, row.ItemID).add(row.Quantity, row.Amount)
	}

	result := make([]ItemBalance, 0, len(items))
	for _, item := range items {
		result = append(result, newItemBalance(
			item,
			bucketFor(opening, item.ID),
			bucketFor(receivedByItem, item.ID),
			bucketFor(fromOpening, item.ID),
			bucketFor(fromCurrent, item.ID),
		))
	}
	return result, nil
}

func acc(m map[uuid.UUID]*accumulator, id uuid.UUID) *accumulator {
	a, ok := m[id]
	if !ok {
		a = &accumulator{}
		m[id] = a
	}
	return a
}

func bucketFor(m map[uuid.UUID]*accumulator, id uuid.UUID) Bucket {
	if a, ok := m[id]; ok {
		return a.bucket()
	}
	return NewBucket(decimal.Zero, decimal.Zero)
}
