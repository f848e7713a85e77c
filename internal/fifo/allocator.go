// Package fifo allocates consumption requests against receipt lots, oldest
// lot first, and reverses those allocations on void.
package fifo

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

// Allocation is one slice of a request drawn from a single lot.
type Allocation struct {
	ReceiptLineID uuid.UUID
	Qty           decimal.Decimal
	Rate          decimal.Decimal
	Amount        decimal.Decimal
}

// InsufficientStockError reports a request that the item's lots cannot cover.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %s, available %s",
		e.ItemID, e.Requested.StringFixed(numeric.QtyPlaces), e.Available.StringFixed(numeric.QtyPlaces))
}

// AsAppError converts the failure into the typed API error carrying the
// quantities callers need to retry.
func (e *InsufficientStockError) AsAppError() *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, e, "insufficient stock").
		WithDetails(map[string]any{
			"item_id":   e.ItemID.String(),
			"requested": e.Requested.StringFixed(numeric.QtyPlaces),
			"available": e.Available.StringFixed(numeric.QtyPlaces),
		})
}

type allocationRecorder interface {
	AddAllocations(n int)
	IncInsufficientStock()
}

// Allocator walks an item's lots in FIFO order inside the caller's
// transaction.
type Allocator struct {
	metrics allocationRecorder
}

func NewAllocator(metrics allocationRecorder) *Allocator {
	return &Allocator{metrics: metrics}
}

// CandidateLots returns every lot of the item with stock left on a non-void
// receipt, ordered by receipt period then lot id. Rows are locked FOR UPDATE
// where the store supports it.
func CandidateLots(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]models.ReceiptLine, error) {
	var lots []models.ReceiptLine
	err := tx.WithContext(ctx).
		Model(&models.ReceiptLine{}).
		Select("receipt_lines.*").
		Joins("JOIN receipts ON receipts.id = receipt_lines.receipt_id").
		Joins("JOIN periods ON periods.id = receipts.period_id").
		Where("receipt_lines.item_id = ?", itemID).
		Where("receipt_lines.remaining_qty > ?", 0).
		Where("receipts.is_void = ?", false).
		Order("periods.year ASC").
		Order("periods.month ASC").
		Order("receipt_lines.id ASC").
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "receipt_lines"}}).
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// Allocate draws qty of the item from its lots and decrements each touched
// lot's remaining quantity in tx, so later calls in the same transaction see
// the depletion. On InsufficientStockError nothing is written by this call;
// the caller must still roll back the transaction to discard earlier lines.
//
// A draw that empties a lot is valued at the lot amount minus every live
// allocation recorded against it, so callers persist each call's allocations
// before the next call in the same transaction.
func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, qty decimal.Decimal) ([]Allocation, error) {
	requested := numeric.RoundQty(qty)
	if !requested.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation quantity must be positive")
	}

	lots, err := CandidateLots(ctx, tx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load candidate lots")
	}

	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.RemainingQty)
	}
	available = numeric.RoundQty(available)
	if available.LessThan(requested) {
		if a.metrics != nil {
			a.metrics.IncInsufficientStock()
		}
		return nil, &InsufficientStockError{ItemID: itemID, Requested: requested, Available: available}
	}

	outstanding := requested
	allocations := make([]Allocation, 0, 1)
	for _, lot := range lots {
		if !outstanding.IsPositive() {
			break
		}
		take := numeric.RoundQty(numeric.Min(outstanding, lot.RemainingQty))
		if !take.IsPositive() {
			continue
		}
		remaining := numeric.RoundQty(lot.RemainingQty.Sub(take))
		if err := setRemaining(ctx, tx, lot.ID, remaining); err != nil {
			return nil, err
		}
		rate := numeric.RoundAmount(lot.Rate)
		amount := numeric.Amount(take, rate)
		if remaining.IsZero() {
			// The draw that empties a lot takes the lot's unallocated value.
			drawn, err := drawnAmount(ctx, tx, lot.ID)
			if err != nil {
				return nil, err
			}
			amount = numeric.RoundAmount(lot.Amount.Sub(drawn))
		}
		allocations = append(allocations, Allocation{
			ReceiptLineID: lot.ID,
			Qty:           take,
			Rate:          rate,
			Amount:        amount,
		})
		outstanding = numeric.RoundQty(outstanding.Sub(take))
	}

	if outstanding.IsPositive() {
		// Totals were checked up front; only reachable if lot rows changed underneath us.
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "allocation did not cover requested quantity")
	}

	if a.metrics != nil {
		a.metrics.AddAllocations(len(allocations))
	}
	return allocations, nil
}

// Reverse restores each allocation's quantity to its lot. Every target lot
// must exist and stay within its received quantity; otherwise an error is
// returned and the caller rolls back.
func (a *Allocator) Reverse(ctx context.Context, tx *gorm.DB, allocations []models.ConsumptionAllocation) error {
	restore := make(map[uuid.UUID]decimal.Decimal, len(allocations))
	order := make([]uuid.UUID, 0, len(allocations))
	for _, alloc := range allocations {
		if _, ok := restore[alloc.ReceiptLineID]; !ok {
			order = append(order, alloc.ReceiptLineID)
			restore[alloc.ReceiptLineID] = decimal.Zero
		}
		restore[alloc.ReceiptLineID] = restore[alloc.ReceiptLineID].Add(alloc.Qty)
	}
	if len(order) == 0 {
		return nil
	}

	var lots []models.ReceiptLine
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", order).
		Find(&lots).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load allocated lots")
	}
	byID := make(map[uuid.UUID]models.ReceiptLine, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	for _, id := range order {
		lot, ok := byID[id]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "allocated receipt line not found").
				WithDetails(map[string]any{"receipt_line_id": id.String()})
		}
		restored := numeric.RoundQty(lot.RemainingQty.Add(restore[id]))
		if restored.GreaterThan(lot.Quantity) {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "reversal would exceed received quantity").
				WithDetails(map[string]any{
					"receipt_line_id": id.String(),
					"quantity":        lot.Quantity.StringFixed(numeric.QtyPlaces),
					"restored":        restored.StringFixed(numeric.QtyPlaces),
				})
		}
		if err := setRemaining(ctx, tx, id, restored); err != nil {
			return err
		}
	}
	return nil
}

// drawnAmount sums the amounts of live allocations already recorded against
// the lot.
func drawnAmount(ctx context.Context, tx *gorm.DB, lotID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.WithContext(ctx).
		Table("consumption_allocations AS ca").
		Joins("JOIN consumption_lines cl ON cl.id = ca.consumption_line_id").
		Joins("JOIN consumptions c ON c.id = cl.consumption_id").
		Where("ca.receipt_line_id = ?", lotID).
		Where("c.is_void = ?", false).
		Pluck("ca.amount", &amounts).Error
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum lot allocations")
	}
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total, nil
}

func setRemaining(ctx context.Context, tx *gorm.DB, lotID uuid.UUID, remaining decimal.Decimal) error {
	res := tx.WithContext(ctx).
		Model(&models.ReceiptLine{}).
		Where("id = ?", lotID).
		Update("remaining_qty", remaining)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update lot remaining quantity")
	}
	if res.RowsAffected != 1 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "receipt line not found").
			WithDetails(map[string]any{"receipt_line_id": lotID.String()})
	}
	return nil
}

// VerifyLots checks that every lot satisfies 0 <= remaining_qty <= quantity.
// All violations are combined into the returned error.
func VerifyLots(ctx context.Context, tx *gorm.DB) error {
	var broken []models.ReceiptLine
	if err := tx.WithContext(ctx).
		Where("remaining_qty < ? OR remaining_qty > quantity", 0).
		Order("id ASC").
		Find(&broken).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify lots")
	}

	var err error
	for _, lot := range broken {
		err = multierr.Append(err, &LotViolation{
			ReceiptLineID: lot.ID,
			Quantity:      lot.Quantity,
			RemainingQty:  lot.RemainingQty,
		})
	}
	return err
}

// LotViolation describes a lot whose remaining quantity left its bounds.
type LotViolation struct {
	ReceiptLineID uuid.UUID
	Quantity      decimal.Decimal
	RemainingQty  decimal.Decimal
}

func (v *LotViolation) Error() string {
	return fmt.Sprintf("receipt line %s has remaining %s outside [0, %s]",
		v.ReceiptLineID, v.RemainingQty.String(), v.Quantity.String())
}

// ViolatingLines extracts the lot ids from a VerifyLots error.
func ViolatingLines(err error) []string {
	ids := []string{}
	for _, e := range multierr.Errors(err) {
		var violation *LotViolation
		if stdErrors.As(e, &violation) {
			ids = append(ids, violation.ReceiptLineID.String())
		}
	}
	return ids
}
