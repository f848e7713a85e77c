package balances

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/internal/fifo"
	"github.com/angelmondragon/messledger-backend/internal/ledgertest"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
)

// consume records a consumption of qty in period using the FIFO allocator.
func consume(t *testing.T, conn *gorm.DB, period models.Period, item models.Item, qty string) models.Consumption {
	t.Helper()
	consumption := models.Consumption{PeriodID: period.ID}
	err := conn.Transaction(func(tx *gorm.DB) error {
		allocations, err := fifo.NewAllocator(nil).Allocate(context.Background(), tx, item.ID, ledgertest.D(qty))
		if err != nil {
			return err
		}
		line := models.ConsumptionLine{ItemID: item.ID, EnteredQty: ledgertest.D(qty)}
		for _, a := range allocations {
			line.Allocations = append(line.Allocations, models.ConsumptionAllocation{
				ReceiptLineID: a.ReceiptLineID,
				Qty:           a.Qty,
				Rate:          a.Rate,
				Amount:        a.Amount,
			})
		}
		consumption.Lines = []models.ConsumptionLine{line}
		return tx.Create(&consumption).Error
	})
	require.NoError(t, err)
	return consumption
}

func voidConsumption(t *testing.T, conn *gorm.DB, consumption models.Consumption) {
	t.Helper()
	err := conn.Transaction(func(tx *gorm.DB) error {
		var allocations []models.ConsumptionAllocation
		for _, line := range consumption.Lines {
			allocations = append(allocations, line.Allocations...)
		}
		if err := fifo.NewAllocator(nil).Reverse(context.Background(), tx, allocations); err != nil {
			return err
		}
		return tx.Model(&models.Consumption{}).Where("id = ?", consumption.ID).Update("is_void", true).Error
	})
	require.NoError(t, err)
}

func compute(t *testing.T, conn *gorm.DB, period models.Period) map[string]ItemBalance {
	t.Helper()
	result, err := NewCalculator().Compute(context.Background(), conn, period)
	require.NoError(t, err)
	byName := make(map[string]ItemBalance, len(result))
	for _, b := range result {
		byName[b.ItemName] = b
	}
	return byName
}

func requireBucket(t *testing.T, b Bucket, qty, amount, label string) {
	t.Helper()
	ledgertest.RequireEqual(t, qty, b.Qty, label+" qty")
	ledgertest.RequireEqual(t, amount, b.Amount, label+" amount")
}

func TestCompute_VoidedConsumptionLeavesReceiptIntact(t *testing.T) {
	conn := ledgertest.NewDB(t)
	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	lot := ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "100", Rate: "10.00"}).Lines[0]

	consumption := consume(t, conn, jan, rice, "30")
	require.Len(t, consumption.Lines[0].Allocations, 1)
	alloc := consumption.Lines[0].Allocations[0]
	assert.Equal(t, lot.ID, alloc.ReceiptLineID)
	ledgertest.RequireEqual(t, "300", alloc.Amount, "allocation amount")
	ledgertest.RequireEqual(t, "70", ledgertest.ReceiptLine(t, conn, lot.ID).RemainingQty, "after consume")

	voidConsumption(t, conn, consumption)
	ledgertest.RequireEqual(t, "100", ledgertest.ReceiptLine(t, conn, lot.ID).RemainingQty, "after void")

	b := compute(t, conn, jan)["Rice"]
	requireBucket(t, b.Opening, "0", "0", "opening")
	requireBucket(t, b.Received, "100", "1000", "received")
	requireBucket(t, b.Consumed.FromCurrent, "0", "0", "from current")
	requireBucket(t, b.Closing, "100", "1000", "closing")
	ledgertest.RequireEqual(t, "10", b.Received.AvgRate, "received avg rate")
	assert.True(t, b.TallyCheck.IsZero())
}

func TestCompute_ClosingCarriesIntoNextOpening(t *testing.T) {
	conn := ledgertest.NewDB(t)
	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusClosed)
	feb := ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusOpen)

	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "100", Rate: "10.00"})
	consume(t, conn, jan, rice, "30")
	ledgertest.Receipt(t, conn, feb, ledgertest.Lot{Item: rice, Quantity: "50", Rate: "12.00"})
	consume(t, conn, feb, rice, "80")

	janBal := compute(t, conn, jan)["Rice"]
	requireBucket(t, janBal.Opening, "0", "0", "jan opening")
	requireBucket(t, janBal.Received, "100", "1000", "jan received")
	requireBucket(t, janBal.Consumed.FromCurrent, "30", "300", "jan from current")
	requireBucket(t, janBal.Closing, "70", "700", "jan closing")

	febBal := compute(t, conn, feb)["Rice"]
	requireBucket(t, febBal.Opening, "70", "700", "feb opening")
	requireBucket(t, febBal.Received, "50", "600", "feb received")
	requireBucket(t, febBal.Consumed.FromOpening, "70", "700", "feb from opening")
	requireBucket(t, febBal.Consumed.FromCurrent, "10", "120", "feb from current")
	requireBucket(t, febBal.Consumed.Total, "80", "820", "feb total")
	requireBucket(t, febBal.Closing, "40", "480", "feb closing")
	ledgertest.RequireEqual(t, "10.25", febBal.Consumed.Total.AvgRate, "feb consumed avg rate")

	assert.True(t, janBal.Closing.Qty.Equal(febBal.Opening.Qty))
	assert.True(t, janBal.Closing.Amount.Equal(febBal.Opening.Amount))
	assert.True(t, janBal.TallyCheck.IsZero())
	assert.True(t, febBal.TallyCheck.IsZero())

	// Later activity must not rewrite January's view.
	mar := ledgertest.Period(t, conn, 2024, 3, enums.PeriodStatusClosed)
	consume(t, conn, mar, rice, "40")
	requireBucket(t, compute(t, conn, jan)["Rice"].Closing, "70", "700", "jan closing after march")
	requireBucket(t, compute(t, conn, feb)["Rice"].Closing, "40", "480", "feb closing after march")
	marBal := compute(t, conn, mar)["Rice"]
	requireBucket(t, marBal.Opening, "40", "480", "mar opening")
	requireBucket(t, marBal.Closing, "0", "0", "mar closing")
}

func TestCompute_OpeningValueUsesStoredAllocationAmounts(t *testing.T) {
	conn := ledgertest.NewDB(t)
	salt := ledgertest.Item(t, conn, "Salt")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusClosed)
	feb := ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusClosed)
	mar := ledgertest.Period(t, conn, 2024, 3, enums.PeriodStatusOpen)

	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: salt, Quantity: "1", Rate: "0.05"})
	// 0.1 x 0.05 rounds up to 0.01 on its own.
	consume(t, conn, feb, salt, "0.1")

	febBal := compute(t, conn, feb)["Salt"]
	requireBucket(t, febBal.Opening, "1", "0.05", "feb opening")
	requireBucket(t, febBal.Consumed.FromOpening, "0.1", "0.01", "feb from opening")
	requireBucket(t, febBal.Closing, "0.9", "0.04", "feb closing")

	marBal := compute(t, conn, mar)["Salt"]
	requireBucket(t, marBal.Opening, "0.9", "0.04", "mar opening")
	assert.True(t, febBal.Closing.Amount.Equal(marBal.Opening.Amount))
	assert.True(t, marBal.TallyCheck.IsZero())
}

func TestCompute_EmptiedLotLeavesNoStrayAmount(t *testing.T) {
	conn := ledgertest.NewDB(t)
	salt := ledgertest.Item(t, conn, "Salt")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	feb := ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusClosed)

	// 0.3 x 0.05 is stored as 0.02 while each 0.1 draw rounds to 0.01.
	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: salt, Quantity: "0.3", Rate: "0.05"})
	consume(t, conn, jan, salt, "0.1")
	consume(t, conn, jan, salt, "0.1")
	last := consume(t, conn, jan, salt, "0.1")
	ledgertest.RequireEqual(t, "0", last.Lines[0].Allocations[0].Amount, "emptying draw amount")

	janBal := compute(t, conn, jan)["Salt"]
	requireBucket(t, janBal.Received, "0.3", "0.02", "received")
	requireBucket(t, janBal.Consumed.FromCurrent, "0.3", "0.02", "consumed")
	requireBucket(t, janBal.Closing, "0", "0", "closing")
	assert.True(t, janBal.TallyCheck.IsZero())

	requireBucket(t, compute(t, conn, feb)["Salt"].Opening, "0", "0", "feb opening")
}

func TestCompute_ExcludesVoidReceiptsAndInactiveItems(t *testing.T) {
	conn := ledgertest.NewDB(t)
	rice := ledgertest.Item(t, conn, "Rice")
	salt := ledgertest.Item(t, conn, "Salt")
	require.NoError(t, conn.Model(&salt).Update("is_active", false).Error)
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)

	voided := ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "5", Rate: "2.00"})
	require.NoError(t, conn.Model(&models.Receipt{}).Where("id = ?", voided.ID).Update("is_void", true).Error)
	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "3.5", Rate: "4.10"})

	result := compute(t, conn, jan)
	require.Len(t, result, 1)
	requireBucket(t, result["Rice"].Received, "3.5", "14.35", "received")
	_, hasSalt := result["Salt"]
	assert.False(t, hasSalt)
}

func TestCompute_FutureLotAllocationsFallOutsideBuckets(t *testing.T) {
	conn := ledgertest.NewDB(t)
	dal := ledgertest.Item(t, conn, "Dal")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	feb := ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusClosed)

	ledgertest.Receipt(t, conn, feb, ledgertest.Lot{Item: dal, Quantity: "10", Rate: "5.00"})
	consume(t, conn, jan, dal, "4")

	janBal := compute(t, conn, jan)["Dal"]
	requireBucket(t, janBal.Consumed.Total, "0", "0", "jan consumed")
	requireBucket(t, janBal.Closing, "0", "0", "jan closing")
	assert.True(t, janBal.TallyCheck.IsZero())
}

func TestItemBalanceJSON(t *testing.T) {
	b := newItemBalance(
		models.Item{Name: "Rice", UOM: "kg"},
		NewBucket(ledgertest.D("1"), ledgertest.D("10")),
		NewBucket(ledgertest.D("2"), ledgertest.D("30")),
		NewBucket(ledgertest.D("1"), ledgertest.D("10")),
		NewBucket(ledgertest.D("0"), ledgertest.D("0")),
	)
	raw, err := json.Marshal(b)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "0.00", decoded["tally_check"])
	closing := decoded["closing"].(map[string]any)
	assert.Equal(t, "2.000", closing["qty"])
	assert.Equal(t, "30.00", closing["amount"])
	assert.Equal(t, "15.00", closing["avg_rate"])
	assert.Equal(t, "Rice", decoded["item_name"])
}
