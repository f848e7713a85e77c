// Package ledgertest provides sqlite-backed fixtures for ledger tests.
package ledgertest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/pkg/db"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

// NewDB opens an isolated in-memory sqlite database with the ledger schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate ledger schema: %v", err)
	}
	return conn
}

// NewClient wraps NewDB in a db.Client for services needing a tx runner.
func NewClient(t *testing.T) *db.Client {
	t.Helper()
	return db.NewFromConn(NewDB(t))
}

// D parses a decimal literal.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Item inserts an active item.
func Item(t *testing.T, conn *gorm.DB, name string) models.Item {
	t.Helper()
	item := models.Item{Name: name, UOM: "kg", IsActive: true}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("seed item %s: %v", name, err)
	}
	return item
}

// Period inserts a period with the given status.
func Period(t *testing.T, conn *gorm.DB, year, month int, status enums.PeriodStatus) models.Period {
	t.Helper()
	now := time.Now().UTC()
	period := models.Period{
		Year:     year,
		Month:    month,
		Status:   status,
		OpenedAt: &now,
	}
	if err := conn.Create(&period).Error; err != nil {
		t.Fatalf("seed period %d-%d: %v", year, month, err)
	}
	return period
}

// Lot describes one receipt line to seed.
type Lot struct {
	Item     models.Item
	Quantity string
	Rate     string
}

// Receipt inserts a non-void receipt whose lines are untouched lots.
func Receipt(t *testing.T, conn *gorm.DB, period models.Period, lots ...Lot) models.Receipt {
	t.Helper()
	receipt := models.Receipt{PeriodID: period.ID}
	for _, lot := range lots {
		qty := numeric.RoundQty(D(lot.Quantity))
		rate := numeric.RoundAmount(D(lot.Rate))
		receipt.Lines = append(receipt.Lines, models.ReceiptLine{
			ItemID:       lot.Item.ID,
			Quantity:     qty,
			Rate:         rate,
			Amount:       numeric.Amount(qty, rate),
			RemainingQty: qty,
		})
	}
	if err := conn.Create(&receipt).Error; err != nil {
		t.Fatalf("seed receipt: %v", err)
	}
	return receipt
}

// ReceiptLine reloads a lot.
func ReceiptLine(t *testing.T, conn *gorm.DB, id uuid.UUID) models.ReceiptLine {
	t.Helper()
	var line models.ReceiptLine
	if err := conn.First(&line, "id = ?", id).Error; err != nil {
		t.Fatalf("load receipt line: %v", err)
	}
	return line
}

// RequireEqual fails when two decimals differ numerically.
func RequireEqual(t *testing.T, want string, got decimal.Decimal, label string) {
	t.Helper()
	if !got.Equal(D(want)) {
		t.Fatalf("%s: want %s, got %s", label, want, got.String())
	}
}
