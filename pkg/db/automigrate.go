package db

import (
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Models lists every persisted ledger table in dependency order.
func Models() []any {
	return []any{
		&models.Item{},
		&models.Period{},
		&models.Receipt{},
		&models.ReceiptLine{},
		&models.Consumption{},
		&models.ConsumptionLine{},
		&models.ConsumptionAllocation{},
		&models.PeriodItemBalance{},
	}
}

// AutoMigrate creates the ledger schema through gorm. Used for sqlite dev
// databases and tests; Postgres uses the goose migrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
