package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/internal/items"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/pkg/config"
	"github.com/angelmondragon/messledger-backend/pkg/db"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
	"github.com/angelmondragon/messledger-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seed"})

	_ = godotenv.Load()

	periodFlag := flag.String("period", "", "period code to open (default: current month)")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "schema", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	conn := dbClient.DB()
	periodService, err := periods.NewService(dbClient, periods.NewRepository(conn), balances.NewSnapshotRepository(conn),
		balances.NewCalculator(), periods.CloseOptions{}, logg, nil)
	requireResource(ctx, logg, "period service", err)

	code := *periodFlag
	if code == "" {
		now := time.Now().UTC()
		code = models.PeriodCode(now.Year(), int(now.Month()))
	}

	report, err := seed(ctx, items.NewRepository(conn), periodService, code, logg)
	requireResource(ctx, logg, "seed", err)

	fmt.Printf("items created: %d, existing: %d\n", report.ItemsCreated, report.ItemsExisting)
	if report.PeriodOpened != "" {
		fmt.Println("opened period:", report.PeriodOpened)
	} else {
		fmt.Println("open period already present:", report.OpenPeriod)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
