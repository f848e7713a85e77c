package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/messledger-backend/api/controllers"
	"github.com/angelmondragon/messledger-backend/api/routes"
	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/internal/consumptions"
	"github.com/angelmondragon/messledger-backend/internal/exports"
	"github.com/angelmondragon/messledger-backend/internal/fifo"
	"github.com/angelmondragon/messledger-backend/internal/items"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/internal/receipts"
	"github.com/angelmondragon/messledger-backend/pkg/config"
	"github.com/angelmondragon/messledger-backend/pkg/db"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
	"github.com/angelmondragon/messledger-backend/pkg/metrics"
	"github.com/angelmondragon/messledger-backend/pkg/migrate"
	"github.com/angelmondragon/messledger-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	readiness := map[string]controllers.Pinger{"db": dbClient}
	var idempotency redis.IdempotencyStore
	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		readiness["redis"] = redisClient
		idempotency = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, idempotent replay disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewLedgerMetrics(registry)

	tolerance, err := cfg.Ledger.Tolerance()
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	itemRepo := items.NewRepository(conn)
	periodRepo := periods.NewRepository(conn)
	snapshots := balances.NewSnapshotRepository(conn)
	calculator := balances.NewCalculator()

	itemService, err := items.NewService(itemRepo)
	if err != nil {
		return err
	}
	periodService, err := periods.NewService(dbClient, periodRepo, snapshots, calculator, periods.CloseOptions{
		RequireTally: cfg.Ledger.CloseRequiresTally,
		Tolerance:    tolerance,
	}, logg, recorder)
	if err != nil {
		return err
	}
	receiptService, err := receipts.NewService(dbClient, receipts.NewRepository(conn), periodRepo, itemRepo, logg, recorder)
	if err != nil {
		return err
	}
	consumptionService, err := consumptions.NewService(dbClient, consumptions.NewRepository(conn), periodRepo, itemRepo, fifo.NewAllocator(recorder), logg, recorder)
	if err != nil {
		return err
	}
	balanceService, err := balances.NewService(dbClient, snapshots, calculator, logg, recorder)
	if err != nil {
		return err
	}
	exportService, err := exports.NewService(balanceService, exports.Options{
		SheetName:      cfg.Export.SheetName,
		FilenamePrefix: cfg.Export.FilenamePrefix,
	}, logg)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"driver": dbClient.Driver(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, readiness, registry, idempotency,
			itemService, periodService, receiptService, consumptionService, balanceService, exportService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
