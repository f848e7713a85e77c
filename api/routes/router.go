package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/messledger-backend/api/controllers"
	"github.com/angelmondragon/messledger-backend/api/middleware"
	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/internal/consumptions"
	"github.com/angelmondragon/messledger-backend/internal/exports"
	"github.com/angelmondragon/messledger-backend/internal/items"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/internal/receipts"
	"github.com/angelmondragon/messledger-backend/pkg/config"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/messledger-backend/pkg/redis"
)

// NewRouter mounts the ledger API. idempotency may be nil when Redis is not
// configured; readiness entries with nil values are skipped.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
	idempotency pkgredis.IdempotencyStore,
	itemService items.Service,
	periodService periods.Service,
	receiptService receipts.Service,
	consumptionService consumptions.Service,
	balanceService balances.Service,
	exportService exports.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(idempotency, logg))

		r.Get("/items", controllers.ListItems(itemService, logg))

		r.Route("/periods", func(r chi.Router) {
			r.Get("/", controllers.ListPeriods(periodService, logg))
			r.Post("/", controllers.CreatePeriod(periodService, logg))
			r.Get("/current", controllers.CurrentPeriod(periodService, logg))
			r.Get("/{code}", controllers.GetPeriod(periodService, logg))
			r.Post("/{code}/close", controllers.ClosePeriod(periodService, logg))
			r.Post("/{code}/reopen", controllers.ReopenPeriod(periodService, logg))
			r.Post("/{code}/lock", controllers.LockPeriod(periodService, logg))
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", controllers.ListReceipts(receiptService, logg))
			r.Post("/", controllers.CreateReceipt(receiptService, logg))
			r.Get("/{id}", controllers.GetReceipt(receiptService, logg))
			r.Patch("/{id}", controllers.UpdateReceipt(receiptService, logg))
			r.Post("/{id}/void", controllers.VoidReceipt(receiptService, logg))
		})

		r.Route("/consumptions", func(r chi.Router) {
			r.Get("/", controllers.ListConsumptions(consumptionService, logg))
			r.Post("/", controllers.CreateConsumption(consumptionService, logg))
			r.Get("/{id}", controllers.GetConsumption(consumptionService, logg))
			r.Post("/{id}/void", controllers.VoidConsumption(consumptionService, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/period-item-balances", controllers.PeriodItemBalances(balanceService, logg))
			r.Get("/periods/{code}/snapshot", controllers.PeriodSnapshot(balanceService, logg))
			r.Get("/periods/{code}/reconcile", controllers.ReconcilePeriod(balanceService, logg))
		})

		r.Get("/exports/periods/{code}", controllers.ExportPeriodWorkbook(exportService, logg))
	})

	return r
}
