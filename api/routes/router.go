package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grainworks/grainstock-backend/api/controllers"
	"github.com/grainworks/grainstock-backend/api/middleware"
	commoditysvc "github.com/grainworks/grainstock-backend/internal/commodities"
	movementsvc "github.com/grainworks/grainstock-backend/internal/movements"
	"github.com/grainworks/grainstock-backend/internal/queries"
	warehousesvc "github.com/grainworks/grainstock-backend/internal/warehouses"
	"github.com/grainworks/grainstock-backend/pkg/config"
	"github.com/grainworks/grainstock-backend/pkg/db"
	"github.com/grainworks/grainstock-backend/pkg/logger"
	"github.com/grainworks/grainstock-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	movementService movementsvc.Service,
	queryService queries.Service,
	commodityService commoditysvc.Service,
	warehouseService warehousesvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisP redis.Pinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		var idempotencyStore redis.IdempotencyStore
		if redisClient != nil {
			idempotencyStore = redisClient
		}

		r.With(middleware.Idempotency(idempotencyStore, logg)).
			Post("/movements", controllers.RecordMovement(movementService, logg))
		r.Get("/movements", controllers.ListMovements(queryService, logg))
		r.With(middleware.Idempotency(idempotencyStore, logg)).
			Post("/transfers", controllers.RecordTransfer(movementService, logg))

		r.Route("/balances/{warehouseID}", func(r chi.Router) {
			r.Get("/", controllers.ListWarehouseBalances(queryService, logg))
			r.Get("/{commodityID}", controllers.GetBalance(queryService, logg))
		})

		r.Route("/warehouses", func(r chi.Router) {
			r.Get("/", controllers.ListWarehouses(warehouseService, logg))
			r.Post("/", controllers.CreateWarehouse(warehouseService, logg))
			r.Route("/{warehouseID}", func(r chi.Router) {
				r.Get("/", controllers.GetWarehouse(warehouseService, logg))
				r.Patch("/", controllers.UpdateWarehouse(warehouseService, logg))
				r.Post("/deactivate", controllers.DeactivateWarehouse(warehouseService, logg))
				r.Get("/balances", controllers.ListWarehouseBalances(queryService, logg))
				r.Route("/commodities/{commodityID}", func(r chi.Router) {
					r.Get("/balance", controllers.GetBalance(queryService, logg))
					r.Get("/movements", controllers.MovementHistory(queryService, logg))
				})
			})
		})

		r.Route("/commodities", func(r chi.Router) {
			r.Get("/", controllers.ListCommodities(commodityService, logg))
			r.Post("/", controllers.CreateCommodity(commodityService, logg))
			r.Route("/{commodityID}", func(r chi.Router) {
				r.Get("/", controllers.GetCommodity(commodityService, logg))
				r.Patch("/", controllers.UpdateCommodity(commodityService, logg))
				r.Post("/deactivate", controllers.DeactivateCommodity(commodityService, logg))
			})
		})
	})

	return r
}
