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
	"golang.org/x/sync/errgroup"

	"github.com/grainworks/grainstock-backend/api/routes"
	"github.com/grainworks/grainstock-backend/internal/balances"
	"github.com/grainworks/grainstock-backend/internal/commodities"
	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/internal/movements"
	"github.com/grainworks/grainstock-backend/internal/queries"
	"github.com/grainworks/grainstock-backend/internal/warehouses"
	"github.com/grainworks/grainstock-backend/pkg/config"
	"github.com/grainworks/grainstock-backend/pkg/db"
	"github.com/grainworks/grainstock-backend/pkg/logger"
	"github.com/grainworks/grainstock-backend/pkg/metrics"
	"github.com/grainworks/grainstock-backend/pkg/migrate"
	"github.com/grainworks/grainstock-backend/pkg/outbox"
	"github.com/grainworks/grainstock-backend/pkg/redis"
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
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerRepo := ledger.NewRepository(conn)
	balanceRepo := balances.NewRepository(conn)
	commodityRepo := commodities.NewRepository(conn)
	warehouseRepo := warehouses.NewRepository(conn)

	balanceService, err := balances.NewService(conn, balanceRepo, ledgerRepo, ledgerMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create balance service", err)
		os.Exit(1)
	}
	commodityService, err := commodities.NewService(conn, commodityRepo, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create commodity service", err)
		os.Exit(1)
	}
	warehouseService, err := warehouses.NewService(conn, warehouseRepo, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create warehouse service", err)
		os.Exit(1)
	}
	movementService, err := movements.NewService(
		conn,
		ledgerRepo,
		balanceService,
		commodityRepo,
		warehouseRepo,
		outboxService,
		ledgerMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create movement service", err)
		os.Exit(1)
	}
	queryService, err := queries.NewService(balanceRepo, ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create query service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			movementService,
			queryService,
			commodityService,
			warehouseService,
		),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down gracefully")
}
