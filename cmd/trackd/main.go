package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"log/slog"

	trackdhttp "github.com/tracklane/trackd/internal/adapter/http"
	trackdnats "github.com/tracklane/trackd/internal/adapter/nats"
	"github.com/tracklane/trackd/internal/adapter/otel"
	"github.com/tracklane/trackd/internal/adapter/postgres"
	"github.com/tracklane/trackd/internal/adapter/ristretto"
	"github.com/tracklane/trackd/internal/config"
	"github.com/tracklane/trackd/internal/logger"
	"github.com/tracklane/trackd/internal/middleware"
	"github.com/tracklane/trackd/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	// Run migrations
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := trackdnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	// In-process cache
	transitionCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer transitionCache.Close()

	// Metrics
	shutdownMetrics, err := otel.InitMetrics(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics shutdown", "error", err)
		}
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---
	store := postgres.NewStore(pool)
	catalog := service.NewCatalog(store, transitionCache, cfg.Cache.TTL)

	addressSvc := service.NewClientAddressService(store.ClientAddresses())
	refs := service.NewFacade(store, log, metrics,
		service.NewProductService(store.Products()),
		service.NewPaymentTypeService(store.PaymentTypes()),
		service.NewWarehouseService(store.Warehouses()),
		service.NewClientService(store.Clients(), addressSvc),
	)
	refs.RegisterCollection(addressSvc)

	taskSvc := service.NewTaskService(store, catalog, refs, queue, log, metrics)

	// --- HTTP ---
	handlers := &trackdhttp.Handlers{
		Tasks:      taskSvc,
		References: refs,
		Catalog:    catalog,
		Users:      store,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(trackdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(trackdhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.TenantID)
	r.Use(middleware.Actor)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	// API routes
	trackdhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
