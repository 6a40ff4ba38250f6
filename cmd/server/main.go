/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server for the bakery.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and STOCK_* configuration
  2. Open the store selected by STOCK_DB_DRIVER
  3. Register Prometheus collectors and ledger metrics
  4. Connect Redis for event fan-out (optional)
  5. Build the Reconciler, media, PDF renderer and auth service
  6. Seed the admin account (optional)
  7. Configure HTTP router and start the low stock monitor
  8. Start server with graceful shutdown

ENVIRONMENT:
  STOCK_JWT_SECRET        Token signing secret (required)
  STOCK_DB_DRIVER         sqlite (default), postgres or memory
  STOCK_DB_DSN            SQLite path or Postgres connection string
  STOCK_APP_ADDR          Listen address (default :8080)
  STOCK_REDIS_URL         Enables event fan-out and dashboard feed
  STOCK_GOTENBERG_URL     Enables PDF report export
  STOCK_S3_BUCKET         Stores product images in S3 instead of memory
  See config/config.go for the full list.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the low stock monitor
  4. Close Redis and database connections
  5. Exit

EXAMPLES:
  # Run with file database
  STOCK_JWT_SECRET=dev STOCK_DB_DSN=./data/stock.db ./server

  # Run in memory with demo scenarios
  STOCK_JWT_SECRET=dev STOCK_DB_DRIVER=memory STOCK_SCENARIOS=true ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Settings
  - inventory/reconciler.go: Ledger rules
*/
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
	"github.com/redis/go-redis/v9"

	"github.com/dapurkue/stockledger/api"
	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/config"
	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/inventory/store"
	"github.com/dapurkue/stockledger/logging"
	"github.com/dapurkue/stockledger/media"
	"github.com/dapurkue/stockledger/metrics"
	"github.com/dapurkue/stockledger/notify"
	"github.com/dapurkue/stockledger/report"
	"github.com/dapurkue/stockledger/store/postgres"
	"github.com/dapurkue/stockledger/store/sqlite"
)

const serviceName = "stockledger"

// backend is what a storage driver provides to the rest of the server.
type backend struct {
	store    inventory.Store
	users    auth.UserStore
	resetter api.Resetter
	close    func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg := logging.New(logging.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logging.New(logging.Options{
		ServiceName: serviceName,
		Level:       logging.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "server stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logging.Logger) error {
	// Storage
	db, err := openBackend(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.close(); err != nil {
			logg.Error(ctx, "closing database", err)
		}
	}()
	logg.Info(logg.WithField(ctx, "driver", cfg.DB.Driver), "store ready")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ledgerMetrics := metrics.NewLedgerMetrics(reg)

	// Events
	var (
		events inventory.EventPublisher = ledgerMetrics
		pub    *notify.RedisPublisher
		client *redis.Client
	)
	if cfg.Redis.URL != "" {
		client, err = notify.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		pub = notify.NewRedisPublisher(client, cfg.Redis.Prefix)
		events = notify.Fanout{ledgerMetrics, pub}
		logg.Info(logg.WithField(ctx, "channel", pub.Channel()), "redis events enabled")
	}

	threshold := cfg.Stock.LowStockThreshold
	rec := inventory.NewReconciler(db.store, inventory.ReconcilerOptions{
		LowStockThreshold: &threshold,
		ReconcileEdits:    cfg.Stock.ReconcileEdits,
		Events:            events,
		Recorder:          ledgerMetrics,
		Logger:            logg,
	})

	// Product images
	var (
		objects media.ObjectStore
		images  api.ImageSource
	)
	if cfg.S3.Enabled() {
		s3Store, err := media.NewS3Store(ctx, media.S3Config{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			Bucket:       cfg.S3.Bucket,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
			PublicURL:    cfg.S3.PublicURL,
		})
		if err != nil {
			return err
		}
		objects = s3Store
	} else {
		mem := media.NewMemoryStore(cfg.App.PublicURL + "/media")
		objects, images = mem, mem
	}

	// PDF export
	var pdf report.PDFRenderer
	if cfg.Gotenberg.URL != "" {
		g := report.NewGotenberg(cfg.Gotenberg.URL, &http.Client{Timeout: cfg.Gotenberg.Timeout})
		if err := g.Ping(ctx); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "gotenberg not reachable, PDF export may fail")
		}
		pdf = g
	}

	// Accounts
	tokens := auth.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, TTL: cfg.JWT.TTL}
	authService := auth.NewService(db.users, tokens)
	if cfg.Admin.Email != "" {
		_, created, err := authService.EnsureUser(ctx, auth.RegisterInput{
			Email:    cfg.Admin.Email,
			Name:     cfg.Admin.Name,
			Password: cfg.Admin.Password,
			Role:     inventory.RoleAdmin,
		})
		if err != nil {
			return err
		}
		if created {
			logg.Info(logg.WithField(ctx, "email", cfg.Admin.Email), "admin account created")
		}
	}

	deps := api.Deps{
		Reconciler: rec,
		Auth:       authService,
		Uploader:   media.NewUploader(objects),
		Images:     images,
		PDF:        pdf,
		Resetter:   db.resetter,
		Location:   cfg.App.Location(),
		Logger:     logg,
	}
	if pub != nil {
		deps.Feed = pub
	}
	handler := api.NewHandler(deps)

	router := api.NewRouter(handler, api.RouterOptions{
		Tokens:      tokens,
		CORSOrigins: cfg.App.CORSOrigins,
		RateLimit:   cfg.App.RateLimit,
		Production:  cfg.App.IsProd(),
		Scenarios:   cfg.App.Scenarios,
		Gatherer:    reg,
		Logger:      logg,
	})

	monitorOpts := api.MonitorOptions{
		Interval: cfg.Stock.MonitorInterval,
		Gauge:    ledgerMetrics,
		Events:   events,
		Logger:   logg,
	}
	if pub != nil {
		monitorOpts.Sink = pub
	}
	monitor := api.NewLowStockMonitor(rec, monitorOpts)
	monitor.Start()
	defer monitor.Stop()

	srv := &http.Server{
		Addr:         cfg.App.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(handler.CloseStreams)

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.App.Addr), "server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logg.Info(context.Background(), "server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg config.DBConfig) (*backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, users: s, resetter: s, close: s.Close}, nil
	case config.DriverMemory:
		s := store.NewTxMemory()
		return &backend{store: s, users: auth.NewMemoryUsers(), resetter: s, close: func() error { return nil }}, nil
	default:
		s, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, users: s, resetter: s, close: s.Close}, nil
	}
}
