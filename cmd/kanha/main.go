package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mpk-pharma/kanha/internal/app"
	"github.com/mpk-pharma/kanha/internal/auth"
	"github.com/mpk-pharma/kanha/internal/invoices"
	"github.com/mpk-pharma/kanha/internal/items"
	"github.com/mpk-pharma/kanha/internal/numbering"
	"github.com/mpk-pharma/kanha/internal/observability"
	"github.com/mpk-pharma/kanha/internal/platform/cache"
	"github.com/mpk-pharma/kanha/internal/platform/db"
	"github.com/mpk-pharma/kanha/internal/shared"
	"github.com/mpk-pharma/kanha/internal/view"
	"github.com/mpk-pharma/kanha/jobs"
	"github.com/mpk-pharma/kanha/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ConnectTimeout: cfg.PGConnectTimeout})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("apply schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	pdfClient := report.NewClient(cfg.GotenbergURL)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(
		authRepo,
		auth.NewBcryptVerifier(authRepo),
		auth.NewSessionStore(redisClient, cfg.SessionTTL),
		auth.NewTokenIssuer(cfg.JWTSecret),
		logger,
	)
	authHandler := auth.NewHandler(logger, authService)

	auditLogger := shared.NewAuditLogger(dbpool)

	itemsService := items.NewService(
		items.NewRepository(dbpool),
		cache.NewVersioned(redisClient, "items", cfg.ItemsCacheTTL),
		auditLogger,
		logger,
	)
	itemsHandler := items.NewHandler(logger, itemsService)

	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), invoices.Options{
		Scheme:        numbering.NewScheme(cfg.InvoicePrefix, cfg.InvoiceFiscalYear, time.Now()),
		ClampOversell: cfg.InvoiceClampOversell,
		Stock:         itemsService,
		Publisher:     jobClient,
		Metrics:       metrics,
		Logger:        logger,
	})
	invoicesHandler := invoices.NewHandler(
		logger,
		invoiceService,
		invoices.NewPrinter(templates, pdfClient),
		itemsHandler.GetByCatNo,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthService:     authService,
		AuthHandler:     authHandler,
		ItemsHandler:    itemsHandler,
		InvoicesHandler: invoicesHandler,
		JobHandler:      jobs.NewHandler(inspector, logger),
		ReportHandler:   report.NewHandler(pdfClient, logger),
		Metrics:         metrics,
		HealthChecks: []app.HealthCheck{
			{Name: "postgres", Check: dbpool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("base_path", cfg.AppBasePath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
