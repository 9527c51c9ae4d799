package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfani/backoffice/internal/app"
	"github.com/alfani/backoffice/internal/credit"
	"github.com/alfani/backoffice/internal/inventory"
	"github.com/alfani/backoffice/internal/invoices"
	"github.com/alfani/backoffice/internal/masterdata/products"
	"github.com/alfani/backoffice/internal/masterdata/suppliers"
	"github.com/alfani/backoffice/internal/outbox"
	"github.com/alfani/backoffice/internal/platform/cache"
	"github.com/alfani/backoffice/internal/platform/db"
	"github.com/alfani/backoffice/internal/safes"
	"github.com/alfani/backoffice/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, credit summary cache disabled", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	events := outbox.NewStore(pool)
	relay := outbox.NewRelay(events, logger)

	safeRepo := safes.NewRepository(pool)
	safeService := safes.NewService(safeRepo, auditLogger, logger)
	relay.Handle(outbox.TopicSafePost, safeService.DispatchPost)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger)

	invoiceRepo := invoices.NewRepository(pool, events)
	invoiceService := invoices.NewService(invoiceRepo, auditLogger, relay, logger)

	var summaryCache credit.SummaryCachePort
	if redisClient != nil {
		summaryCache = credit.NewSummaryCache(redisClient, time.Minute)
	}
	creditRepo := credit.NewRepository(pool, events)
	creditService := credit.NewService(creditRepo, auditLogger, relay, summaryCache, logger)

	productRepo := products.NewRepository(pool)
	productService := products.NewService(productRepo)

	supplierRepo := suppliers.NewRepository(pool, events)
	supplierService := suppliers.NewService(supplierRepo, auditLogger, relay, logger)

	router := app.NewRouter(app.RouterParams{
		Middleware:       app.MiddlewareConfig{Logger: logger, Config: cfg},
		ProductsHandler:  products.NewHandler(logger, productService),
		SuppliersHandler: suppliers.NewHandler(logger, supplierService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		InvoicesHandler:  invoices.NewHandler(logger, invoiceService, idempotency),
		CreditHandler:    credit.NewHandler(logger, creditService),
		SafesHandler:     safes.NewHandler(logger, safeService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	// Safety net for events the inline drain missed while the worker is
	// down or the queue backs up.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.OutboxPollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := relay.DrainOnce(gctx, cfg.OutboxBatchSize); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("outbox drain", slog.Any("error", err))
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
