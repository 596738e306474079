// Package main is the entry point for the home-care API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/pkordes/homecare/internal/config"
	"github.com/pkordes/homecare/internal/events"
	"github.com/pkordes/homecare/internal/handler"
	"github.com/pkordes/homecare/internal/middleware"
	"github.com/pkordes/homecare/internal/payments"
	"github.com/pkordes/homecare/internal/repo"
	"github.com/pkordes/homecare/internal/service"
	"github.com/pkordes/homecare/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database ---------------------------------------------------------
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if cfg.MigrateOnStart {
		db := stdlib.OpenDBFromPool(pool)
		n, err := migrations.Up(ctx, db)
		_ = db.Close()
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied", "count", n)
	}

	// --- Payment gateway --------------------------------------------------
	var gateway service.PaymentGateway
	if cfg.PaymentGatewayMock {
		slog.Warn("payment gateway mock mode enabled")
		gateway = payments.NewMemory()
	} else {
		mp, err := payments.NewMercadoPago(cfg.MercadoPagoAccessToken, cfg.Currency, logger)
		if err != nil {
			slog.Error("failed to configure payment gateway", "error", err)
			os.Exit(1)
		}
		gateway = mp
	}

	// --- Events -----------------------------------------------------------
	var publisher service.EventPublisher = events.Noop{}
	if cfg.AMQPURL != "" {
		p, err := events.Dial(ctx, cfg.AMQPURL, cfg.AMQPExchange, 5, logger)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := p.Close(); err != nil {
				slog.Warn("rabbitmq close", "error", err)
			}
		}()
		publisher = p
	} else {
		slog.Info("AMQP_URL not set; lifecycle events are not published")
	}

	// --- Services ---------------------------------------------------------
	users := repo.NewUserRepo(pool)
	clients := repo.NewClientRepo(pool)
	catalogRepo := repo.NewServiceRepo(pool)
	workers := repo.NewAgencyUserRepo(pool)

	reconciler := service.NewPaymentReconciler(users, gateway, cfg.Currency, logger)
	visits := service.NewVisitService(service.VisitDeps{
		Visits:   repo.NewVisitRepo(pool),
		Users:    users,
		Clients:  clients,
		Catalog:  catalogRepo,
		Workers:  workers,
		Payments: reconciler,
		Events:   publisher,
		Logger:   logger,
		Fees:     service.FeeCalculator{TaxRateBps: cfg.TaxRateBps},
		BaseFee:  cfg.BaseFee,
		ClaimTTL: cfg.PaymentClaimTTL,
	})
	accounts := service.NewAccountService(users, clients, reconciler)
	catalog := service.NewCatalogService(catalogRepo, users, workers)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID, RealIP, Logger, Recoverer,
	// CORS, body limit. Authentication is applied inside Routes so that
	// /healthz and /openapi.yaml stay public.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	srvHandler := handler.NewServer(visits, accounts, catalog, logger)
	r.Mount("/", srvHandler.Routes(middleware.NewAuthenticator([]byte(cfg.JWTSecret))))

	// --- HTTP Server ------------------------------------------------------
	// Release waits on the payment processor, so the write timeout leaves
	// room for a slow authorization.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give in-flight requests up to 15 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
