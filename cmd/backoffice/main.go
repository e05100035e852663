// Package main is the entry point for the kalshiparlay back-office admin
// server.  Runs on its own port and exposes operator-only endpoints protected
// by an IP allowlist.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/skumar2006/kalshiparlay/internal/backoffice"
	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/repository"
	"github.com/skumar2006/kalshiparlay/internal/service"
	"github.com/skumar2006/kalshiparlay/internal/venue"
)

func main() {
	// ── Config + logger ───────────────────────────────────────────────────────
	cfg, err := config.MustLoad()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting kalshiparlay backoffice server",
		"env", string(cfg.Environment), "port", cfg.Server.BackofficePort)

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(3)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(3)
	}
	logger.Info("database connected")

	// ── Venue client ──────────────────────────────────────────────────────────
	venueClient, err := venue.NewClient(cfg, logger)
	if err != nil {
		logger.Error("venue client init failed", "err", err)
		os.Exit(2)
	}

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	parlayRepo := repository.NewParlayRepository(db)
	hedgeRepo := repository.NewHedgeRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	ledgerSvc := service.NewLedgerService(db, userRepo, walletRepo, venueClient, cfg, logger)
	hedgingSvc := service.NewHedgingService(venueClient, hedgeRepo, logger)

	// SettlementService needed for SettleNow / requeue from the admin surface.
	settlementSvc := service.NewSettlementService(
		db, parlayRepo, hedgeRepo, walletRepo, venueClient, hedgingSvc, cfg, logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		SettlementSvc: settlementSvc,
		HedgingSvc:    hedgingSvc,
		LedgerSvc:     ledgerSvc,
		ParlayRepo:    parlayRepo,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	db.Close()
	logger.Info("backoffice server stopped cleanly")
}
