// Package main is the entry point for the kalshiparlay API server.  It wires
// the quote engine, parlay ledger, hedging and settlement services together
// and starts the HTTP server alongside the background settlement scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/skumar2006/kalshiparlay/internal/ai"
	"github.com/skumar2006/kalshiparlay/internal/api"
	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/repository"
	"github.com/skumar2006/kalshiparlay/internal/scheduler"
	"github.com/skumar2006/kalshiparlay/internal/service"
	"github.com/skumar2006/kalshiparlay/internal/venue"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
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

	logger.Info("starting kalshiparlay server",
		"env", string(cfg.Environment), "dry_run", cfg.DryRun, "port", cfg.Server.Port)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	// ── 2. Database ───────────────────────────────────────────────────────────
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

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(3)
	}
	logger.Info("migrations applied")

	// ── 4. Venue client + AI adviser ──────────────────────────────────────────
	venueClient, err := venue.NewClient(cfg, logger)
	if err != nil {
		logger.Error("venue client init failed", "err", err)
		os.Exit(2)
	}
	adviser := ai.NewAdviser(cfg, logger)

	// ── 5. Repositories ───────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	draftRepo := repository.NewDraftRepository(db)
	parlayRepo := repository.NewParlayRepository(db)
	hedgeRepo := repository.NewHedgeRepository(db)

	// ── 6. Services (order matters for injection) ─────────────────────────────
	quoteSvc := service.NewQuoteService(adviser, cfg, logger)

	ledgerSvc := service.NewLedgerService(db, userRepo, walletRepo, venueClient, cfg, logger)

	hedgingSvc := service.NewHedgingService(venueClient, hedgeRepo, logger)

	parlaySvc := service.NewParlayService(db, parlayRepo, draftRepo, walletRepo, quoteSvc, cfg, logger)
	parlaySvc.SetHedger(hedgingSvc)

	settlementSvc := service.NewSettlementService(
		db, parlayRepo, hedgeRepo, walletRepo, venueClient, hedgingSvc, cfg, logger)

	// ── 7. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 8. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(settlementSvc, cfg, logger)
	sched.Start(ctx)

	// ── 9. HTTP Router ────────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		ParlaySvc:     parlaySvc,
		LedgerSvc:     ledgerSvc,
		SettlementSvc: settlementSvc,
		Venue:         venueClient,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 10. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 11. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
