// Package scheduler runs the background settlement loop: every T_POLL it
// kicks off one settlement pass over all pending parlays.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/service"
)

// Scheduler owns the settlement cadence.  Call Start(ctx) once from main();
// cancel the context to shut it down gracefully.
type Scheduler struct {
	settlementSvc *service.SettlementService
	cfg           *config.Config
	logger        *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(settlementSvc *service.SettlementService, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{settlementSvc: settlementSvc, cfg: cfg, logger: logger}
}

// Start launches the settlement loop goroutine and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go s.settlementLoop(ctx)
	s.logger.Info("scheduler started",
		"poll_interval", s.cfg.Settlement.PollInterval.String(),
		"pass_max", s.cfg.Settlement.PassMax.String(),
		"parallelism", s.cfg.Settlement.Parallelism)
}

// settlementLoop runs one pass per tick.  RunPass bounds itself with
// T_PASS_MAX, so a slow venue cannot make passes pile up indefinitely; at
// worst a pass is still finishing when the next tick fires, and the advisory
// locks make the overlap harmless.
func (s *Scheduler) settlementLoop(ctx context.Context) {
	defer s.recoverAndLog("settlementLoop")

	ticker := time.NewTicker(s.cfg.Settlement.PollInterval)
	defer ticker.Stop()

	// First pass right away; restarting the process should not wait a full
	// poll interval to pick up where it left off.
	s.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlementLoop: shutting down")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass is the inner body of settlementLoop, extracted so a panic in one
// pass is caught without killing the loop.
func (s *Scheduler) runPass(ctx context.Context) {
	defer s.recoverAndLog("runPass")
	start := time.Now()
	s.settlementSvc.RunPass(ctx)
	if d := time.Since(start); d > s.cfg.Settlement.PollInterval {
		s.logger.Warn("settlement pass ran longer than the poll interval", "took", d.Round(time.Millisecond))
	}
}

// recoverAndLog catches unexpected panics so the scheduler keeps running.
func (s *Scheduler) recoverAndLog(where string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler", "where", where, "panic", r)
	}
}
