package trades

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// EscrowExpiryWorker periodically expires escrows whose funding window has
// passed. It never changes trade status.
type EscrowExpiryWorker struct {
	cron     *cron.Cron
	sweeper  EscrowSweeper
	schedule string
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// NewEscrowExpiryWorker creates a worker; schedule is a standard cron spec or a descriptor like "@every 1h"
func NewEscrowExpiryWorker(sweeper EscrowSweeper, schedule string, logger *zap.Logger) *EscrowExpiryWorker {
	return &EscrowExpiryWorker{
		cron:     cron.New(),
		sweeper:  sweeper,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the sweep and starts the scheduler
func (w *EscrowExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("escrow expiry worker already running")
	}

	if _, err := w.cron.AddFunc(w.schedule, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", w.schedule, err)
	}

	w.logger.Info("Starting escrow expiry worker", zap.String("schedule", w.schedule))
	w.cron.Start()
	w.running = true
	return nil
}

// Stop waits for a running sweep to finish
func (w *EscrowExpiryWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	w.logger.Info("Stopping escrow expiry worker")
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.running = false
}

// RunOnce performs a single sweep and returns the number of escrows expired
func (w *EscrowExpiryWorker) RunOnce(ctx context.Context) int64 {
	expired, err := w.sweeper.ExpirePendingEscrows(ctx, w.now())
	if err != nil {
		w.logger.Error("Failed to expire pending escrows", zap.Error(err))
		return 0
	}
	if expired > 0 {
		w.logger.Info("Expired pending escrows", zap.Int64("count", expired))
	}
	return expired
}
