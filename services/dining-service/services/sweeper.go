package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpirySweeper periodically expires gateway payments nobody reconciled.
type ExpirySweeper struct {
	payments PaymentService
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewExpirySweeper(payments PaymentService, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{payments: payments, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	w.logger.Info("Payment expiry sweeper started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Payment expiry sweeper stopped")
			return nil
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of expired payments.
func (w *ExpirySweeper) SweepOnce(ctx context.Context) int {
	n, err := w.payments.SweepExpired(ctx, w.now())
	if err != nil && ctx.Err() == nil {
		w.logger.Error("Payment sweep failed", zap.Error(err))
	}
	if n > 0 {
		w.logger.Info("Expired stale payments", zap.Int("count", n))
	}
	return n
}
