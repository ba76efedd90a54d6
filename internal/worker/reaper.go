package worker

import (
	"context"
	"log/slog"
	"time"
)

type StaleRecoverer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Reaper periodically fails photos stuck in processing, e.g. after a crash
// mid-pass.
type Reaper struct {
	recoverer  StaleRecoverer
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func NewReaper(recoverer StaleRecoverer, logger *slog.Logger, interval, staleAfter time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		recoverer:  recoverer,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Run sweeps once right away and then on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("stale photo reaper started", "interval", r.interval, "stale_after", r.staleAfter)
	r.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stale photo reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Reaper) Sweep(ctx context.Context) int {
	n, err := r.recoverer.RecoverStale(ctx, r.staleAfter)
	if err != nil {
		r.logger.Error("recover stale photos", "recovered", n, "error", err)
		return n
	}
	if n > 0 {
		r.logger.Warn("recovered stale photos", "count", n)
	}
	return n
}
