// Package retention purges threads that have been idle longer than the
// configured period, on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
)

const defaultCron = "0 2 * * *"

// Options configures the sweeper.
type Options struct {
	// Cron schedule; empty means daily at 02:00.
	Cron string
	// Period a thread may stay idle before it is purged.
	Period time.Duration
}

// Start launches the scheduler goroutine. It returns a cancel func, or an
// error when the cron expression does not parse.
func Start(ctx context.Context, st store.Store, opts Options) (context.CancelFunc, error) {
	cronExpr := opts.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", opts.Cron)
	}
	logger.Info("retention_enabled", "cron", cronExpr, "period", opts.Period.String())

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr, opts.Period)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and sweeps.
func runScheduler(ctx context.Context, st store.Store, cronExpr string, period time.Duration) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_next_tick_failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		case <-time.After(next.Sub(now)):
		}
		if err := SweepOnce(st, period); err != nil {
			logger.Error("retention_sweep_failed", "error", err)
		}
	}
}

// SweepOnce deletes every thread whose UpdatedAt is older than period.
// Exported so an operator trigger or test can run a sweep directly.
func SweepOnce(st store.Store, period time.Duration) error {
	threads, err := st.ListThreads()
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	cutoff := time.Now().UTC().Add(-period)
	purged := 0
	for _, t := range threads {
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		if err := st.DeleteThread(t.ID); err != nil {
			logger.Warn("retention_delete_failed", "thread", t.ID, "error", err)
			continue
		}
		purged++
	}
	logger.Info("retention_sweep_done", "scanned", len(threads), "purged", purged)
	return nil
}
