// Package maintenance schedules background housekeeping: sweeping the
// classification cache and rolling the usage ledger up into daily rows.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper drops expired classification cache entries.
type Sweeper interface {
	Sweep() int
}

// Roller compacts the usage ledger.
type Roller interface {
	Rollup(ctx context.Context, retention time.Duration) error
}

const ledgerRetention = 30 * 24 * time.Hour

// Runner owns the cron scheduler.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New builds the scheduler with the standing jobs registered. roller may be
// nil when the ledger is disabled.
func New(sweeper Sweeper, roller Roller, logger *slog.Logger) (*Runner, error) {
	logger = logger.With("component", "maintenance")
	c := cron.New()

	_, err := c.AddFunc("@every 10m", func() {
		if dropped := sweeper.Sweep(); dropped > 0 {
			logger.Debug("cache sweep", "dropped", dropped)
		}
	})
	if err != nil {
		return nil, err
	}

	if roller != nil {
		_, err = c.AddFunc("@daily", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := roller.Rollup(ctx, ledgerRetention); err != nil {
				logger.Warn("ledger rollup failed", "error", err)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	return &Runner{cron: c, logger: logger}, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Debug("maintenance scheduler started")
	<-ctx.Done()

	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		r.logger.Warn("maintenance jobs did not stop in time")
	}
	return nil
}
