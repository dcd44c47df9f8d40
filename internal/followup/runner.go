package followup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner drives the periodic follow-up sweep.
type Runner struct {
	service  *Service
	cron     *cron.Cron
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a runner that sweeps every interval. A tick that fires
// while the previous sweep is still running is skipped.
func NewRunner(log *slog.Logger, service *Service, interval time.Duration) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	logger := log.With(slog.String("service", "followup-runner"))
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	return &Runner{
		service:  service,
		cron:     c,
		interval: interval,
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		if err := r.service.Sweep(context.Background()); err != nil {
			r.logger.Error("sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	r.cron.Start()
	r.logger.Info("follow-up sweep started", slog.Duration("interval", r.interval))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
