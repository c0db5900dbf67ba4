package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// runCron fires fn on spec until ctx is cancelled. Overlapping runs are
// skipped rather than queued.
func runCron(ctx context.Context, spec string, logger *slog.Logger, fn func(context.Context)) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { fn(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("started", "schedule", spec)

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("shut down")
	return nil
}

// validateSpec reports whether spec is a cron expression or descriptor the
// scheduler accepts.
func validateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}
