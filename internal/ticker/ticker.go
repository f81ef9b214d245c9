package ticker

import (
	"context"
	"log/slog"
	"time"
)

// Every runs task at each interval until ctx is done. A failing task is logged and retried at the
// next tick rather than stopping the loop. Returns ctx.Err().
func Every(ctx context.Context, interval time.Duration, logger *slog.Logger, name string, task func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := task(ctx); err != nil {
				logger.Warn("periodic task failed", "task", name, "err", err)
			}
		}
	}
}
