package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PurgeStale drops stored counters older than retention
func (d *Dispatcher) PurgeStale(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := dayKey(d.clock.Now().Add(-retention), d.loc)

	removed, err := d.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	d.logger.Info("purged stale usage counters",
		zap.Int64("rows_deleted", removed),
		zap.String("cutoff_day", cutoff))

	return removed, nil
}

// StartCleanupWorker purges stale counters every interval until ctx is done
func (d *Dispatcher) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("started usage cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := d.PurgeStale(ctx, retention); err != nil {
				d.logger.Error("failed to purge stale usage", zap.Error(err))
			}
		case <-ctx.Done():
			d.logger.Info("stopping usage cleanup worker")
			return
		}
	}
}
