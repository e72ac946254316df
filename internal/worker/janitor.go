package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LeaseReaper returns expired in-flight queue entries to pending.
type LeaseReaper interface {
	RequeueExpired(ctx context.Context) (int, error)
}

// RecordSweeper ages out completed job records.
type RecordSweeper interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunReaper polls for expired leases until ctx is cancelled. A worker that
// died mid-job never acked its entry; requeueing it here is the system's
// only crash-recovery path.
func RunReaper(ctx context.Context, q LeaseReaper, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			moved, err := q.RequeueExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("reaper: requeue expired failed")
				continue
			}
			if moved > 0 {
				logger.Info().Int("requeued", moved).Msg("reaper: returned expired leases to pending")
			}
		}
	}
}

// RunSweeper deletes completed records older than retention on every
// interval tick. Failed records are kept; the sweep query never touches
// them. Remote artifacts live on their own expiry, so a sweep cannot break
// an in-flight download.
func RunSweeper(ctx context.Context, store RecordSweeper, interval, retention time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteCompletedBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error().Err(err).Msg("sweeper: record sweep failed")
				continue
			}
			if removed > 0 {
				logger.Info().Int64("removed", removed).Msg("sweeper: aged out completed records")
			}
		}
	}
}
