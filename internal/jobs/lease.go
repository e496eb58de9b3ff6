package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rateshop-backend/internal/shared/lock"
	"rateshop-backend/internal/shared/telemetry"
)

// leaseKeeper refreshes a job's writer lease in the background for the life
// of one pipeline run.
type leaseKeeper struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
	lost   error
}

// keepLease starts refreshing lease every third of its TTL. The returned
// context is canceled once the lease is lost; other refresh errors are
// retried on the next tick while the lease is still valid.
func (s *Service) keepLease(ctx context.Context, jobID string, lease lock.Lease) (context.Context, *leaseKeeper) {
	runCtx, cancel := context.WithCancelCause(ctx)
	k := &leaseKeeper{cancel: cancel, done: make(chan struct{})}
	ticker := s.clock().NewTicker(leaseRefreshInterval(s.leaseTTL()))

	go func() {
		defer close(k.done)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C():
			}
			err := lease.Refresh(runCtx)
			switch {
			case err == nil:
			case errors.Is(err, lock.ErrLeaseLost):
				k.lost = fmt.Errorf("refresh job lease: %w", err)
				cancel(k.lost)
				return
			case runCtx.Err() != nil:
				return
			default:
				telemetry.Warn("job.lease_refresh_failed", map[string]any{
					"request_id": requestIDFromContext(ctx),
					"job_id":     jobID,
					"error":      err,
				})
			}
		}
	}()
	return runCtx, k
}

// stop ends the refresh loop and returns the error that lost the lease, if any.
func (k *leaseKeeper) stop() error {
	k.cancel(nil)
	<-k.done
	return k.lost
}

func leaseRefreshInterval(ttl time.Duration) time.Duration {
	if d := ttl / 3; d > 0 {
		return d
	}
	return time.Second
}
