package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rateshop-backend/internal/queue"
	"rateshop-backend/internal/shared/telemetry"
)

// Dispatcher hands a freshly created job to whatever runs the pipeline.
// Dispatch must return without waiting for the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// InProcessDispatcher runs the pipeline on a detached goroutine.
type InProcessDispatcher struct {
	Process func(ctx context.Context, jobID string) error
}

// Dispatch starts the pipeline and returns immediately.
func (d InProcessDispatcher) Dispatch(ctx context.Context, job Job) error {
	if d.Process == nil {
		return errors.New("in-process dispatcher has no pipeline")
	}
	bg := backgroundWithRequestID(ctx)
	go func() {
		if err := d.Process(bg, job.ID); err != nil && !errors.Is(err, ErrJobLocked) {
			telemetry.Warn("job.process_error", map[string]any{
				"request_id": requestIDFromContext(bg),
				"job_id":     job.ID,
				"error":      err,
			})
		}
	}()
	return nil
}

// QueueDispatcher enqueues the job for a worker process.
type QueueDispatcher struct {
	Client queue.Client
	Now    func() time.Time
}

// Dispatch sends a queue message for the job.
func (d QueueDispatcher) Dispatch(ctx context.Context, job Job) error {
	if d.Client == nil {
		return errors.New("job queue not configured")
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	msg := queue.NewMessage(job.ID, requestIDFromContext(ctx), now())
	if err := d.Client.Send(ctx, msg); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	telemetry.Info("job.enqueued", map[string]any{
		"request_id": msg.RequestID,
		"job_id":     job.ID,
	})
	return nil
}
