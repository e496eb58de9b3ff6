package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"rateshop-backend/internal/concurrency"
	"rateshop-backend/internal/persister"
	"rateshop-backend/internal/ratetable"
	"rateshop-backend/internal/shared/lock"
	"rateshop-backend/internal/shared/metrics"
	"rateshop-backend/internal/shared/telemetry"
)

// Process runs the rate-shopping pipeline for one job. It holds the job's
// writer lease for the whole run, refreshing it in the background, so at
// most one persister is active per job. Losing the lease stops the run and
// returns ErrJobLocked without touching the job's status.
// Terminal jobs are left untouched, and an in-progress job resumes by
// skipping shipments that already have results. Process returns nil once
// the outcome is recorded on the job, including a failed outcome.
func (s *Service) Process(ctx context.Context, jobID string) error {
	if !validJobID(jobID) {
		return fmt.Errorf("load job %q: %w", jobID, ErrNotFound)
	}
	lease, err := s.locker().Acquire(ctx, "job:"+jobID, s.leaseTTL())
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return ErrJobLocked
		}
		return fmt.Errorf("acquire job lease: %w", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			telemetry.Warn("job.lease_release_failed", map[string]any{"job_id": jobID, "error": err})
		}
	}()

	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.RequestID != "" && requestIDFromContext(ctx) == "" {
		ctx = withRequestID(ctx, job.RequestID)
	}
	if job.Status.Terminal() {
		telemetry.Info("job.skip_terminal", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     job.ID,
			"status":     job.Status,
		})
		return nil
	}

	startedAt := s.clock().Now().UTC()
	if job.Status == StatusPending {
		if err := s.Repo.Transition(ctx, job.ID, StatusInProgress, StatusUpdate{At: startedAt}); err != nil {
			return fmt.Errorf("start job: %w", err)
		}
		metrics.JobEvent(string(StatusInProgress))
		logTransition(ctx, job, StatusPending, StatusInProgress, map[string]any{"total_count": job.TotalCount})
	} else {
		telemetry.Info("job.resume", map[string]any{
			"request_id":      requestIDFromContext(ctx),
			"job_id":          job.ID,
			"processed_count": job.ProcessedCount,
			"total_count":     job.TotalCount,
		})
	}

	runCtx, keeper := s.keepLease(ctx, job.ID, lease)
	summary, err := s.runPipeline(runCtx, job)
	if lost := keeper.stop(); lost != nil {
		// another writer may own the job now; leave its status alone
		telemetry.Warn("job.lease_lost", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     job.ID,
			"error":      lost,
		})
		return fmt.Errorf("job %s: %w: %w", job.ID, ErrJobLocked, lost)
	}
	if err != nil {
		if ctx.Err() != nil {
			// shutdown; the job stays in progress and resumes on redelivery
			return fmt.Errorf("job %s interrupted: %w", job.ID, err)
		}
		return s.failJob(ctx, job, err, startedAt)
	}
	return s.completeJob(ctx, job, summary, startedAt)
}

func (s *Service) runPipeline(ctx context.Context, job Job) (summary Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("job.pipeline_panic", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"job_id":     job.ID,
				"error":      fmt.Sprint(r),
				"stack":      string(debug.Stack()),
			})
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	input, err := s.Repo.GetInput(ctx, job.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("load job input: %w", err)
	}
	accounts, err := s.Accounts.GetMany(ctx, job.CarrierAccountIDs)
	if err != nil {
		return Summary{}, fmt.Errorf("load carrier accounts: %w", err)
	}
	if len(accounts) == 0 {
		return Summary{}, errors.New("load carrier accounts: none of the job's accounts exist")
	}
	var cardIDs []string
	for _, a := range accounts {
		if a.UsesRateCard() {
			cardIDs = append(cardIDs, a.ID)
		}
	}
	store := ratetable.NewStore(nil)
	if len(cardIDs) > 0 {
		if s.Rates == nil {
			return Summary{}, errors.New("load rate tables: no rate table source configured")
		}
		store, err = ratetable.Load(ctx, s.Rates, cardIDs)
		if err != nil {
			return Summary{}, fmt.Errorf("load rate tables: %w", err)
		}
	}
	done, err := s.Store.ProcessedIDs(ctx, job.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("load persisted results: %w", err)
	}

	pending := make([]indexedShipment, 0, len(input))
	for i, sh := range input {
		if _, ok := done[sh.ID]; ok {
			continue
		}
		pending = append(pending, indexedShipment{index: i, shipment: sh})
	}
	var processed atomic.Int64
	processed.Store(int64(len(input) - len(pending)))
	if skipped := len(input) - len(pending); skipped > 0 {
		telemetry.Info("job.resume_skip", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     job.ID,
			"skipped":    skipped,
		})
		if err := s.Repo.UpdateProgress(ctx, job.ID, skipped); err != nil {
			return Summary{}, fmt.Errorf("update progress: %w", err)
		}
	}

	rc := &rateContext{
		jobID:     job.ID,
		requestID: requestIDFromContext(ctx),
		accounts:  accounts,
		resolver:  ratetable.Resolver{Store: store},
		quoter:    s.Quoter,
	}
	p := persister.New(job.ID, s.Store, persister.Options{
		BatchSize:    s.Options.BatchSize,
		BatchTimeout: s.Options.BatchTimeout,
		MaxFailures:  s.Options.MaxPersistFailures,
		Clock:        s.clock(),
	})
	defer p.Close()

	_, err = concurrency.Run(ctx, pending, func(ctx context.Context, item indexedShipment) (struct{}, error) {
		result := rc.price(ctx, item)
		p.Add(result)
		if result.Orphaned {
			metrics.ShipmentProcessed("orphaned")
		} else {
			metrics.ShipmentProcessed("priced")
		}
		n := processed.Add(1)
		if err := s.Repo.UpdateProgress(ctx, job.ID, int(n)); err != nil {
			telemetry.Warn("job.progress_update_failed", map[string]any{
				"request_id": rc.requestID,
				"job_id":     job.ID,
				"error":      err,
			})
		}
		return struct{}{}, nil
	}, concurrency.Options{
		Limit: s.concurrency(),
		AfterChunk: func(int) error {
			return p.Err()
		},
	})
	if err != nil {
		return Summary{}, err
	}

	if err := finalFlush(ctx, p, s.Options.MaxPersistFailures); err != nil {
		return Summary{}, err
	}
	if err := s.Repo.UpdateProgress(ctx, job.ID, len(input)); err != nil {
		return Summary{}, fmt.Errorf("update progress: %w", err)
	}
	results, err := s.Store.List(ctx, job.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("list results: %w", err)
	}
	return Summarize(results), nil
}

// finalFlush writes whatever is still buffered. A failed write is retried
// until the persister reports a persistent StorageError.
func finalFlush(ctx context.Context, p *persister.Persister, maxFailures int) error {
	if maxFailures <= 0 {
		maxFailures = persister.DefaultMaxFailures
	}
	var err error
	for attempt := 0; attempt < maxFailures; attempt++ {
		if err = p.Flush(ctx); err == nil {
			return nil
		}
		if perr := p.Err(); perr != nil {
			return perr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (s *Service) completeJob(ctx context.Context, job Job, summary Summary, startedAt time.Time) error {
	completedAt := s.clock().Now().UTC()
	if err := s.Repo.Transition(ctx, job.ID, StatusCompleted, StatusUpdate{Summary: &summary, At: completedAt}); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	metrics.JobEvent(string(StatusCompleted))
	metrics.ObserveJobDuration(completedAt.Sub(startedAt).Seconds())
	logTransition(ctx, job, StatusInProgress, StatusCompleted, map[string]any{
		"duration_ms":   durationMs(startedAt, completedAt),
		"priced":        summary.Priced,
		"orphaned":      summary.Orphaned,
		"total_savings": summary.TotalSavings,
	})
	return nil
}

func (s *Service) failJob(ctx context.Context, job Job, cause error, startedAt time.Time) error {
	diag := sanitizeError(cause)
	completedAt := s.clock().Now().UTC()
	if err := s.Repo.Transition(context.Background(), job.ID, StatusFailed, StatusUpdate{Error: diag, At: completedAt}); err != nil {
		telemetry.Error("job.transition_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     job.ID,
			"error":      err,
			"cause":      diag,
		})
		return fmt.Errorf("mark job failed: %w (cause: %v)", err, cause)
	}
	metrics.JobEvent(string(StatusFailed))
	metrics.ObserveJobDuration(completedAt.Sub(startedAt).Seconds())
	logTransition(ctx, job, StatusInProgress, StatusFailed, map[string]any{
		"duration_ms": durationMs(startedAt, completedAt),
		"error":       diag,
	})
	return nil
}

func (s *Service) locker() lock.Locker {
	if s.Locker != nil {
		return s.Locker
	}
	s.defaultLockOnce.Do(func() {
		s.defaultLock = lock.NewMemory(s.clock())
	})
	return s.defaultLock
}

func (s *Service) leaseTTL() time.Duration {
	if s.Options.LeaseTTL <= 0 {
		return DefaultLeaseTTL
	}
	return s.Options.LeaseTTL
}

func (s *Service) concurrency() int {
	if s.Options.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Options.Concurrency
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}

var _ persister.Sink = ResultStore(nil)
