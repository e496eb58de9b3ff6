package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"rateshop-backend/internal/shipping"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Job
	inputs map[string][]shipping.ShipmentInput
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Job),
		inputs: make(map[string][]shipping.ShipmentInput),
	}
}

// Create stores the job and its input.
func (r *MemoryRepo) Create(ctx context.Context, job Job, input []shipping.ShipmentInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	r.byID[job.ID] = job
	copied := make([]shipping.ShipmentInput, len(input))
	copy(copied, input)
	r.inputs[job.ID] = copied
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// GetInput returns the shipments submitted with a job.
func (r *MemoryRepo) GetInput(ctx context.Context, jobID string) ([]shipping.ShipmentInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	input, ok := r.inputs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]shipping.ShipmentInput, len(input))
	copy(out, input)
	return out, nil
}

// ListByUser returns jobs for a user, newest first, with limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	var jobs []Job
	for _, job := range r.byID {
		if job.UserID == userID {
			jobs = append(jobs, job)
		}
	}
	r.mu.RUnlock()

	if len(jobs) == 0 || offset >= len(jobs) {
		return []Job{}, nil
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	end := len(jobs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return jobs[offset:end], nil
}

// Transition moves a job forward in its lifecycle.
func (r *MemoryRepo) Transition(ctx context.Context, jobID string, to Status, update StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(job.Status, to) {
		return ErrInvalidTransition
	}
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	job.Status = to
	if update.Error != "" {
		job.Error = update.Error
	}
	if update.Summary != nil {
		summary := *update.Summary
		job.Summary = &summary
	}
	if to == StatusInProgress && job.StartedAt == nil {
		job.StartedAt = &at
	}
	if to.Terminal() {
		job.CompletedAt = &at
	}
	job.UpdatedAt = at
	r.byID[jobID] = job
	return nil
}

// UpdateProgress raises the processed count, capped at the job total.
func (r *MemoryRepo) UpdateProgress(ctx context.Context, jobID string, processed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if processed > job.TotalCount {
		processed = job.TotalCount
	}
	if processed > job.ProcessedCount {
		job.ProcessedCount = processed
		job.UpdatedAt = time.Now().UTC()
		r.byID[jobID] = job
	}
	return nil
}
