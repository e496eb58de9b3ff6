package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedJob(t *testing.T, repo Repo, id string, createdAt time.Time) Job {
	t.Helper()
	job := Job{
		ID:         id,
		UserID:     testUser,
		Status:     StatusPending,
		TotalCount: 3,
		CreatedAt:  createdAt,
	}
	if err := repo.Create(context.Background(), job, nil); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestMemoryRepoTransitionsOnlyMoveForward(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seedJob(t, repo, "job-1", time.Now().UTC())

	if err := repo.Transition(ctx, "job-1", StatusCompleted, StatusUpdate{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending->completed, got %v", err)
	}
	if err := repo.Transition(ctx, "job-1", StatusInProgress, StatusUpdate{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	summary := &Summary{Priced: 3, TotalSavings: 1.5}
	if err := repo.Transition(ctx, "job-1", StatusCompleted, StatusUpdate{Summary: summary}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.Transition(ctx, "job-1", StatusFailed, StatusUpdate{Error: "late"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal job to stay terminal, got %v", err)
	}

	job, err := repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusCompleted || job.Error != "" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Fatalf("expected timestamps, got %+v", job)
	}
	if job.Summary == nil || job.Summary.Priced != 3 {
		t.Fatalf("expected summary, got %+v", job.Summary)
	}

	if err := repo.Transition(ctx, "missing", StatusInProgress, StatusUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoProgressIsMonotonicAndCapped(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seedJob(t, repo, "job-1", time.Now().UTC())

	for _, n := range []int{2, 1, 9} {
		if err := repo.UpdateProgress(ctx, "job-1", n); err != nil {
			t.Fatalf("update progress %d: %v", n, err)
		}
	}
	job, _ := repo.GetByID(ctx, "job-1")
	if job.ProcessedCount != 3 {
		t.Fatalf("expected processed capped at 3, got %d", job.ProcessedCount)
	}
}

func TestMemoryRepoListByUserNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedJob(t, repo, "old", base)
	seedJob(t, repo, "new", base.Add(time.Hour))
	if err := repo.Create(context.Background(), Job{ID: "other", UserID: "user-2", CreatedAt: base}, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	jobs, err := repo.ListByUser(context.Background(), testUser, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "new" || jobs[1].ID != "old" {
		t.Fatalf("unexpected order: %+v", jobs)
	}

	page, _ := repo.ListByUser(context.Background(), testUser, 1, 1)
	if len(page) != 1 || page[0].ID != "old" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
