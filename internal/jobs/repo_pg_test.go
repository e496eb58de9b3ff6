package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"rateshop-backend/internal/shipping"
)

var jobColumnNames = []string{
	"id", "user_id", "status", "total_count", "processed_count", "carrier_account_ids",
	"error_message", "summary", "request_id", "created_at", "updated_at", "started_at", "completed_at",
}

func TestPGRepoCreateWritesJobAndInput(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "user-1", "pending", 1, 0, `["acct-a"]`, "req-1", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO job_inputs").
		WithArgs("job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := &PGRepo{DB: db}
	job := Job{
		ID:                "job-1",
		UserID:            "user-1",
		Status:            StatusPending,
		TotalCount:        1,
		CarrierAccountIDs: []string{"acct-a"},
		RequestID:         "req-1",
		CreatedAt:         now,
	}
	if err := repo.Create(context.Background(), job, []shipping.ShipmentInput{{ID: "s1", Zone: "2", WeightLbs: 1}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateRollsBackOnInputFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO job_inputs").WillReturnError(errors.New("too large"))
	mock.ExpectRollback()

	repo := &PGRepo{DB: db}
	err = repo.Create(context.Background(), Job{ID: "job-1", UserID: "user-1", Status: StatusPending}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDDecodesColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	rows := sqlmock.NewRows(jobColumnNames).
		AddRow("job-1", "user-1", "completed", 3, 3, `["acct-a","acct-b"]`, nil,
			`{"priced":2,"orphaned":1,"totalSavings":1.5}`, "req-1", now, now, now, now)
	mock.ExpectQuery("FROM jobs WHERE id").WithArgs("job-1").WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusCompleted || len(job.CarrierAccountIDs) != 2 || job.RequestID != "req-1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Summary == nil || job.Summary.Orphaned != 1 || job.Summary.TotalSavings != 1.5 {
		t.Fatalf("unexpected summary: %+v", job.Summary)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Fatalf("expected timestamps")
	}
}

func TestPGRepoTransitionGuardsSourceStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "completed", nil, `{"priced":1,"orphaned":0,"totalSavings":4}`, nil, at, at, "in_progress").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: db}
	err = repo.Transition(context.Background(), "job-1", StatusCompleted, StatusUpdate{
		Summary: &Summary{Priced: 1, TotalSavings: 4},
		At:      at,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionRejectsTerminalJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "failed", "boom", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), "pending", "in_progress").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM jobs WHERE id").WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobColumnNames).
			AddRow("job-1", "user-1", "completed", 1, 1, `[]`, nil, nil, nil, now, now, now, now))

	repo := &PGRepo{DB: db}
	err = repo.Transition(context.Background(), "job-1", StatusFailed, StatusUpdate{Error: "boom"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateProgress(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("GREATEST").
		WithArgs("job-1", 7, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: db}
	if err := repo.UpdateProgress(context.Background(), "job-1", 7); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
