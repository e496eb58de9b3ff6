package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rateshop-backend/internal/shipping"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `id, user_id, status, total_count, processed_count, carrier_account_ids,
       error_message, summary, request_id, created_at, updated_at, started_at, completed_at`

// Create inserts a job and its input payload in one transaction.
func (r *PGRepo) Create(ctx context.Context, job Job, input []shipping.ShipmentInput) error {
	accountIDs, err := json.Marshal(job.CarrierAccountIDs)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const insertJob = `
INSERT INTO jobs (id, user_id, status, total_count, processed_count, carrier_account_ids, request_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.ExecContext(ctx, insertJob,
		job.ID,
		job.UserID,
		string(job.Status),
		job.TotalCount,
		job.ProcessedCount,
		string(accountIDs),
		nullString(job.RequestID),
		job.CreatedAt,
		job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO job_inputs (job_id, shipments) VALUES ($1, $2)`, job.ID, string(payload)); err != nil {
		return fmt.Errorf("insert job input: %w", err)
	}
	return tx.Commit()
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// GetInput returns the shipments submitted with a job.
func (r *PGRepo) GetInput(ctx context.Context, jobID string) ([]shipping.ShipmentInput, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT shipments FROM job_inputs WHERE job_id = $1`, jobID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var input []shipping.ShipmentInput
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("decode job input: %w", err)
	}
	return input, nil
}

// ListByUser returns jobs for a user ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + jobColumns + `
FROM jobs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Transition moves a job forward. The WHERE clause only matches statuses
// that may precede the target, so concurrent writers cannot move a terminal
// job backward.
func (r *PGRepo) Transition(ctx context.Context, jobID string, to Status, update StatusUpdate) error {
	from := sourcesFor(to)
	if len(from) == 0 {
		return ErrInvalidTransition
	}
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var summary any
	if update.Summary != nil {
		payload, err := json.Marshal(update.Summary)
		if err != nil {
			return err
		}
		summary = string(payload)
	}
	var startedAt, completedAt any
	if to == StatusInProgress {
		startedAt = at
	}
	if to.Terminal() {
		completedAt = at
	}

	args := []any{jobID, string(to), nullString(update.Error), summary, startedAt, completedAt, at}
	placeholders := make([]string, len(from))
	for i, s := range from {
		args = append(args, string(s))
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := `
UPDATE jobs
SET status = $2,
    error_message = COALESCE($3, error_message),
    summary = COALESCE($4, summary),
    started_at = COALESCE(started_at, $5),
    completed_at = COALESCE($6, completed_at),
    updated_at = $7
WHERE id = $1 AND status IN (` + strings.Join(placeholders, ", ") + `)`
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, jobID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// UpdateProgress raises processed_count without ever lowering it.
func (r *PGRepo) UpdateProgress(ctx context.Context, jobID string, processed int) error {
	const query = `
UPDATE jobs
SET processed_count = LEAST(GREATEST(processed_count, $2), total_count),
    updated_at = $3
WHERE id = $1`
	_, err := r.DB.ExecContext(ctx, query, jobID, processed, time.Now().UTC())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var job Job
	var status string
	var accountIDs string
	var errorMessage sql.NullString
	var summary sql.NullString
	var requestID sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&status,
		&job.TotalCount,
		&job.ProcessedCount,
		&accountIDs,
		&errorMessage,
		&summary,
		&requestID,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	if accountIDs != "" {
		if err := json.Unmarshal([]byte(accountIDs), &job.CarrierAccountIDs); err != nil {
			return Job{}, fmt.Errorf("decode carrier_account_ids: %w", err)
		}
	}
	if errorMessage.Valid {
		job.Error = errorMessage.String
	}
	if summary.Valid && summary.String != "" {
		var s Summary
		if err := json.Unmarshal([]byte(summary.String), &s); err == nil {
			job.Summary = &s
		}
	}
	if requestID.Valid {
		job.RequestID = requestID.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
