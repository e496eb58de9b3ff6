package jobs

import (
	"context"

	"rateshop-backend/internal/shipping"
)

// Repo defines persistence operations for jobs and their submitted input.
type Repo interface {
	Create(ctx context.Context, job Job, input []shipping.ShipmentInput) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	GetInput(ctx context.Context, jobID string) ([]shipping.ShipmentInput, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Job, error)
	// Transition moves a job to a new status. It returns ErrInvalidTransition
	// when the current status does not allow it.
	Transition(ctx context.Context, jobID string, to Status, update StatusUpdate) error
	// UpdateProgress raises the processed count. Lower values are ignored.
	UpdateProgress(ctx context.Context, jobID string, processed int) error
}
