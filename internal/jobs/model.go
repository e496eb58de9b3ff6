package jobs

import (
	"time"

	"rateshop-backend/internal/shipping"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Statuses only move forward; terminal statuses are final.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusFailed
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// sourcesFor lists the statuses a job may be in before moving to `to`.
func sourcesFor(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Job is one bulk rate-shopping run.
type Job struct {
	ID                string     `json:"jobId"`
	UserID            string     `json:"userId"`
	Status            Status     `json:"status"`
	TotalCount        int        `json:"totalCount"`
	ProcessedCount    int        `json:"processedCount"`
	CarrierAccountIDs []string   `json:"carrierAccountIds"`
	Summary           *Summary   `json:"summary,omitempty"`
	Error             string     `json:"error,omitempty"`
	RequestID         string     `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// Summary aggregates the results of a completed job.
type Summary struct {
	Priced       int     `json:"priced"`
	Orphaned     int     `json:"orphaned"`
	TotalSavings float64 `json:"totalSavings"`
}

// Summarize totals a result set. Negative savings are included as-is.
func Summarize(results []shipping.ShipmentResult) Summary {
	var s Summary
	for _, r := range results {
		if r.Orphaned {
			s.Orphaned++
			continue
		}
		s.Priced++
		if r.Savings != nil {
			s.TotalSavings += *r.Savings
		}
	}
	return s
}

// StatusUpdate carries the fields written alongside a status transition.
type StatusUpdate struct {
	Error   string
	Summary *Summary
	At      time.Time
}

// StatusView is the polling response for a job.
type StatusView struct {
	JobID          string   `json:"jobId"`
	Status         Status   `json:"status"`
	ProcessedCount int      `json:"processedCount"`
	TotalCount     int      `json:"totalCount"`
	Error          string   `json:"error,omitempty"`
	Summary        *Summary `json:"summary,omitempty"`
}

// View projects a job onto its polling response.
func (j Job) View() StatusView {
	return StatusView{
		JobID:          j.ID,
		Status:         j.Status,
		ProcessedCount: j.ProcessedCount,
		TotalCount:     j.TotalCount,
		Error:          j.Error,
		Summary:        j.Summary,
	}
}

// SubmitRequest is the body of a job submission.
type SubmitRequest struct {
	Shipments         []shipping.ShipmentInput `json:"shipments"`
	CarrierAccountIDs []string                 `json:"carrierAccountIds"`
}

// ResultSet splits persisted results into priced and orphaned shipments.
type ResultSet struct {
	Results []shipping.ShipmentResult `json:"results"`
	Orphans []shipping.ShipmentResult `json:"orphans"`
}

func splitResults(all []shipping.ShipmentResult) ResultSet {
	set := ResultSet{
		Results: make([]shipping.ShipmentResult, 0, len(all)),
		Orphans: make([]shipping.ShipmentResult, 0),
	}
	for _, r := range all {
		if r.Orphaned {
			set.Orphans = append(set.Orphans, r)
		} else {
			set.Results = append(set.Results, r)
		}
	}
	return set
}
