package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/ratetable"
	"rateshop-backend/internal/rating"
	"rateshop-backend/internal/shared/lock"
	"rateshop-backend/internal/shared/metrics"
	"rateshop-backend/internal/shared/telemetry"
	"rateshop-backend/internal/shipping"
)

const (
	DefaultConcurrency  = 8
	DefaultMaxShipments = 50000
	DefaultLeaseTTL     = 10 * time.Minute
)

// Options tunes the pipeline.
type Options struct {
	Concurrency        int
	BatchSize          int
	BatchTimeout       time.Duration
	MaxPersistFailures int
	MaxShipments       int
	LeaseTTL           time.Duration
}

// Service is the job orchestrator: it accepts submissions, reports status and
// drives the rate-shopping pipeline for each job.
type Service struct {
	Repo       Repo
	Store      ResultStore
	Accounts   carriers.Repo
	Rates      ratetable.Source
	Quoter     rating.Quoter
	Locker     lock.Locker
	Dispatcher Dispatcher
	Clock      clockz.Clock
	Options    Options

	defaultLockOnce sync.Once
	defaultLock     *lock.Memory
}

func (s *Service) clock() clockz.Clock {
	if s.Clock == nil {
		return clockz.RealClock
	}
	return s.Clock
}

func (s *Service) dispatcher() Dispatcher {
	if s.Dispatcher == nil {
		return InProcessDispatcher{Process: s.Process}
	}
	return s.Dispatcher
}

func (s *Service) maxShipments() int {
	if s.Options.MaxShipments <= 0 {
		return DefaultMaxShipments
	}
	return s.Options.MaxShipments
}

// Submit validates the request, stores a pending job with its input and
// dispatches it. It returns as soon as the job is dispatched.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (Job, error) {
	if strings.TrimSpace(userID) == "" {
		return Job{}, errors.New("userID is required")
	}
	shipments, err := s.validateShipments(req.Shipments)
	if err != nil {
		return Job{}, err
	}
	accountIDs, err := s.validateAccounts(ctx, userID, req.CarrierAccountIDs)
	if err != nil {
		return Job{}, err
	}

	now := s.clock().Now().UTC()
	job := Job{
		ID:                uuid.NewString(),
		UserID:            userID,
		Status:            StatusPending,
		TotalCount:        len(shipments),
		CarrierAccountIDs: accountIDs,
		RequestID:         requestIDFromContext(ctx),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.Repo.Create(ctx, job, shipments); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	metrics.JobEvent(string(StatusPending))
	telemetry.Info("job.status", map[string]any{
		"request_id":  job.RequestID,
		"user_id":     userID,
		"job_id":      job.ID,
		"status":      StatusPending,
		"total_count": job.TotalCount,
		"accounts":    len(accountIDs),
	})

	if err := s.dispatcher().Dispatch(ctx, job); err != nil {
		diag := sanitizeError(fmt.Errorf("dispatch: %w", err))
		if tErr := s.Repo.Transition(context.Background(), job.ID, StatusFailed, StatusUpdate{Error: diag, At: s.clock().Now().UTC()}); tErr != nil {
			telemetry.Error("job.transition_failed", map[string]any{"job_id": job.ID, "error": tErr})
		}
		metrics.JobEvent(string(StatusFailed))
		logTransition(ctx, job, StatusPending, StatusFailed, map[string]any{"error": diag})
		return Job{}, err
	}
	return job, nil
}

func (s *Service) validateShipments(in []shipping.ShipmentInput) ([]shipping.ShipmentInput, error) {
	if len(in) == 0 {
		return nil, &ValidationError{Field: "shipments", Issue: "required"}
	}
	if limit := s.maxShipments(); len(in) > limit {
		return nil, &ValidationError{Field: "shipments", Issue: "exceeds limit of " + strconv.Itoa(limit)}
	}
	out := make([]shipping.ShipmentInput, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, sh := range in {
		sh.ID = strings.TrimSpace(sh.ID)
		if sh.ID == "" {
			sh.ID = "row-" + strconv.Itoa(i+1)
		}
		if _, dup := seen[sh.ID]; dup {
			return nil, &ValidationError{Field: fmt.Sprintf("shipments[%d].id", i), Issue: "duplicate"}
		}
		seen[sh.ID] = struct{}{}
		out[i] = sh
	}
	return out, nil
}

func (s *Service) validateAccounts(ctx context.Context, userID string, raw []string) ([]string, error) {
	ids := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "carrierAccountIds", Issue: "required"}
	}
	accounts, err := s.Accounts.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load carrier accounts: %w", err)
	}
	found := make(map[string]carriers.Account, len(accounts))
	for _, a := range accounts {
		found[a.ID] = a
	}
	for _, id := range ids {
		a, ok := found[id]
		if !ok || !a.VisibleTo(userID) {
			return nil, &ValidationError{Field: "carrierAccountIds", Issue: "unknown account " + id}
		}
	}
	return ids, nil
}

// Get returns a job owned by userID. Jobs of other owners are reported as
// not found.
func (s *Service) Get(ctx context.Context, userID, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.New("jobID is required")
	}
	if !validJobID(jobID) {
		return Job{}, ErrNotFound
	}
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.UserID != userID {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// validJobID reports whether id can name a job. Job ids are UUIDs, and the
// jobs table rejects anything else with a cast error.
func validJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetStatus returns the polling view of a job.
func (s *Service) GetStatus(ctx context.Context, userID, jobID string) (StatusView, error) {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return StatusView{}, err
	}
	return job.View(), nil
}

// List returns jobs for a user ordered newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Job, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// Results returns the persisted results of a job, split into priced and
// orphaned shipments. Results of a running job are partial.
func (s *Service) Results(ctx context.Context, userID, jobID string) (ResultSet, error) {
	if _, err := s.Get(ctx, userID, jobID); err != nil {
		return ResultSet{}, err
	}
	all, err := s.Store.List(ctx, jobID)
	if err != nil {
		return ResultSet{}, fmt.Errorf("list results: %w", err)
	}
	return splitResults(all), nil
}

func logTransition(ctx context.Context, job Job, from, to Status, extra map[string]any) {
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           job.UserID,
		"job_id":            job.ID,
		"status":            to,
		"status_transition": string(from) + "->" + string(to),
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("job.status", fields)
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
