package jobs

import (
	"context"
	"sync"

	"rateshop-backend/internal/shipping"
)

// MemoryResultStore keeps results in memory.
type MemoryResultStore struct {
	mu    sync.RWMutex
	byJob map[string][]shipping.ShipmentResult
}

// NewMemoryResultStore constructs a MemoryResultStore.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{byJob: make(map[string][]shipping.ShipmentResult)}
}

// Append merges the batch into the job's results.
func (s *MemoryResultStore) Append(ctx context.Context, jobID string, batch []shipping.ShipmentResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byJob[jobID] = mergeResults(s.byJob[jobID], batch)
	return nil
}

// List returns the job's results in write order.
func (s *MemoryResultStore) List(ctx context.Context, jobID string) ([]shipping.ShipmentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shipping.ShipmentResult, len(s.byJob[jobID]))
	copy(out, s.byJob[jobID])
	return out, nil
}

// ProcessedIDs returns the shipment ids stored for the job.
func (s *MemoryResultStore) ProcessedIDs(ctx context.Context, jobID string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return idSet(s.byJob[jobID]), nil
}
