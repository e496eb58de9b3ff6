package ratetable

import (
	"context"
	"sync"
)

// MemorySource holds rate table rows in memory.
type MemorySource struct {
	mu        sync.RWMutex
	byAccount map[string][]Entry
}

// NewMemorySource constructs a MemorySource with entries.
func NewMemorySource(entries ...Entry) *MemorySource {
	s := &MemorySource{byAccount: make(map[string][]Entry)}
	for _, e := range entries {
		s.byAccount[e.CarrierAccountID] = append(s.byAccount[e.CarrierAccountID], e)
	}
	return s
}

// ListEntries returns copies of the rows for the given accounts.
func (s *MemorySource) ListEntries(ctx context.Context, accountIDs []string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, id := range accountIDs {
		out = append(out, s.byAccount[id]...)
	}
	return out, nil
}

// ReplaceAccount swaps the table of one account.
func (s *MemorySource) ReplaceAccount(ctx context.Context, accountID string, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]Entry, len(entries))
	copy(rows, entries)
	for i := range rows {
		rows[i].CarrierAccountID = accountID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccount[accountID] = rows
	return nil
}
