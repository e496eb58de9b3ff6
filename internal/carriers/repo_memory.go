package carriers

import (
	"context"
	"sync"
)

// MemoryRepo stores carrier accounts in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Account
}

// NewMemoryRepo constructs a MemoryRepo seeded with accounts.
func NewMemoryRepo(accounts ...Account) *MemoryRepo {
	r := &MemoryRepo{byID: make(map[string]Account)}
	for _, a := range accounts {
		a = a.Normalize()
		r.byID[a.ID] = a
	}
	return r
}

// Get returns an account by id.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

// GetMany returns the accounts that exist, in the order of ids.
func (r *MemoryRepo) GetMany(ctx context.Context, ids []string) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Upsert stores or replaces an account.
func (r *MemoryRepo) Upsert(ctx context.Context, account Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	account = account.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[account.ID] = account
	return nil
}
