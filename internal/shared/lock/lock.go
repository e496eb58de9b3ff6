// Package lock provides per-key writer leases so only one process works on a
// job at a time.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLocked is returned by Acquire when another holder owns the key.
	ErrLocked = errors.New("lock held by another owner")
	// ErrLeaseLost is returned when a lease expired or was taken over.
	ErrLeaseLost = errors.New("lease lost")
)

// Lease is an acquired lock.
type Lease interface {
	// Refresh extends the lease by its original TTL.
	Refresh(ctx context.Context) error
	// Release gives the lock up. Releasing a lost lease is not an error.
	Release(ctx context.Context) error
}

// Locker hands out leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
