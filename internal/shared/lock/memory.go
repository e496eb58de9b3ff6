package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// Memory is an in-process Locker.
type Memory struct {
	clock clockz.Clock

	mu   sync.Mutex
	held map[string]memoryEntry
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// NewMemory returns a Memory locker. A nil clock uses the real clock.
func NewMemory(clock clockz.Clock) *Memory {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Memory{clock: clock, held: make(map[string]memoryEntry)}
}

// Acquire implements Locker.
func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	m.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{m: m, key: key, token: token, ttl: ttl}, nil
}

type memoryLease struct {
	m     *Memory
	key   string
	token string
	ttl   time.Duration
}

func (l *memoryLease) Refresh(ctx context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	now := l.m.clock.Now()
	e, ok := l.m.held[l.key]
	if !ok || e.token != l.token || !now.Before(e.expires) {
		return ErrLeaseLost
	}
	e.expires = now.Add(l.ttl)
	l.m.held[l.key] = e
	return nil
}

func (l *memoryLease) Release(ctx context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if e, ok := l.m.held[l.key]; ok && e.token == l.token {
		delete(l.m.held, l.key)
	}
	return nil
}
