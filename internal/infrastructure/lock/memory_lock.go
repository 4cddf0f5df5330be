package lock

import (
	"context"
	"sync"
	"time"

	"PageVault/internal/ports"
)

// MemoryLock is a keyed mutex with TTL expiry, backed by an in-process map.
// A multi-worker deployment would swap in a shared key-value store behind
// the same port.
type MemoryLock struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

var _ ports.KeyedLock = (*MemoryLock)(nil)

// NewMemoryLock builds an empty lock table.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		expires: map[string]time.Time{},
		now:     time.Now,
	}
}

// Acquire takes the lock when it is free or its previous holder's TTL has
// expired. It returns false immediately on contention; it never blocks.
func (l *MemoryLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, held := l.expires[key]; held && now.Before(expiry) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	return true, nil
}

// Release frees the lock. Releasing an unheld key is a no-op.
func (l *MemoryLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, key)
	return nil
}
