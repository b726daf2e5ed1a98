package refundd

import (
	"context"
	"sync"
	"time"
)

// CronLock serialises job runs. TryAcquire reports false without error when
// another run holds the lock.
type CronLock interface {
	TryAcquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// MemoryLock is a process-local CronLock whose leases expire after ttl.
type MemoryLock struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	held map[string]time.Time
}

// NewMemoryLock constructs a lock; a non-positive ttl means leases never expire.
func NewMemoryLock(ttl time.Duration) *MemoryLock {
	return &MemoryLock{ttl: ttl, now: time.Now, held: make(map[string]time.Time)}
}

// TryAcquire takes the named lease if it is free or expired.
func (l *MemoryLock) TryAcquire(_ context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expires, ok := l.held[name]; ok && (expires.IsZero() || now.Before(expires)) {
		return false, nil
	}
	var expires time.Time
	if l.ttl > 0 {
		expires = now.Add(l.ttl)
	}
	l.held[name] = expires
	return true, nil
}

// Release frees the named lease.
func (l *MemoryLock) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}
