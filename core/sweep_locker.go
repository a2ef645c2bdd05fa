package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultSweepLockTTL = time.Minute

// MemorySweepLocker is a process-local SweepLocker. Deployments running more
// than one sweeper use a shared lock such as adapters/redislock.
type MemorySweepLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLease
	seq   uint64
	nowFn func() time.Time
}

type memoryLease struct {
	token uint64
	until time.Time
}

func NewMemorySweepLocker() *MemorySweepLocker {
	return &MemorySweepLocker{
		locks: make(map[string]memoryLease),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemorySweepLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: sweep locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultSweepLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.locks[key]; ok && now.Before(lease.until) {
		return nil, fmt.Errorf("%w: %q", ErrSweepLocked, key)
	}
	l.seq++
	l.locks[key] = memoryLease{token: l.seq, until: now.Add(ttl)}
	return &memoryLockHandle{locker: l, key: key, token: l.seq}, nil
}

type memoryLockHandle struct {
	locker *MemorySweepLocker
	key    string
	token  uint64
	once   sync.Once
}

// Unlock releases the lease only if it still belongs to this handle.
func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		if lease, ok := h.locker.locks[h.key]; ok && lease.token == h.token {
			delete(h.locker.locks, h.key)
		}
	})
	return nil
}
