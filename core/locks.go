package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultSweepLockTTL = 5 * time.Minute

// SweepLockKey scopes the sweep lock to one deployment.
func SweepLockKey(serviceName string) string {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "payments"
	}
	return "payments.sweep:" + serviceName
}

// MemorySweepLocker guards sweeps within a single process. Deployments with
// more than one replica should use a shared locker.
type MemorySweepLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
	nowFn func() time.Time
	seq   uint64
}

type memoryLockEntry struct {
	until time.Time
	token uint64
}

func NewMemorySweepLocker() *MemorySweepLocker {
	return &MemorySweepLocker{
		locks: make(map[string]memoryLockEntry),
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

	if entry, ok := l.locks[key]; ok && now.Before(entry.until) {
		return nil, fmt.Errorf("%w: lock %q already held", ErrSweepInProgress, key)
	}
	l.seq++
	l.locks[key] = memoryLockEntry{until: now.Add(ttl), token: l.seq}
	return &memoryLockHandle{locker: l, key: key, token: l.seq}, nil
}

type memoryLockHandle struct {
	locker *MemorySweepLocker
	key    string
	token  uint64
	once   sync.Once
}

// Unlock releases the lock only if it still belongs to this handle; an
// expired lock that was taken over is left alone.
func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		if entry, ok := h.locker.locks[h.key]; ok && entry.token == h.token {
			delete(h.locker.locks, h.key)
		}
	})
	return nil
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
