package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySweepLocker_ExclusiveUntilUnlock(t *testing.T) {
	locker := NewMemorySweepLocker()
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "payments.sweep:a", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, "payments.sweep:a", time.Minute); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected held lock error, got %v", err)
	}
	if _, err := locker.Acquire(ctx, "payments.sweep:b", time.Minute); err != nil {
		t.Fatalf("expected independent key to be free: %v", err)
	}
	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := locker.Acquire(ctx, "payments.sweep:a", time.Minute); err != nil {
		t.Fatalf("expected lock to be free after unlock: %v", err)
	}
}

func TestMemorySweepLocker_ExpiredLockCanBeTakenOver(t *testing.T) {
	locker := NewMemorySweepLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	locker.nowFn = func() time.Time { return now }
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := locker.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("expected expired lock takeover: %v", err)
	}
	_ = stale.Unlock(ctx)
	if _, err := locker.Acquire(ctx, "k", time.Minute); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected stale unlock to leave the new holder in place, got %v", err)
	}
}

func TestSweepLockKey(t *testing.T) {
	if got := SweepLockKey(" billing "); got != "payments.sweep:billing" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := SweepLockKey(""); got != "payments.sweep:payments" {
		t.Fatalf("unexpected default lock key %q", got)
	}
}
