// Package ratelimit throttles callers per key with token buckets.
package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
	"golang.org/x/time/rate"
)

const (
	DefaultRate  = rate.Limit(1)
	DefaultBurst = 5
	// DefaultIdleTTL is how long an untouched bucket is kept before pruning.
	DefaultIdleTTL = 10 * time.Minute

	pruneThreshold = 1024
)

type ThrottledError struct {
	Scope      string
	Key        string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: %s %q throttled for %s",
		strings.TrimSpace(e.Scope),
		strings.TrimSpace(e.Key),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"scope": strings.TrimSpace(e.Scope),
		"key":   strings.TrimSpace(e.Key),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

type Config struct {
	Scope   string
	Rate    rate.Limit
	Burst   int
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one token bucket per key, e.g. per user reference.
type KeyedLimiter struct {
	cfg Config
	Now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewKeyedLimiter(cfg Config) *KeyedLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if strings.TrimSpace(cfg.Scope) == "" {
		cfg.Scope = "caller"
	}
	return &KeyedLimiter{
		cfg:     cfg,
		Now:     func() time.Time { return time.Now().UTC() },
		buckets: map[string]*bucket{},
	}
}

// Allow takes one token for key or returns a ThrottledError carrying the
// wait until the next token.
func (l *KeyedLimiter) Allow(key string) error {
	if l == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	now := l.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneThreshold {
			l.pruneLocked(now)
		}
		entry = &bucket{limiter: rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)}
		l.buckets[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return ThrottledError{Scope: l.cfg.Scope, Key: key}
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return ThrottledError{Scope: l.cfg.Scope, Key: key, RetryAfter: delay}
	}
	return nil
}

func (l *KeyedLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) > l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
}
