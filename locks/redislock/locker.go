// Package redislock provides a core.SweepLocker backed by Redis so only one
// replica sweeps at a time.
package redislock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the slice of redis.UniversalClient used by the locker.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

type Locker struct {
	client Client
	prefix string
}

type Option func(*Locker)

// WithKeyPrefix namespaces lock keys, e.g. per environment.
func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = strings.TrimSpace(prefix)
	}
}

func New(client Client, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("redislock: redis client is required")
	}
	locker := &Locker{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(locker)
		}
	}
	return locker, nil
}

// NewFromURL parses a redis:// URL and pings the server.
func NewFromURL(ctx context.Context, redisURL string, opts ...Option) (*Locker, *redis.Client, error) {
	options, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, nil, fmt.Errorf("redislock: invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redislock: ping redis: %w", err)
	}
	locker, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return locker, client, nil
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("redislock: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if l.prefix != "" {
		key = l.prefix + ":" + key
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redislock: acquire %q: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: lock %q already held", core.ErrSweepInProgress, key)
	}
	return &handle{client: l.client, key: key, token: token}, nil
}

type handle struct {
	client Client
	key    string
	token  string
}

func (h *handle) Unlock(ctx context.Context) error {
	if h == nil || h.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redislock: release %q: %w", h.key, err)
	}
	return nil
}

var (
	_ core.SweepLocker = (*Locker)(nil)
	_ Client           = (*redis.Client)(nil)
)
