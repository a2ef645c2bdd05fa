package redislock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-payments/core"
)

const defaultTTL = time.Minute

// releaseScript deletes the key only while it still holds the caller token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Client is the subset of the go-redis client used by the locker.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type Option func(*Locker)

func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = strings.TrimSpace(prefix)
	}
}

func WithTokenGenerator(next func() string) Option {
	return func(l *Locker) {
		if next != nil {
			l.token = next
		}
	}
}

// Locker is a core.SweepLocker backed by SET NX PX. Only one sweeper across
// all instances holds a key until it releases it or the TTL lapses.
type Locker struct {
	client Client
	prefix string
	token  func() string
}

func New(client Client, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("redislock: redis client is required")
	}
	locker := &Locker{
		client: client,
		prefix: "go-payments:lock:",
		token:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(locker)
		}
	}
	return locker, nil
}

// NewFromURL parses a redis:// URL and pings the server before returning.
func NewFromURL(ctx context.Context, redisURL string, opts ...Option) (*Locker, *redis.Client, error) {
	options, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, nil, fmt.Errorf("redislock: parse url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, core.NewTransientError(core.TransientConnection, "redislock.ping", err)
	}
	locker, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return locker, client, nil
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("redislock: locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("redislock: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	fullKey := l.prefix + key
	token := l.token()
	acquired, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, core.NewTransientError(core.TransientConnection, "redislock.acquire", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %q", core.ErrSweepLocked, key)
	}
	return &handle{client: l.client, key: fullKey, token: token}, nil
}

type handle struct {
	client Client
	key    string
	token  string
	once   sync.Once
	err    error
}

// Unlock releases the key when it still carries this handle's token. A
// lease that already expired is reported so the caller can log it.
func (h *handle) Unlock(ctx context.Context) error {
	if h == nil || h.client == nil {
		return nil
	}
	h.once.Do(func() {
		released, err := h.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Int64()
		if err != nil {
			h.err = core.NewTransientError(core.TransientConnection, "redislock.release", err)
			return
		}
		if released == 0 {
			h.err = fmt.Errorf("redislock: lock %q expired before release", h.key)
		}
	})
	return h.err
}

var _ core.SweepLocker = (*Locker)(nil)
