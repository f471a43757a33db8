package plugin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes install and uninstall per system name. Lock blocks until
// the name is free or ctx is done and returns the function releasing it.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

// MemoryLocker is a keyed mutex for a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock implements Locker. Names differing only in the case of the first
// letter share a lock.
func (l *MemoryLocker) Lock(ctx context.Context, name string) (func(), error) {
	key := RegistryKey(name)

	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

var (
	// ErrLockNotAcquired is returned when the lock could not be taken within
	// the configured retries.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// unlockScript deletes the key only while it still holds our value.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// lockClient is the part of redis.Cmdable the Redis locker needs.
type lockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisLocker serializes lifecycle operations across processes sharing a
// plugins directory.
type RedisLocker struct {
	client     lockClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
	logger     *slog.Logger
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLockTTL sets how long a lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockRetry sets the delay between attempts and the attempt limit.
// A limit of 0 retries until ctx is done.
func WithLockRetry(delay time.Duration, maxRetries int) RedisLockerOption {
	return func(l *RedisLocker) {
		if delay > 0 {
			l.retryDelay = delay
		}
		if maxRetries >= 0 {
			l.maxRetries = maxRetries
		}
	}
}

// WithLockLogger sets the logger.
func WithLockLogger(logger *slog.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker creates a locker storing keys as <prefix><name>.
func NewRedisLocker(client redis.Cmdable, prefix string, opts ...RedisLockerOption) *RedisLocker {
	return newRedisLocker(client, prefix, opts...)
}

func newRedisLocker(client lockClient, prefix string, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:     client,
		prefix:     prefix,
		ttl:        2 * time.Minute,
		retryDelay: 100 * time.Millisecond,
		maxRetries: 0,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, name string) (func(), error) {
	key := l.prefix + RegistryKey(name)
	value := uuid.NewString()

	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			l.logger.Debug("lock acquired", "key", key, "attempts", attempt+1)
			return func() { l.unlock(key, value) }, nil
		}
		if l.maxRetries > 0 && attempt >= l.maxRetries {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlock(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := l.client.Eval(ctx, unlockScript, []string{key}, value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Error("failed to release lock", "key", key, "error", err)
		return
	}
	if n, ok := res.(int64); !ok || n != 1 {
		l.logger.Warn("lock expired before release", "key", key)
	}
}
