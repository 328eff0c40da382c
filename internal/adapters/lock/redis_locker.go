package lock

import (
	"context"
	"errors"
	"field-service-router/internal/ports"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const DefaultTTL = 30 * time.Minute

// Deletes the key only while it still holds our token, so an expired lock
// that was taken over by another run is never released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the key only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisDateLocker serializes planning runs per date across processes.
// A held lock is renewed every ttl/3 until it is released, so a run that
// waits on many prompts keeps the date.
type RedisDateLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDateLocker(rdb *redis.Client, ttl time.Duration) *RedisDateLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisDateLocker{rdb: rdb, ttl: ttl, prefix: "planning:lock:"}
}

// NewRedisDateLockerFromURL parses a redis:// URL.
func NewRedisDateLockerFromURL(url string, ttl time.Duration) (*RedisDateLocker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis locker: parse url: %w", err)
	}
	return NewRedisDateLocker(redis.NewClient(opt), ttl), nil
}

func (l *RedisDateLocker) key(day string) string { return l.prefix + day }

func (l *RedisDateLocker) Lock(ctx context.Context, day string) (ports.Unlock, error) {
	if day == "" {
		return nil, errors.New("redis locker: day must be non-empty")
	}

	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(day), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis locker: set %s: %w", l.key(day), err)
	}
	if !ok {
		return nil, fmt.Errorf("date=%s: %w", day, ports.ErrDateLocked)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(l.key(day), token, stop)
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
		if err := releaseScript.Run(ctx, l.rdb, []string{l.key(day)}, token).Err(); err != nil {
			return fmt.Errorf("redis locker: release %s: %w", l.key(day), err)
		}
		return nil
	}, nil
}

func (l *RedisDateLocker) keepAlive(key, token string, stop <-chan struct{}) {
	every := l.ttl / 3
	if every <= 0 {
		every = l.ttl
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := renewScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.Printf("redis locker: renew key=%s err=%v", key, err)
				continue
			}
			if n == 0 {
				log.Printf("redis locker: lost key=%s before release", key)
				return
			}
		}
	}
}

func (l *RedisDateLocker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *RedisDateLocker) Close() error { return l.rdb.Close() }
