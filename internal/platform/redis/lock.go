package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lineageforge/pkg/platform/sentinel"
)

const lockPrefix = "lineageforge:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript re-arms the expiry while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker serializes work across processes with SET NX PX. A held lock is
// renewed every ttl/3 until released, so a run longer than ttl keeps it; the
// ttl only bounds how long a crashed holder blocks others.
type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// Acquire takes the named lock for ttl. A lock held elsewhere yields
// sentinel.ErrConflict. The returned release func stops renewal and is safe
// to call after the lock was lost.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	name := lockPrefix + key
	ok, err := l.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s held: %w", key, sentinel.ErrConflict)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(name, token, ttl, stop, done)

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		if err := releaseScript.Run(ctx, l.client, []string{name}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}

// keepAlive renews the lock until stop closes or the token is gone. A failed
// renewal is retried on the next tick while the key may still be ours.
func (l *Locker) keepAlive(name, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3+time.Second)
			renewed, err := renewScript.Run(ctx, l.client, []string{name}, token, ttl.Milliseconds()).Int()
			cancel()
			if err == nil && renewed == 0 {
				return
			}
		}
	}
}
