package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lineageforge/pkg/platform/sentinel"
)

// Locker is the single-process stand-in for the Redis lock. Like it, a held
// lease is extended every ttl/3 until released.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	now   func() time.Time
	token uint64
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]lease), now: time.Now}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, fmt.Errorf("lock %s held: %w", key, sentinel.ErrConflict)
	}
	l.token++
	mine := l.token
	l.held[key] = lease{token: mine, expires: now.Add(ttl)}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, mine, ttl, stop, done)

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == mine {
			delete(l.held, key)
		}
		return nil
	}, nil
}

func (l *Locker) keepAlive(key string, token uint64, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !l.renew(key, token, ttl) {
				return
			}
		}
	}
}

func (l *Locker) renew(key string, token uint64, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[key]
	if !ok || cur.token != token {
		return false
	}
	cur.expires = l.now().Add(ttl)
	l.held[key] = cur
	return true
}
