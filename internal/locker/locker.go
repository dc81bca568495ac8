// Package locker serializes work per key, either inside one process or
// across processes through redis.
package locker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DriverLocal = "local"
	DriverRedis = "redis"

	DefaultTTL = 30 * time.Second
)

// Locker acquires exclusive per-key locks. The returned release func is
// safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
	Close() error
}

// Options selects and configures a Locker.
type Options struct {
	Driver    string
	RedisAddr string
	TTL       time.Duration
}

// New builds the configured locker.
func New(opts Options) (Locker, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverLocal:
		return NewLocal(), nil
	case DriverRedis:
		if strings.TrimSpace(opts.RedisAddr) == "" {
			return nil, fmt.Errorf("locking.redis_addr is required for the redis locker")
		}
		return NewRedis(opts.RedisAddr, opts.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported locking driver %q", opts.Driver)
	}
}

type localEntry struct {
	slot chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped once no caller
// holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{entries: map[string]*localEntry{}}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			l.drop(key, entry)
		})
	}, nil
}

// Close is a no-op for the in-process locker.
func (l *Local) Close() error {
	return nil
}

func (l *Local) drop(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
