// Package lock provides folio.Locker implementations: an in-process lock for
// single-instance deployments and a Redis lock for several API instances
// sharing one database.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/warp/folio-engine/folio"
)

// DefaultWait is how long Lock waits for a held key before giving up.
const DefaultWait = 5 * time.Second

// Local serializes callers within one process.
type Local struct {
	Wait time.Duration

	mu   sync.Mutex
	keys map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ folio.Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{Wait: DefaultWait, keys: make(map[string]*slot)}
}

// Lock blocks until key is free, ctx is done, or Wait elapses
// (folio.ErrFolioBusy).
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquire(key)

	wait := l.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(key)
		return nil, folio.ErrFolioBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key)
		})
	}, nil
}

func (l *Local) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keys == nil {
		l.keys = make(map[string]*slot)
	}
	s, ok := l.keys[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.keys[key] = s
	}
	s.refs++
	return s
}

func (l *Local) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.keys[key]
	s.refs--
	if s.refs == 0 {
		delete(l.keys, key)
	}
}
