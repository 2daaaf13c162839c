package lock

import (
	"context"
	"sync"

	extErrors "github.com/pkg/errors"
)

// Unlock releases a held lock. It is safe to call more than once
type Unlock func()

// Locker provides mutual exclusion keyed by an arbitrary string
type Locker interface {
	// Lock blocks until key is acquired or ctx is done
	Lock(ctx context.Context, key string) (Unlock, error)
}

var _ Locker = &Local{}

// Local is an in-process Locker, good enough when a single replica serves the API
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// slot is held by the owner of the key and by every waiter, it is dropped once nobody refers to it
type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process Locker
func NewLocal() *Local {
	return &Local{
		slots: make(map[string]*slot),
	}
}

func (l *Local) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Lock acquires key, waiting until it is released or ctx is done
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	s := l.acquire(key)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, extErrors.Wrapf(ctx.Err(), "Cannot acquire lock %s", key)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}
