package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/stockledger/internal/core/domain"
)

type keyLock struct {
	sem  chan struct{}
	refs int
}

// Locker is an in-process lock table keyed by string. Keys are always
// acquired in sorted order, so two callers locking overlapping key sets
// cannot deadlock.
type Locker struct {
	name string

	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewLocker(name string) *Locker {
	return &Locker{name: name, locks: make(map[string]*keyLock)}
}

// Lock acquires every key or none. When timeout elapses first it returns a
// *domain.ConcurrencyConflictError naming the contended key.
func (l *Locker) Lock(ctx context.Context, timeout time.Duration, keys ...string) (func(), error) {
	keys = sortedUnique(keys)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		kl := l.ref(key)

		select {
		case kl.sem <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.unref(key)
			l.release(held)
			if ctx.Err() == context.DeadlineExceeded {
				return nil, &domain.ConcurrencyConflictError{Resource: l.name + " " + key, Err: ctx.Err()}
			}
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(held) }) }, nil
}

func (l *Locker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *Locker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Locker) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		kl := l.locks[keys[i]]
		l.mu.Unlock()

		<-kl.sem
		l.unref(keys[i])
	}
}

func sortedUnique(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)

	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
