// Package lock serializes mutations per account. Keys are always acquired in
// sorted order so that two operations touching the same pair of accounts in
// opposite directions cannot deadlock.
package lock

import (
	"context"
	"sort"
	"sync"
)

// Locker acquires exclusive locks on a set of keys. The returned release
// function frees every key and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (release func(), err error)
}

// orderedKeys returns keys sorted and without duplicates.
func orderedKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Local is an in-process Locker. It is enough when a single instance owns
// the ledger, and it also backs the memory store in tests.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := orderedKeys(keys)
	held := make([]string, 0, len(ordered))

	for _, key := range ordered {
		if err := l.acquire(ctx, key); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(held) })
	}, nil
}

func (l *Local) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, false)
		return ctx.Err()
	}
}

func (l *Local) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.release(keys[i], true)
	}
}

func (l *Local) release(key string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.locks[key]
	if held {
		<-e.ch
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
