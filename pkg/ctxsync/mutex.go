// Package ctxsync contains locks that can be acquired with a context, so
// callers blocked on them give up when the context is cancelled.
package ctxsync

import (
	"context"
	"sync"
)

// NewMutex creates a new instance of Mutex.
func NewMutex() *Mutex {
	return &Mutex{
		unlock: make(chan struct{}, 1),
	}
}

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	unlock chan struct{}
}

// Lock locks the mutex with a context.Background()
func (m *Mutex) Lock() {
	_ = m.LockWithContext(context.Background())
}

// LockWithContext locks until Unlock is called or context is cancelled
func (m *Mutex) LockWithContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.unlock <- struct{}{}:
		return nil
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	select {
	case m.unlock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock unlocks m.
func (m *Mutex) Unlock() {
	select {
	case <-m.unlock:
	default:
		panic("ctxsync: unlock of unlocked mutex")
	}
}

// KeyedMutex holds one [Mutex] per key. Mutexes are created on demand and
// released when no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   *Mutex
	refs int
}

// NewKeyedMutex creates a new instance of KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// LockWithContext locks the mutex of key until Unlock is called with the same
// key or the context is cancelled.
func (k *KeyedMutex) LockWithContext(ctx context.Context, key string) error {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{mu: NewMutex()}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.mu.LockWithContext(ctx); err != nil {
		k.release(key, e)
		return err
	}
	return nil
}

// Unlock unlocks the mutex of key. It panics if key is not locked.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		panic("ctxsync: unlock of unlocked key")
	}
	e.mu.Unlock()
	k.release(key, e)
}

// Len returns the number of keys currently held or waited for.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e.refs--; e.refs == 0 {
		delete(k.locks, key)
	}
}
