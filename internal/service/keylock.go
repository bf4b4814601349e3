package service

import (
	"context"
	"sync"
)

// KeyLocker hands out one exclusive slot per key. Unrelated keys never
// contend; slots are dropped once nobody holds or waits for them.
type KeyLocker struct {
	mu    sync.Mutex
	slots map[int64]*keySlot
}

type keySlot struct {
	sem  chan struct{}
	refs int
}

// NewKeyLocker creates an empty locker
func NewKeyLocker() *KeyLocker {
	return &KeyLocker{slots: make(map[int64]*keySlot)}
}

// Lock blocks until the slot for key is free or ctx is done.
// The returned release func must be called exactly once.
func (l *KeyLocker) Lock(ctx context.Context, key int64) (func(), error) {
	l.mu.Lock()
	slot, exists := l.slots[key]
	if !exists {
		slot = &keySlot{sem: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		return func() {
			<-slot.sem
			l.unref(key, slot)
		}, nil
	case <-ctx.Done():
		l.unref(key, slot)
		return nil, ctx.Err()
	}
}

func (l *KeyLocker) unref(key int64, slot *keySlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

// Len returns the number of live slots
func (l *KeyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
