package host

import "sync"

// keyLocks hands out one mutex per key and drops it once no caller holds or
// waits on it.
type keyLocks struct {
	mu    sync.Mutex
	items map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{items: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns the matching unlock.
func (l *keyLocks) Lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.items[key]
	if !ok {
		kl = &keyLock{}
		l.items[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.items, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
