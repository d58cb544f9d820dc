package sync

import (
	"sort"
	stdSync "sync"
)

// keyedMutex hands out one mutex per key so unrelated records never
// contend with each other.
type keyedMutex struct {
	mu    stdSync.Mutex
	locks map[string]*stdSync.Mutex
}

func (k *keyedMutex) get(key string) *stdSync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*stdSync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &stdSync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

// LockAll acquires the mutexes for the given keys in sorted order, which
// keeps two overlapping multi-key lockers from deadlocking. Duplicate
// keys are locked once. The returned function releases every lock.
func (k *keyedMutex) LockAll(keys []string) func() {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			unique = append(unique, key)
		}
	}
	sort.Strings(unique)

	held := make([]*stdSync.Mutex, 0, len(unique))
	for _, key := range unique {
		lock := k.get(key)
		lock.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
