package movements

import (
	"sort"
	"sync"
)

// keyLock serializes writers per ledger key within a single process.
// Entries are refcounted and dropped once the last holder releases, so
// the map does not grow with the number of keys ever seen. Cross-process
// writers are still fenced by the unique (warehouse, commodity, seq)
// constraint on the ledger table.
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[string]*keyLockEntry)}
}

func (k *keyLock) acquire(key string) *keyLockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &keyLockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *keyLock) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(k.entries, key)
	}
}

// Lock blocks until the caller holds the named key.
func (k *keyLock) Lock(key string) {
	k.acquire(key).mu.Lock()
}

// Unlock releases the named key.
func (k *keyLock) Unlock(key string) {
	k.mu.Lock()
	entry := k.entries[key]
	k.mu.Unlock()
	if entry != nil {
		entry.mu.Unlock()
	}
	k.release(key)
}

// LockMany locks the given keys in sorted order so that concurrent
// callers holding overlapping key sets cannot deadlock. The returned
// function releases them in reverse order.
func (k *keyLock) LockMany(keys ...string) func() {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		k.Lock(key)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			k.Unlock(sorted[i])
		}
	}
}
