// Package registry implements the subscription registry (§4.6): an
// ordered multimap from a frequency-slice key to a subscriber value,
// protected by a single mutex, supporting extract-and-reinsert rekey.
package registry

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Key is the (l, r) bin-index window a subscriber is tuned to.
type Key struct {
	L, R int
}

// Pair is the registry's iterator/handle type: subscriptions hold one
// of these so a tuning change can rekey in O(log n) without a lookup
// (§3 "Indexing handle").
type Pair[V any] = orderedmap.Pair[Key, V]

// Registry is an ordered multimap from Key to V, guarded by one mutex.
// Invariant: exactly one entry per live subscriber (§3).
type Registry[V any] struct {
	mu sync.RWMutex
	m  *orderedmap.OrderedMap[Key, V]
}

// New builds an empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{m: orderedmap.New[Key, V]()}
}

// Insert adds a new entry on subscribe and returns its handle.
func (r *Registry[V]) Insert(key Key, val V) *Pair[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Set(key, val)
	return r.m.GetPair(key)
}

// Erase removes an entry on unsubscribe.
func (r *Registry[V]) Erase(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Delete(key)
}

// Rekey extracts the entry at oldKey and reinserts it at newKey,
// preserving the stored value, and returns the new handle. This is the
// sole way a subscriber's window changes keys (§4.6).
func (r *Registry[V]) Rekey(oldKey, newKey Key, val V) *Pair[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldKey != newKey {
		r.m.Delete(oldKey)
	}
	r.m.Set(newKey, val)
	return r.m.GetPair(newKey)
}

// Walk calls fn for every entry in insertion order under a read lock,
// the mode the broadcast dispatcher uses each frame (§4.7). Walk stops
// early if fn returns false.
func (r *Registry[V]) Walk(fn func(key Key, val V) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Len reports the number of live subscriptions.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m.Len()
}
