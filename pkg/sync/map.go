package sync

import "sync"

// TypedSyncMap is a thin generic wrapper around sync.Map so that
// callers do not need to type-assert values on every access.
type TypedSyncMap[K comparable, V any] struct {
	m sync.Map
}

func (m *TypedSyncMap[K, V]) Delete(key K) { m.m.Delete(key) }

func (m *TypedSyncMap[K, V]) Load(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		return *new(V), ok
	}

	if vv, ok := v.(V); ok {
		return vv, true
	}
	return *new(V), false
}

func (m *TypedSyncMap[K, V]) Store(key K, value V) { m.m.Store(key, value) }

// Range calls fn for each key/value pair in the map, stopping
// early if fn returns false. Same consistency rules as sync.Map.Range.
func (m *TypedSyncMap[K, V]) Range(fn func(K, V) bool) {
	m.m.Range(func(k, v any) bool {
		kk, ok := k.(K)
		if !ok {
			return true
		}
		vv, ok := v.(V)
		if !ok {
			return true
		}

		return fn(kk, vv)
	})
}
