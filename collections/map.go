// Package collections implements VSDB's unversioned typed collections
// (spec §4.4): Map, OrdMap, Vec, and Scalar. Each wraps one
// internal/rawmap.Map with a codec pair, exposing a typed API over the
// Raw Namespaced Map's bytes↔bytes contract. None of these types carry
// any version/branch awareness — that's versioned's job (spec §4.7),
// which wraps these same rawmap handles with a VsMgmt capability.
package collections

import (
	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/rawmap"
	"github.com/Klingon-tech/vsdb/internal/storage"
)

// Map is an unordered K→V map: keys are compared only for equality, never
// ranged over. Backed by the general (non-order-preserving) codec on K, so
// any msgpack-marshalable key type works.
type Map[K, V any] struct {
	raw   *rawmap.Map
	kc    codec.ValueCodec[K]
	vc    codec.ValueCodec[V]
}

// NewMap allocates a fresh prefix from alloc and returns an empty Map in
// whichever tree router routes that prefix to.
func NewMap[K, V any](router AreaRouter, alloc *prefix.Allocator) (*Map[K, V], error) {
	p, err := alloc.Alloc()
	if err != nil {
		return nil, err
	}
	return OpenMap[K, V](router.AreaTree(p), p), nil
}

// OpenMap returns a handle to the Map namespaced at an already-allocated
// prefix (e.g. one recovered from the ledger or a parent collection).
func OpenMap[K, V any](tree storage.Tree, p uint64) *Map[K, V] {
	return &Map[K, V]{
		raw: rawmap.New(tree, p),
		kc:  codec.Msgpack[K]{},
		vc:  codec.Msgpack[V]{},
	}
}

// Prefix returns the map's namespace prefix.
func (m *Map[K, V]) Prefix() uint64 { return m.raw.Prefix() }

// Get returns the value at key, or ok=false if absent.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var zero V
	kb, err := m.kc.Encode(key)
	if err != nil {
		return zero, false, err
	}
	vb, ok, err := m.raw.Get(kb)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := m.vc.Decode(vb)
	return v, true, err
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) (bool, error) {
	kb, err := m.kc.Encode(key)
	if err != nil {
		return false, err
	}
	return m.raw.Contains(kb)
}

// Insert stores value at key, returning the prior value if any.
func (m *Map[K, V]) Insert(key K, value V) (prior V, hadPrior bool, err error) {
	kb, err := m.kc.Encode(key)
	if err != nil {
		return prior, false, err
	}
	vb, err := m.vc.Encode(value)
	if err != nil {
		return prior, false, err
	}
	priorBytes, hadPrior, err := m.raw.Insert(kb, vb)
	if err != nil {
		return prior, false, err
	}
	if hadPrior {
		prior, err = m.vc.Decode(priorBytes)
	}
	return prior, hadPrior, err
}

// Remove deletes key, returning the prior value if any.
func (m *Map[K, V]) Remove(key K) (prior V, hadPrior bool, err error) {
	kb, err := m.kc.Encode(key)
	if err != nil {
		return prior, false, err
	}
	priorBytes, hadPrior, err := m.raw.Remove(kb)
	if err != nil || !hadPrior {
		return prior, hadPrior, err
	}
	prior, err = m.vc.Decode(priorBytes)
	return prior, hadPrior, err
}

// Len returns the entry count.
func (m *Map[K, V]) Len() (uint64, error) { return m.raw.Len() }

// IsEmpty reports whether Len() == 0.
func (m *Map[K, V]) IsEmpty() (bool, error) { return m.raw.IsEmpty() }

// Clear removes every entry.
func (m *Map[K, V]) Clear() error { return m.raw.Clear() }

// Entry is one key/value pair returned by iteration.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Iter walks every entry in the map's underlying byte order, which for Map
// is an implementation detail, not a contract (spec §4.4: Map makes no
// ordering guarantee — use OrdMap when order matters).
func (m *Map[K, V]) Iter() (*MapCursor[K, V], error) {
	c, err := m.raw.Iter()
	if err != nil {
		return nil, err
	}
	return &MapCursor[K, V]{c: c, kc: m.kc, vc: m.vc}, nil
}

// MapCursor decodes rawmap.Cursor entries into typed Entry values.
type MapCursor[K, V any] struct {
	c  *rawmap.Cursor
	kc codec.ValueCodec[K]
	vc codec.ValueCodec[V]
}

func (c *MapCursor[K, V]) Next() bool { return c.c.Next() }
func (c *MapCursor[K, V]) Err() error { return c.c.Err() }
func (c *MapCursor[K, V]) Close()     { c.c.Close() }

// Entry decodes the cursor's current key/value pair.
func (c *MapCursor[K, V]) Entry() (Entry[K, V], error) {
	var e Entry[K, V]
	k, err := c.kc.Decode(c.c.Key())
	if err != nil {
		return e, err
	}
	v, err := c.vc.Decode(c.c.Value())
	if err != nil {
		return e, err
	}
	return Entry[K, V]{Key: k, Value: v}, nil
}
