package collections

import (
	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/rawmap"
	"github.com/Klingon-tech/vsdb/internal/storage"
)

// OrdMap is a K→V map ordered by K: range scans, GetGE, and GetLE reflect
// K's natural order, via an order-preserving KeyCodec (spec §4.4).
type OrdMap[K, V any] struct {
	raw *rawmap.Map
	kc  codec.KeyCodec[K]
	vc  codec.ValueCodec[V]
}

// NewOrdMap allocates a fresh prefix and returns an empty OrdMap keyed with kc.
func NewOrdMap[K, V any](router AreaRouter, alloc *prefix.Allocator, kc codec.KeyCodec[K]) (*OrdMap[K, V], error) {
	p, err := alloc.Alloc()
	if err != nil {
		return nil, err
	}
	return OpenOrdMap[K, V](router.AreaTree(p), p, kc), nil
}

// OpenOrdMap returns a handle to the OrdMap namespaced at an
// already-allocated prefix.
func OpenOrdMap[K, V any](tree storage.Tree, p uint64, kc codec.KeyCodec[K]) *OrdMap[K, V] {
	return &OrdMap[K, V]{
		raw: rawmap.New(tree, p),
		kc:  kc,
		vc:  codec.Msgpack[V]{},
	}
}

// Prefix returns the map's namespace prefix.
func (m *OrdMap[K, V]) Prefix() uint64 { return m.raw.Prefix() }

// Get returns the value at key, or ok=false if absent.
func (m *OrdMap[K, V]) Get(key K) (V, bool, error) {
	var zero V
	vb, ok, err := m.raw.Get(m.kc.Encode(key))
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := m.vc.Decode(vb)
	return v, true, err
}

// Contains reports whether key is present.
func (m *OrdMap[K, V]) Contains(key K) (bool, error) {
	return m.raw.Contains(m.kc.Encode(key))
}

// Insert stores value at key, returning the prior value if any.
func (m *OrdMap[K, V]) Insert(key K, value V) (prior V, hadPrior bool, err error) {
	vb, err := m.vc.Encode(value)
	if err != nil {
		return prior, false, err
	}
	priorBytes, hadPrior, err := m.raw.Insert(m.kc.Encode(key), vb)
	if err != nil {
		return prior, false, err
	}
	if hadPrior {
		prior, err = m.vc.Decode(priorBytes)
	}
	return prior, hadPrior, err
}

// Remove deletes key, returning the prior value if any.
func (m *OrdMap[K, V]) Remove(key K) (prior V, hadPrior bool, err error) {
	priorBytes, hadPrior, err := m.raw.Remove(m.kc.Encode(key))
	if err != nil || !hadPrior {
		return prior, hadPrior, err
	}
	prior, err = m.vc.Decode(priorBytes)
	return prior, hadPrior, err
}

// Len returns the entry count.
func (m *OrdMap[K, V]) Len() (uint64, error) { return m.raw.Len() }

// IsEmpty reports whether Len() == 0.
func (m *OrdMap[K, V]) IsEmpty() (bool, error) { return m.raw.IsEmpty() }

// Clear removes every entry.
func (m *OrdMap[K, V]) Clear() error { return m.raw.Clear() }

// GetGE returns the entry with the smallest key >= key, if any.
func (m *OrdMap[K, V]) GetGE(key K) (Entry[K, V], bool, error) {
	e, ok, err := m.raw.GetGE(m.kc.Encode(key))
	return m.decodeEntry(e, ok, err)
}

// GetLE returns the entry with the largest key <= key, if any.
func (m *OrdMap[K, V]) GetLE(key K) (Entry[K, V], bool, error) {
	e, ok, err := m.raw.GetLE(m.kc.Encode(key))
	return m.decodeEntry(e, ok, err)
}

func (m *OrdMap[K, V]) decodeEntry(e rawmap.Entry, ok bool, err error) (Entry[K, V], bool, error) {
	var out Entry[K, V]
	if err != nil || !ok {
		return out, false, err
	}
	k, err := m.kc.Decode(e.Key)
	if err != nil {
		return out, false, err
	}
	v, err := m.vc.Decode(e.Value)
	if err != nil {
		return out, false, err
	}
	return Entry[K, V]{Key: k, Value: v}, true, nil
}

// Bound is an OrdMap range-scan endpoint; Unbounded/Included/Excluded
// mirror internal/storage.BoundKind without leaking that package's type.
type Bound[K any] struct {
	set   bool
	incl  bool
	key   K
}

// Unbounded returns an open range endpoint.
func Unbounded[K any]() Bound[K] { return Bound[K]{} }

// Incl returns an inclusive range endpoint at key.
func Incl[K any](key K) Bound[K] { return Bound[K]{set: true, incl: true, key: key} }

// Excl returns an exclusive range endpoint at key.
func Excl[K any](key K) Bound[K] { return Bound[K]{set: true, incl: false, key: key} }

func (m *OrdMap[K, V]) toStorageBound(b Bound[K]) storage.Bound {
	if !b.set {
		return storage.Bound{Kind: storage.Unbounded}
	}
	kind := storage.Excluded
	if b.incl {
		kind = storage.Included
	}
	return storage.Bound{Kind: kind, Key: m.kc.Encode(b.key)}
}

// Range walks entries with lo <= key <= hi (per each bound's kind),
// ascending unless reverse is set.
func (m *OrdMap[K, V]) Range(lo, hi Bound[K], reverse bool) (*OrdCursor[K, V], error) {
	c, err := m.raw.Range(m.toStorageBound(lo), m.toStorageBound(hi), reverse)
	if err != nil {
		return nil, err
	}
	return &OrdCursor[K, V]{c: c, kc: m.kc, vc: m.vc}, nil
}

// Iter walks every entry in ascending key order.
func (m *OrdMap[K, V]) Iter() (*OrdCursor[K, V], error) {
	return m.Range(Unbounded[K](), Unbounded[K](), false)
}

// OrdCursor decodes rawmap.Cursor entries with an order-preserving key codec.
type OrdCursor[K, V any] struct {
	c  *rawmap.Cursor
	kc codec.KeyCodec[K]
	vc codec.ValueCodec[V]
}

func (c *OrdCursor[K, V]) Next() bool { return c.c.Next() }
func (c *OrdCursor[K, V]) Err() error { return c.c.Err() }
func (c *OrdCursor[K, V]) Close()     { c.c.Close() }

// Entry decodes the cursor's current key/value pair.
func (c *OrdCursor[K, V]) Entry() (Entry[K, V], error) {
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
