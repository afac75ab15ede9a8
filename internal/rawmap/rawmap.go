// Package rawmap implements the Raw Namespaced Map (spec §4.3): a logical
// ordered bytes→bytes map pinned to one 8-byte prefix within one backend
// area. Every higher-level collection (§4.4, §4.6) is built on this.
package rawmap

import (
	"encoding/binary"

	"github.com/Klingon-tech/vsdb/internal/storage"
)

const (
	// markerMeta tags the one reserved key (the length counter) within a
	// map's own namespace. markerData tags every real entry. Both markers
	// are a single constant byte shared by every key of their class, so
	// prepending one preserves lexicographic order among data keys exactly
	// — comparisons never reach past the shared marker byte unless the
	// user-key bytes already differ. This is what lets the length counter
	// live "at a reserved key of the map's own namespace" (§4.3) without
	// colliding with a genuine zero-length user key, which Scalar's
	// OrdMap<(), T> degenerate form requires (§4.4).
	markerMeta byte = 0x00
	markerData byte = 0x01
)

// Map is a Raw Namespaced Map: identified solely by its prefix and the area
// Tree it lives in. Duplicating a Map value aliases the same stored data —
// collections built on top of it are handles, not owners (spec §4.4).
type Map struct {
	tree       storage.Tree
	prefix     [8]byte // the map's own 8-byte namespace prefix
	dataPrefix []byte  // prefix ‖ markerData
	lenKey     []byte  // prefix ‖ markerMeta (the reserved length-counter key)
}

// New returns a handle for the namespace identified by prefix within tree.
func New(tree storage.Tree, prefix uint64) *Map {
	m := &Map{tree: tree}
	binary.BigEndian.PutUint64(m.prefix[:], prefix)
	m.dataPrefix = append(append([]byte{}, m.prefix[:]...), markerData)
	m.lenKey = append(append([]byte{}, m.prefix[:]...), markerMeta)
	return m
}

// Prefix returns the map's 8-byte namespace prefix.
func (m *Map) Prefix() uint64 { return binary.BigEndian.Uint64(m.prefix[:]) }

func (m *Map) fullKey(userKey []byte) []byte {
	return storage.ConcatKey(m.dataPrefix, userKey)
}

// Get returns the value at key, or ok=false if absent. Never updates Len.
func (m *Map) Get(key []byte) (value []byte, ok bool, err error) {
	return m.tree.Get(m.fullKey(key))
}

// Contains reports whether key is present.
func (m *Map) Contains(key []byte) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// Insert stores value at key and returns the prior value, if any. Len is
// incremented only on a genuine create (key was previously absent).
func (m *Map) Insert(key, value []byte) (prior []byte, hadPrior bool, err error) {
	prior, hadPrior, err = m.Get(key)
	if err != nil {
		return nil, false, err
	}
	if err := m.tree.Set(m.fullKey(key), value); err != nil {
		return nil, false, err
	}
	if !hadPrior {
		if err := m.adjustLen(1); err != nil {
			return nil, false, err
		}
	}
	return prior, hadPrior, nil
}

// Remove deletes key and returns the prior value, if any, decrementing Len
// on a genuine delete.
func (m *Map) Remove(key []byte) (prior []byte, hadPrior bool, err error) {
	prior, hadPrior, err = m.Get(key)
	if err != nil {
		return nil, false, err
	}
	if !hadPrior {
		return nil, false, nil
	}
	if err := m.tree.Delete(m.fullKey(key)); err != nil {
		return nil, false, err
	}
	if err := m.adjustLen(-1); err != nil {
		return nil, false, err
	}
	return prior, true, nil
}

func (m *Map) adjustLen(delta int64) error {
	_, err := m.tree.AtomicUpdate(m.lenKey, func(cur []byte) []byte {
		var n uint64
		if len(cur) == 8 {
			n = binary.BigEndian.Uint64(cur)
		}
		if delta < 0 {
			n-- // delta is always ±1 here; underflow would mean a prior bug
		} else {
			n++
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, n)
		return out
	})
	return err
}

// Len returns the map's maintained entry count.
func (m *Map) Len() (uint64, error) {
	cur, ok, err := m.tree.Get(m.lenKey)
	if err != nil || !ok {
		return 0, err
	}
	return binary.BigEndian.Uint64(cur), nil
}

// IsEmpty reports whether Len() == 0.
func (m *Map) IsEmpty() (bool, error) {
	n, err := m.Len()
	return n == 0, err
}

// Entry is one key/value pair returned by iteration.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iter walks every entry in ascending key order.
func (m *Map) Iter() (*Cursor, error) {
	return m.Range(storage.Bound{Kind: storage.Unbounded}, storage.Bound{Kind: storage.Unbounded}, false)
}

// Range walks entries with lo <= key < hi (subject to each bound's
// inclusive/exclusive Kind), ascending unless reverse is set. Unbounded on
// the low side becomes the start of this map's namespace; Unbounded on the
// high side becomes its end — the scan can never read past an adjacent
// namespace (spec §9).
func (m *Map) Range(lo, hi storage.Bound, reverse bool) (*Cursor, error) {
	loKey, loIncl, hiKey, hiIncl := storage.Resolve(m.dataPrefix, lo, hi)
	it, err := m.tree.Scan(loKey, loIncl, hiKey, hiIncl, reverse)
	if err != nil {
		return nil, err
	}
	return &Cursor{it: it, prefixLen: len(m.dataPrefix)}, nil
}

// GetGE returns the entry with the smallest key >= key, if any.
func (m *Map) GetGE(key []byte) (Entry, bool, error) {
	c, err := m.Range(storage.Lo(key), storage.Bound{Kind: storage.Unbounded}, false)
	if err != nil {
		return Entry{}, false, err
	}
	defer c.Close()
	if c.Next() {
		return Entry{Key: c.Key(), Value: c.Value()}, true, c.Err()
	}
	return Entry{}, false, c.Err()
}

// GetLE returns the entry with the largest key <= key, if any.
func (m *Map) GetLE(key []byte) (Entry, bool, error) {
	c, err := m.Range(storage.Bound{Kind: storage.Unbounded}, storage.HiIncl(key), true)
	if err != nil {
		return Entry{}, false, err
	}
	defer c.Close()
	if c.Next() {
		return Entry{Key: c.Key(), Value: c.Value()}, true, c.Err()
	}
	return Entry{}, false, c.Err()
}

// Clear removes every entry and resets Len to zero. Used by prune and by
// explicit collection clear operations.
func (m *Map) Clear() error {
	c, err := m.Iter()
	if err != nil {
		return err
	}
	defer c.Close()
	var keys [][]byte
	for c.Next() {
		keys = append(keys, append([]byte{}, c.Key()...))
	}
	if err := c.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.tree.Delete(m.fullKey(k)); err != nil {
			return err
		}
	}
	return m.tree.Delete(m.lenKey)
}

// Cursor is a lazy, double-ended-capable iterator over a Map's entries
// (direction fixed at Range time), with the namespace prefix and data
// marker stripped from returned keys.
type Cursor struct {
	it        storage.Iterator
	prefixLen int
}

func (c *Cursor) Next() bool    { return c.it.Next() }
func (c *Cursor) Key() []byte   { return c.it.Key()[c.prefixLen:] }
func (c *Cursor) Value() []byte { return c.it.Value() }
func (c *Cursor) Err() error    { return c.it.Err() }
func (c *Cursor) Close()        { c.it.Close() }
