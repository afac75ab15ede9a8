package versioned

import (
	"fmt"

	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/collections"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/rawmap"
	"github.com/Klingon-tech/vsdb/ledger"
	"github.com/Klingon-tech/vsdb/vsdberr"
)

// OrdMap is the versioned counterpart of collections.OrdMap: the same
// ordered surface — Range, GetGE, GetLE, in addition to point lookups and
// writes — addressed by (branch, version) instead of directly (spec §4.7).
// Its key index is a real collections.OrdMap[K, uint64] keyed by the
// caller's KeyCodec, unlike Store's unordered collections.Map index, so
// range queries resolve in K's natural order rather than an arbitrary
// msgpack byte order.
type OrdMap[K, V any] struct {
	router collections.AreaRouter
	alloc  *prefix.Allocator
	led    *ledger.Ledger
	idx    *collections.OrdMap[K, uint64]
	vc     codec.ValueCodec[V]
}

// NewOrdMap allocates a fresh ordered key index, keyed with kc, and returns
// an empty versioned OrdMap.
func NewOrdMap[K, V any](router collections.AreaRouter, alloc *prefix.Allocator, led *ledger.Ledger, kc codec.KeyCodec[K]) (*OrdMap[K, V], error) {
	idx, err := collections.NewOrdMap[K, uint64](router, alloc, kc)
	if err != nil {
		return nil, fmt.Errorf("versioned: key index: %w", err)
	}
	return &OrdMap[K, V]{router: router, alloc: alloc, led: led, idx: idx, vc: codec.Msgpack[V]{}}, nil
}

func (m *OrdMap[K, V]) historyFor(key K) (*rawmap.Map, bool, error) {
	p, ok, err := m.idx.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return rawmap.New(m.router.AreaTree(p), p), true, nil
}

func (m *OrdMap[K, V]) historyForWrite(key K) (*rawmap.Map, error) {
	p, ok, err := m.idx.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		p, err = m.alloc.Alloc()
		if err != nil {
			return nil, err
		}
		if _, _, err := m.idx.Insert(key, p); err != nil {
			return nil, err
		}
	}
	return rawmap.New(m.router.AreaTree(p), p), nil
}

// Get resolves a point-in-time read: the ancestry walk of spec §4.6.
func (m *OrdMap[K, V]) Get(key K, branchName string, version uint64) (V, bool, error) {
	var zero V
	b, ok, err := m.led.BranchByName(branchName)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, vsdberr.New("versioned.OrdMap.Get", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	hist, ok, err := m.historyFor(key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	payload, tomb, hit, err := ancestryWalk(m.led, hist, b, version)
	if err != nil || !hit {
		return zero, false, err
	}
	if tomb {
		return zero, false, nil
	}
	v, err := m.vc.Decode(payload)
	return v, true, err
}

// GetByBranchVersion is Get under the spec's capability name (§4.7).
func (m *OrdMap[K, V]) GetByBranchVersion(key K, branchName string, version uint64) (V, bool, error) {
	return m.Get(key, branchName, version)
}

// GetTip reads key at branchName's current tip.
func (m *OrdMap[K, V]) GetTip(key K, branchName string) (V, bool, error) {
	var zero V
	b, ok, err := m.led.BranchByName(branchName)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, vsdberr.New("versioned.OrdMap.GetTip", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err := m.led.Tip(b.ID)
	if err != nil || !ok {
		return zero, false, err
	}
	return m.Get(key, branchName, tip)
}

// Insert writes value at key, tagged with branchName's current tip (spec
// §4.6: writes always land on the tip).
func (m *OrdMap[K, V]) Insert(key K, value V, branchName string) error {
	b, ok, err := m.led.BranchByName(branchName)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.OrdMap.Insert", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err := m.led.Tip(b.ID)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.OrdMap.Insert", vsdberr.InvalidCoordinate, fmt.Errorf("branch %q has no versions", branchName))
	}
	payload, err := m.vc.Encode(value)
	if err != nil {
		return err
	}
	hist, err := m.historyForWrite(key)
	if err != nil {
		return err
	}
	buf := append([]byte{tagValue}, payload...)
	_, _, err = hist.Insert(vidCodec.Encode(tip), buf)
	return err
}

// Remove writes a tombstone at key, tagged with branchName's current tip.
func (m *OrdMap[K, V]) Remove(key K, branchName string) error {
	b, ok, err := m.led.BranchByName(branchName)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.OrdMap.Remove", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err := m.led.Tip(b.ID)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.OrdMap.Remove", vsdberr.InvalidCoordinate, fmt.Errorf("branch %q has no versions", branchName))
	}
	hist, err := m.historyForWrite(key)
	if err != nil {
		return err
	}
	_, _, err = hist.Insert(vidCodec.Encode(tip), []byte{tagTombstone})
	return err
}

// Range walks keys with lo <= key <= hi (per each bound's kind) in K's
// natural order, ascending unless reverse is set, resolving every
// candidate key through the ancestry walk at (branchName, version) and
// skipping any key that is absent or tombstoned there. The filtering
// happens lazily, one index entry at a time, so a bounded scan over a
// history-heavy key never pays for entries it will just discard.
func (m *OrdMap[K, V]) Range(lo, hi collections.Bound[K], branchName string, version uint64, reverse bool) (*OrdCursor[K, V], error) {
	b, ok, err := m.led.BranchByName(branchName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vsdberr.New("versioned.OrdMap.Range", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	idxCursor, err := m.idx.Range(lo, hi, reverse)
	if err != nil {
		return nil, err
	}
	return &OrdCursor[K, V]{m: m, b: b, version: version, idx: idxCursor}, nil
}

// Iter walks every key visible at (branchName, version) in ascending order.
func (m *OrdMap[K, V]) Iter(branchName string, version uint64) (*OrdCursor[K, V], error) {
	return m.Range(collections.Unbounded[K](), collections.Unbounded[K](), branchName, version, false)
}

// IterTip walks every key visible at branchName's current tip.
func (m *OrdMap[K, V]) IterTip(branchName string) (*OrdCursor[K, V], error) {
	b, ok, err := m.led.BranchByName(branchName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vsdberr.New("versioned.OrdMap.IterTip", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err := m.led.Tip(b.ID)
	if err != nil || !ok {
		return nil, err
	}
	return m.Iter(branchName, tip)
}

// GetGE returns the entry with the smallest key >= key visible at
// (branchName, version), if any.
func (m *OrdMap[K, V]) GetGE(key K, branchName string, version uint64) (collections.Entry[K, V], bool, error) {
	c, err := m.Range(collections.Incl(key), collections.Unbounded[K](), branchName, version, false)
	if err != nil {
		return collections.Entry[K, V]{}, false, err
	}
	defer c.Close()
	if c.Next() {
		e, err := c.Entry()
		return e, true, err
	}
	return collections.Entry[K, V]{}, false, c.Err()
}

// GetLE returns the entry with the largest key <= key visible at
// (branchName, version), if any.
func (m *OrdMap[K, V]) GetLE(key K, branchName string, version uint64) (collections.Entry[K, V], bool, error) {
	c, err := m.Range(collections.Unbounded[K](), collections.Incl(key), branchName, version, true)
	if err != nil {
		return collections.Entry[K, V]{}, false, err
	}
	defer c.Close()
	if c.Next() {
		e, err := c.Entry()
		return e, true, err
	}
	return collections.Entry[K, V]{}, false, c.Err()
}

// OrdCursor walks an OrdMap's ordered key index, resolving and filtering
// each candidate key through the ancestry walk lazily.
type OrdCursor[K, V any] struct {
	m       *OrdMap[K, V]
	b       ledger.Branch
	version uint64
	idx     *collections.OrdCursor[K, uint64]

	cur collections.Entry[K, V]
	err error
}

// Next advances to the next visible entry, skipping index keys whose
// history has no hit, or resolves to a tombstone, at (b, version).
func (c *OrdCursor[K, V]) Next() bool {
	for c.idx.Next() {
		e, err := c.idx.Entry()
		if err != nil {
			c.err = err
			return false
		}
		hist := rawmap.New(c.m.router.AreaTree(e.Value), e.Value)
		payload, tomb, hit, err := ancestryWalk(c.m.led, hist, c.b, c.version)
		if err != nil {
			c.err = err
			return false
		}
		if !hit || tomb {
			continue
		}
		v, err := c.m.vc.Decode(payload)
		if err != nil {
			c.err = err
			return false
		}
		c.cur = collections.Entry[K, V]{Key: e.Key, Value: v}
		return true
	}
	c.err = c.idx.Err()
	return false
}

// Entry returns the cursor's current key/value pair.
func (c *OrdCursor[K, V]) Entry() (collections.Entry[K, V], error) { return c.cur, c.err }

func (c *OrdCursor[K, V]) Err() error { return c.err }
func (c *OrdCursor[K, V]) Close()     { c.idx.Close() }

// popVersionData, pruneData, and mergeData satisfy the Collection
// interface Group needs to forward version_pop, prune, and branch_merge
// (spec §4.7) against this OrdMap's per-key history prefixes.
func (m *OrdMap[K, V]) popVersionData(_ uint64, versionID uint64) error {
	prefixes, err := m.allPrefixes()
	if err != nil {
		return err
	}
	return popVersionDataAt(m.router, prefixes, versionID)
}

func (m *OrdMap[K, V]) pruneData(branchID, cutoff uint64) error {
	prefixes, err := m.allPrefixes()
	if err != nil {
		return err
	}
	return pruneDataAt(m.led, m.router, prefixes, branchID, cutoff)
}

func (m *OrdMap[K, V]) mergeData(parentTip uint64, versions []uint64) error {
	prefixes, err := m.allPrefixes()
	if err != nil {
		return err
	}
	return mergeDataAt(m.router, prefixes, parentTip, versions)
}

func (m *OrdMap[K, V]) allPrefixes() ([]uint64, error) {
	c, err := m.idx.Iter()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var out []uint64
	for c.Next() {
		e, err := c.Entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e.Value)
	}
	return out, c.Err()
}
