// Package versioned implements the Versioned Store and Versioned Typed
// Collections (spec §4.6, §4.7): per-key version histories resolved by an
// ancestry walk over the Version Ledger, plus a Group type that stands in
// for the "external derive helper" the spec names — Go has no derive
// macros, so VsMgmt forwarding across a user struct's versioned fields is
// done by registering them into one Group instead of generating forwarding
// methods (see DESIGN.md).
package versioned

import (
	"fmt"

	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/collections"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/rawmap"
	"github.com/Klingon-tech/vsdb/internal/storage"
	"github.com/Klingon-tech/vsdb/internal/vsdblog"
	"github.com/Klingon-tech/vsdb/ledger"
	"github.com/Klingon-tech/vsdb/vsdberr"
)

// Tag bytes distinguish a tombstone from an encoded value in a key's inner
// history (spec §9: "pick a value sentinel that cannot collide with any
// codec output") — prepending a tag byte makes every history entry at
// least 1 byte even when the encoded value itself is zero-length.
const (
	tagValue     byte = 0x01
	tagTombstone byte = 0x00
)

var vidCodec = codec.Uint64Key{}

// Store is the versioned engine embedded by Map, Vec, and Scalar: a
// key→inner-history-prefix index, plus the ledger used to resolve ancestry
// and to validate write coordinates. OrdMap keeps its own ordered index and
// shares only the free functions below.
type Store[K, V any] struct {
	router collections.AreaRouter
	alloc  *prefix.Allocator
	led    *ledger.Ledger
	idx    *collections.Map[K, uint64]
	vc     codec.ValueCodec[V]
}

// NewStore allocates the key index and returns an empty Store.
func NewStore[K, V any](router collections.AreaRouter, alloc *prefix.Allocator, led *ledger.Ledger) (*Store[K, V], error) {
	idx, err := collections.NewMap[K, uint64](router, alloc)
	if err != nil {
		return nil, fmt.Errorf("versioned: key index: %w", err)
	}
	return &Store[K, V]{router: router, alloc: alloc, led: led, idx: idx, vc: codec.Msgpack[V]{}}, nil
}

func (s *Store[K, V]) historyFor(key K) (*rawmap.Map, bool, error) {
	p, ok, err := s.idx.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return rawmap.New(s.router.AreaTree(p), p), true, nil
}

func (s *Store[K, V]) historyForWrite(key K) (*rawmap.Map, error) {
	p, ok, err := s.idx.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		p, err = s.alloc.Alloc()
		if err != nil {
			return nil, err
		}
		if _, _, err := s.idx.Insert(key, p); err != nil {
			return nil, err
		}
	}
	return rawmap.New(s.router.AreaTree(p), p), nil
}

// probeHistory does a single reverse scan of hist for the newest entry
// with version-id <= boundary that belongs to branchID (spec §4.6). Free
// of any Store[K,V] instantiation so both Store and the separately keyed
// OrdMap can share it.
func probeHistory(led *ledger.Ledger, hist *rawmap.Map, branchID, boundary uint64) (payload []byte, tomb bool, hit bool, err error) {
	c, err := hist.Range(storage.Bound{Kind: storage.Unbounded}, storage.HiIncl(vidCodec.Encode(boundary)), true)
	if err != nil {
		return nil, false, false, err
	}
	defer c.Close()
	for c.Next() {
		vid, err := vidCodec.Decode(c.Key())
		if err != nil {
			return nil, false, false, err
		}
		owns, err := led.Owns(branchID, vid)
		if err != nil {
			return nil, false, false, err
		}
		if !owns {
			continue
		}
		raw := c.Value()
		return raw[1:], raw[0] == tagTombstone, true, c.Err()
	}
	return nil, false, false, c.Err()
}

// ancestryWalk resolves a point-in-time read for one key's history (spec
// §4.6): level 0 is b itself at version, then one probe per ancestor link,
// each clipped to the lesser of version and that link's fork point. The
// first level that has anything recorded for the key — a value or a
// tombstone — wins.
func ancestryWalk(led *ledger.Ledger, hist *rawmap.Map, b ledger.Branch, version uint64) (payload []byte, tomb bool, hit bool, err error) {
	levels := make([]ledger.AncestorLink, 0, len(b.Ancestors)+1)
	levels = append(levels, ledger.AncestorLink{BranchID: b.ID, ForkVersion: version})
	levels = append(levels, b.Ancestors...)

	for _, lvl := range levels {
		boundary := version
		if lvl.ForkVersion < boundary {
			boundary = lvl.ForkVersion
		}
		payload, tomb, hit, err := probeHistory(led, hist, lvl.BranchID, boundary)
		if err != nil {
			return nil, false, false, err
		}
		if hit {
			return payload, tomb, true, nil
		}
	}
	return nil, false, false, nil
}

// Get resolves a point-in-time read: the ancestry walk of spec §4.6.
func (s *Store[K, V]) Get(key K, branchName string, version uint64) (V, bool, error) {
	var zero V
	b, ok, err := s.led.BranchByName(branchName)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, vsdberr.New("versioned.Get", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	hist, ok, err := s.historyFor(key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	payload, tomb, hit, err := ancestryWalk(s.led, hist, b, version)
	if err != nil || !hit {
		return zero, false, err
	}
	if tomb {
		return zero, false, nil
	}
	v, err := s.vc.Decode(payload)
	return v, true, err
}

// GetByBranchVersion is Get under the spec's capability name (§4.7).
func (s *Store[K, V]) GetByBranchVersion(key K, branchName string, version uint64) (V, bool, error) {
	return s.Get(key, branchName, version)
}

// GetTip reads key at branchName's current tip.
func (s *Store[K, V]) GetTip(key K, branchName string) (V, bool, error) {
	var zero V
	b, ok, err := s.led.BranchByName(branchName)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, vsdberr.New("versioned.GetTip", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err := s.led.Tip(b.ID)
	if err != nil || !ok {
		return zero, false, err
	}
	return s.Get(key, branchName, tip)
}

// Insert writes value at key, tagged with branchName's current tip (spec
// §4.6: writes always land on the tip; there is no way through this API to
// address a non-tip version, which is how tip-only validation is enforced).
func (s *Store[K, V]) Insert(key K, value V, branchName string) error {
	b, ok, err := s.led.BranchByName(branchName)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.Insert", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err := s.led.Tip(b.ID)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.Insert", vsdberr.InvalidCoordinate, fmt.Errorf("branch %q has no versions", branchName))
	}
	payload, err := s.vc.Encode(value)
	if err != nil {
		return err
	}
	hist, err := s.historyForWrite(key)
	if err != nil {
		return err
	}
	buf := append([]byte{tagValue}, payload...)
	_, _, err = hist.Insert(vidCodec.Encode(tip), buf)
	return err
}

// Remove writes a tombstone at key, tagged with branchName's current tip.
func (s *Store[K, V]) Remove(key K, branchName string) error {
	b, ok, err := s.led.BranchByName(branchName)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.Remove", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err := s.led.Tip(b.ID)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.Remove", vsdberr.InvalidCoordinate, fmt.Errorf("branch %q has no versions", branchName))
	}
	hist, err := s.historyForWrite(key)
	if err != nil {
		return err
	}
	_, _, err = hist.Insert(vidCodec.Encode(tip), []byte{tagTombstone})
	return err
}

// popVersionData deletes every key's history entry at versionID. Part of
// the Collection interface Group uses to forward version_pop (spec §4.7).
func (s *Store[K, V]) popVersionData(_ uint64, versionID uint64) error {
	prefixes, err := s.allPrefixes()
	if err != nil {
		return err
	}
	return popVersionDataAt(s.router, prefixes, versionID)
}

// pruneData coalesces, per key, every entry older than cutoff that belongs
// to branchID into a single surviving entry at cutoff (spec §4.6).
func (s *Store[K, V]) pruneData(branchID, cutoff uint64) error {
	prefixes, err := s.allPrefixes()
	if err != nil {
		return err
	}
	return pruneDataAt(s.led, s.router, prefixes, branchID, cutoff)
}

// mergeData re-emits, for every key, the latest write among versions (in
// ascending order — last-writer-wins, spec §4.6) as a new entry at
// parentTip.
func (s *Store[K, V]) mergeData(parentTip uint64, versions []uint64) error {
	prefixes, err := s.allPrefixes()
	if err != nil {
		return err
	}
	return mergeDataAt(s.router, prefixes, parentTip, versions)
}

// popVersionDataAt, pruneDataAt, and mergeDataAt implement the VsMgmt data
// forwarding Group needs (version_pop, prune, branch_merge — spec §4.6,
// §4.7) against a plain list of per-key history prefixes. Factored out of
// Store so OrdMap's separately-keyed index can share them instead of
// duplicating the per-key history bookkeeping.
func popVersionDataAt(router collections.AreaRouter, prefixes []uint64, versionID uint64) error {
	vk := vidCodec.Encode(versionID)
	for _, p := range prefixes {
		if _, _, err := rawmap.New(router.AreaTree(p), p).Remove(vk); err != nil {
			return err
		}
	}
	return nil
}

func pruneDataAt(led *ledger.Ledger, router collections.AreaRouter, prefixes []uint64, branchID, cutoff uint64) error {
	cutoffKey := vidCodec.Encode(cutoff)
	for _, p := range prefixes {
		hist := rawmap.New(router.AreaTree(p), p)
		c, err := hist.Range(storage.Bound{Kind: storage.Unbounded}, storage.HiExcl(cutoffKey), false)
		if err != nil {
			return err
		}
		var toDelete [][]byte
		var survivor []byte
		var found bool
		for c.Next() {
			vid, err := vidCodec.Decode(c.Key())
			if err != nil {
				c.Close()
				return err
			}
			owns, err := led.Owns(branchID, vid)
			if err != nil {
				c.Close()
				return err
			}
			if !owns {
				continue
			}
			toDelete = append(toDelete, append([]byte{}, c.Key()...))
			survivor = append([]byte{}, c.Value()...)
			found = true
		}
		if err := c.Err(); err != nil {
			c.Close()
			return err
		}
		c.Close()
		if !found {
			continue
		}
		for _, k := range toDelete {
			if _, _, err := hist.Remove(k); err != nil {
				return err
			}
		}
		if _, existing, err := hist.Get(cutoffKey); err != nil {
			return err
		} else if !existing && survivor[0] == tagValue {
			if _, _, err := hist.Insert(cutoffKey, survivor); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeDataAt(router collections.AreaRouter, prefixes []uint64, parentTip uint64, versions []uint64) error {
	owned := make(map[uint64]bool, len(versions))
	for _, v := range versions {
		owned[v] = true
	}
	tipKey := vidCodec.Encode(parentTip)
	for _, p := range prefixes {
		hist := rawmap.New(router.AreaTree(p), p)
		c, err := hist.Iter()
		if err != nil {
			return err
		}
		var latest []byte
		var found bool
		for c.Next() {
			vid, err := vidCodec.Decode(c.Key())
			if err != nil {
				c.Close()
				return err
			}
			if owned[vid] {
				latest = append([]byte{}, c.Value()...)
				found = true
			}
		}
		if err := c.Err(); err != nil {
			c.Close()
			return err
		}
		c.Close()
		if !found {
			continue
		}
		if _, _, err := hist.Insert(tipKey, latest); err != nil {
			return err
		}
	}
	vsdblog.Store.Debug().Uint64("parent_tip", parentTip).Int("versions", len(versions)).Msg("branch merge re-emitted writes")
	return nil
}

func (s *Store[K, V]) allPrefixes() ([]uint64, error) {
	c, err := s.idx.Iter()
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
