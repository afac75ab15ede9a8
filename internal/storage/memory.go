package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// MemoryBackend implements Backend as AreaCount independent ordered
// in-memory trees. Ordering matters here the way it never does for a plain
// map-backed store: OrdMap range scans and the ancestry walk's reverse
// history scans both depend on the backend returning keys in true
// lexicographic order, so this implementation is a google/btree index
// rather than a Go map.
type MemoryBackend struct {
	trees []*memTree
}

// OpenMemory creates an ephemeral, non-durable backend with areaCount areas.
func OpenMemory(areaCount int) *MemoryBackend {
	trees := make([]*memTree, areaCount)
	for i := range trees {
		trees[i] = newMemTree()
	}
	return &MemoryBackend{trees: trees}
}

func (m *MemoryBackend) AreaCount() int { return len(m.trees) }

func (m *MemoryBackend) Tree(area int) Tree {
	if area < 0 || area >= len(m.trees) {
		panic(errUnknownArea(area, len(m.trees)))
	}
	return m.trees[area]
}

// Close is a no-op: there is nothing to flush or release.
func (m *MemoryBackend) Close() error { return nil }

type memItem struct {
	key, val []byte
}

func memLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

type memTree struct {
	mu   sync.RWMutex
	data *btree.BTreeG[memItem]
}

func newMemTree() *memTree {
	return &memTree{data: btree.NewG(32, memLess)}
}

func (t *memTree) Get(key []byte) ([]byte, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.data.Get(memItem{key: key})
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(item.val), true, nil
}

func (t *memTree) Set(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.ReplaceOrInsert(memItem{key: cloneBytes(key), val: cloneBytes(value)})
	return nil
}

func (t *memTree) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Delete(memItem{key: key})
	return nil
}

func (t *memTree) AtomicUpdate(key []byte, fn func(cur []byte) []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var cur []byte
	if item, ok := t.data.Get(memItem{key: key}); ok {
		cur = item.val
	}
	next := fn(cur)
	t.data.ReplaceOrInsert(memItem{key: cloneBytes(key), val: cloneBytes(next)})
	return next, nil
}

// Scan materializes the bounded range under the tree's read lock (so the
// caller's possibly long-lived iteration never blocks writers), then hands
// back a slice-backed Iterator over that snapshot.
//
// Bounds are applied by exact byte comparison against each visited key,
// the same technique badgerTree's seekStart/Next use, rather than by
// mutating loKey/hiKey with NextPrefix: NextPrefix only computes the
// exclusive edge of "every key starting with p" (the namespace-boundary
// use in Resolve), not "the next key after an arbitrary, possibly
// variable-length loKey/hiKey" — those differ whenever another stored key
// is a proper extension of the bound (e.g. "abc" properly extends "ab").
func (t *memTree) Scan(loKey []byte, loIncl bool, hiKey []byte, hiIncl bool, reverse bool) (Iterator, error) {
	t.mu.RLock()
	var out []memItem
	t.data.AscendGreaterOrEqual(memItem{key: loKey}, func(it memItem) bool {
		cmp := bytes.Compare(it.key, hiKey)
		if cmp > 0 || (cmp == 0 && !hiIncl) {
			return false
		}
		if bytes.Equal(it.key, loKey) && !loIncl {
			return true
		}
		out = append(out, memItem{key: cloneBytes(it.key), val: cloneBytes(it.val)})
		return true
	})
	t.mu.RUnlock()

	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return &sliceIter{items: out, pos: -1}, nil
}

func (t *memTree) Flush() error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

type sliceIter struct {
	items []memItem
	pos   int
}

func (s *sliceIter) Next() bool {
	s.pos++
	return s.pos < len(s.items)
}

func (s *sliceIter) Key() []byte   { return s.items[s.pos].key }
func (s *sliceIter) Value() []byte { return s.items[s.pos].val }
func (s *sliceIter) Err() error    { return nil }
func (s *sliceIter) Close()        {}
