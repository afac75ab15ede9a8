// Package storage implements the VSDB backend contract (spec §6): an
// ordered byte-store with multiple named sub-trees ("areas"), get/insert/
// remove, prefix/range scan with per-side inclusive/exclusive/unbounded
// bounds, a single-key atomic update primitive, and durable flush.
//
// Two interchangeable implementations are provided: Badger (durable, disk
// backed) and Memory (an ordered in-memory store for tests and ephemeral
// use). Both satisfy the same Backend interface so the rest of the engine
// never branches on which one is open.
package storage

import "fmt"

// BoundKind classifies one side of a range.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is one side of a logical range, expressed in the caller's own
// (unprefixed) key space. Resolve translates a (lo, hi) pair scoped to a
// given namespace prefix into concrete Tree.Scan arguments; Tree itself
// never sees Unbounded; every caller into a Tree must Resolve first.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

// Lo builds an inclusive lower bound.
func Lo(key []byte) Bound { return Bound{Kind: Included, Key: key} }

// HiExcl builds an exclusive upper bound — the common case for half-open
// ranges.
func HiExcl(key []byte) Bound { return Bound{Kind: Excluded, Key: key} }

// HiIncl builds an inclusive upper bound.
func HiIncl(key []byte) Bound { return Bound{Kind: Included, Key: key} }

// Iterator walks key/value pairs in one direction. Callers must call Close
// when done; the underlying transaction or snapshot is released only then.
type Iterator interface {
	// Next advances the iterator and reports whether a pair is available.
	Next() bool
	Key() []byte
	Value() []byte
	// Err returns any error encountered during iteration; check after Next
	// returns false.
	Err() error
	Close()
}

// Tree is one named sub-tree (area) of the backend. Scan's bounds must
// already be concrete, namespace-prefixed byte keys with an explicit
// inclusive/exclusive flag on each side — callers resolve Unbounded via
// Resolve before calling Scan, so a Tree never has to guess where one
// logical map's namespace ends and the next one's begins.
type Tree interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error

	// AtomicUpdate reads the current value at key (nil if absent), applies
	// fn, and writes the result back as a single linearizable step. fn must
	// be pure: it may be invoked more than once under contention.
	AtomicUpdate(key []byte, fn func(cur []byte) []byte) ([]byte, error)

	// Scan returns an iterator over keys bounded by (loKey, loIncl) and
	// (hiKey, hiIncl), ascending if reverse is false, descending otherwise.
	Scan(loKey []byte, loIncl bool, hiKey []byte, hiIncl bool, reverse bool) (Iterator, error)

	Flush() error
}

// Backend opens a fixed number of Trees (areas) over one physical store.
type Backend interface {
	Tree(area int) Tree
	AreaCount() int
	Close() error
}

// NextPrefix returns the lexicographically smallest byte string that is
// strictly greater than every string with prefix p — i.e. p incremented as
// a big-endian integer, growing in length only on all-0xFF overflow (which
// the 8-byte prefix space never reaches in practice, since allocation is
// bounded far below 2^64). This is how "unbounded high" becomes "next
// prefix, exclusive" so a range scan never leaks into an adjacent
// namespace.
func NextPrefix(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return append(out, 0x00)
}

// ConcatKey returns prefix‖key as a fresh slice.
func ConcatKey(prefix, key []byte) []byte {
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}

// Resolve translates a logical (lo, hi) bound pair scoped to prefix into
// the concrete Tree.Scan arguments, per spec §4.3/§9: Unbounded on the low
// side becomes prefix itself (inclusive); Unbounded on the high side
// becomes NextPrefix(prefix) (exclusive) — the natural prefix scan.
func Resolve(prefix []byte, lo, hi Bound) (loKey []byte, loIncl bool, hiKey []byte, hiIncl bool) {
	switch lo.Kind {
	case Unbounded:
		loKey, loIncl = prefix, true
	case Included:
		loKey, loIncl = ConcatKey(prefix, lo.Key), true
	case Excluded:
		loKey, loIncl = ConcatKey(prefix, lo.Key), false
	}
	switch hi.Kind {
	case Unbounded:
		hiKey, hiIncl = NextPrefix(prefix), false
	case Included:
		hiKey, hiIncl = ConcatKey(prefix, hi.Key), true
	case Excluded:
		hiKey, hiIncl = ConcatKey(prefix, hi.Key), false
	}
	return
}

func errUnknownArea(area, count int) error {
	return fmt.Errorf("storage: area %d out of range [0,%d)", area, count)
}
