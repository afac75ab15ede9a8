package versioned

import (
	"github.com/Klingon-tech/vsdb/collections"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/ledger"
)

// Map is the versioned counterpart of collections.Map: same read/write
// surface, addressed by (branch, version) instead of directly (spec §4.7).
type Map[K, V any] struct{ *Store[K, V] }

// NewMap allocates a fresh key index and returns an empty versioned Map.
func NewMap[K, V any](router collections.AreaRouter, alloc *prefix.Allocator, led *ledger.Ledger) (*Map[K, V], error) {
	s, err := NewStore[K, V](router, alloc, led)
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{s}, nil
}

// Vec is the versioned counterpart of collections.Vec, keyed by uint64 index.
type Vec[V any] struct{ *Store[uint64, V] }

// NewVec allocates a fresh key index and returns an empty versioned Vec.
func NewVec[V any](router collections.AreaRouter, alloc *prefix.Allocator, led *ledger.Ledger) (*Vec[V], error) {
	s, err := NewStore[uint64, V](router, alloc, led)
	if err != nil {
		return nil, err
	}
	return &Vec[V]{s}, nil
}

// Len returns the number of elements ever pushed at branchName's tip (the
// next free index) by probing sequentially from 0. Vec's versioned form
// tracks length implicitly: callers push at Len(branchName) and pop at
// Len(branchName)-1.
func (v *Vec[V]) Len(branchName string) (uint64, error) {
	var n uint64
	for {
		_, ok, err := v.GetTip(n, branchName)
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// Push appends value at branchName's tip, returning its index.
func (v *Vec[V]) Push(value V, branchName string) (uint64, error) {
	n, err := v.Len(branchName)
	if err != nil {
		return 0, err
	}
	if err := v.Insert(n, value, branchName); err != nil {
		return 0, err
	}
	return n, nil
}

// unit is Scalar's degenerate key — the versioned OrdMap<(), T> (spec §4.4, §4.7).
type unit struct{}

// Scalar is the versioned counterpart of collections.Scalar: a single
// versioned cell.
type Scalar[V any] struct{ *Store[unit, V] }

// NewScalar allocates a fresh key index and returns an unset versioned Scalar.
func NewScalar[V any](router collections.AreaRouter, alloc *prefix.Allocator, led *ledger.Ledger) (*Scalar[V], error) {
	s, err := NewStore[unit, V](router, alloc, led)
	if err != nil {
		return nil, err
	}
	return &Scalar[V]{s}, nil
}

// Get returns the value at branchName's tip.
func (s *Scalar[V]) Get(branchName string) (V, bool, error) {
	return s.GetTip(unit{}, branchName)
}

// Set writes value at branchName's tip.
func (s *Scalar[V]) Set(value V, branchName string) error {
	return s.Insert(unit{}, value, branchName)
}
