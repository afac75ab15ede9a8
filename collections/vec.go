package collections

import (
	"fmt"

	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/storage"
	"github.com/Klingon-tech/vsdb/vsdberr"
)

// Vec is a 0-indexed, append/pop sequence, keyed by its fixed-width
// big-endian index (spec §4.4) so entries stay in index order under range
// scans.
type Vec[T any] struct {
	ord *OrdMap[uint64, T]
}

// NewVec allocates a fresh prefix and returns an empty Vec.
func NewVec[T any](router AreaRouter, alloc *prefix.Allocator) (*Vec[T], error) {
	ord, err := NewOrdMap[uint64, T](router, alloc, codec.Uint64Key{})
	if err != nil {
		return nil, err
	}
	return &Vec[T]{ord: ord}, nil
}

// OpenVec returns a handle to the Vec namespaced at an already-allocated prefix.
func OpenVec[T any](tree storage.Tree, p uint64) *Vec[T] {
	return &Vec[T]{ord: OpenOrdMap[uint64, T](tree, p, codec.Uint64Key{})}
}

// Prefix returns the vec's namespace prefix.
func (v *Vec[T]) Prefix() uint64 { return v.ord.Prefix() }

// Len returns the number of elements.
func (v *Vec[T]) Len() (uint64, error) { return v.ord.Len() }

// Get returns the element at index, or ok=false if index is out of range.
func (v *Vec[T]) Get(index uint64) (T, bool, error) {
	return v.ord.Get(index)
}

// Set overwrites the element at index. index must be < Len().
func (v *Vec[T]) Set(index uint64, value T) error {
	n, err := v.Len()
	if err != nil {
		return err
	}
	if index >= n {
		return vsdberr.New("collections.Vec.Set", vsdberr.InvalidCoordinate,
			fmt.Errorf("index %d out of range (len %d)", index, n))
	}
	_, _, err = v.ord.Insert(index, value)
	return err
}

// Push appends value, returning its new index.
func (v *Vec[T]) Push(value T) (uint64, error) {
	n, err := v.Len()
	if err != nil {
		return 0, err
	}
	if _, _, err := v.ord.Insert(n, value); err != nil {
		return 0, err
	}
	return n, nil
}

// Pop removes and returns the last element, or ok=false if empty.
func (v *Vec[T]) Pop() (value T, ok bool, err error) {
	n, err := v.Len()
	if err != nil || n == 0 {
		return value, false, err
	}
	value, ok, err = v.ord.Get(n - 1)
	if err != nil || !ok {
		return value, false, err
	}
	_, _, err = v.ord.Remove(n - 1)
	return value, true, err
}

// IsEmpty reports whether Len() == 0.
func (v *Vec[T]) IsEmpty() (bool, error) { return v.ord.IsEmpty() }

// Clear removes every element.
func (v *Vec[T]) Clear() error { return v.ord.Clear() }

// Iter walks every element in index order.
func (v *Vec[T]) Iter() (*OrdCursor[uint64, T], error) { return v.ord.Iter() }
