package collections

import (
	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/storage"
)

// unit is Scalar's single degenerate key: encoding it always yields the
// zero-length key (spec §4.4: "Scalar<T> is OrdMap<(), T>").
type unit struct{}

type unitKey struct{}

func (unitKey) Encode(unit) []byte            { return nil }
func (unitKey) Decode([]byte) (unit, error)   { return unit{}, nil }

// Scalar holds exactly one value of type T, addressed at the empty key —
// the degenerate OrdMap<(), T> named in spec §4.4. Useful for a
// collection's single root metadata value (e.g. the ledger's default
// branch id).
type Scalar[T any] struct {
	ord *OrdMap[unit, T]
}

// NewScalar allocates a fresh prefix and returns an unset Scalar.
func NewScalar[T any](router AreaRouter, alloc *prefix.Allocator) (*Scalar[T], error) {
	ord, err := NewOrdMap[unit, T](router, alloc, unitKey{})
	if err != nil {
		return nil, err
	}
	return &Scalar[T]{ord: ord}, nil
}

// OpenScalar returns a handle to the Scalar namespaced at an
// already-allocated prefix.
func OpenScalar[T any](tree storage.Tree, p uint64) *Scalar[T] {
	return &Scalar[T]{ord: OpenOrdMap[unit, T](tree, p, unitKey{})}
}

// Prefix returns the scalar's namespace prefix.
func (s *Scalar[T]) Prefix() uint64 { return s.ord.Prefix() }

// Get returns the held value, or ok=false if never set.
func (s *Scalar[T]) Get() (T, bool, error) {
	return s.ord.Get(unit{})
}

// Set stores value, returning the prior value if any.
func (s *Scalar[T]) Set(value T) (prior T, hadPrior bool, err error) {
	return s.ord.Insert(unit{}, value)
}

// Clear unsets the value.
func (s *Scalar[T]) Clear() error { return s.ord.Clear() }

// IsSet reports whether a value is currently held.
func (s *Scalar[T]) IsSet() (bool, error) { return s.ord.Contains(unit{}) }
