// Package codec implements VSDB's Codec contract (spec §6): a general
// reversible value↔bytes codec, and an order-preserving key↔bytes codec
// whose byte order matches the encoded type's natural order, so backend
// range scans reflect semantic order (spec §4.4).
//
// Two codecs are pluggable but interchangeable per spec §6; Value is
// implemented over msgpack (the general codec) and the Key family below is
// implemented on encoding/binary, since no library in the reference corpus
// offers an order-preserving encoding and this one primitive is narrow
// enough to not warrant pulling one in (see DESIGN.md).
package codec

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Klingon-tech/vsdb/vsdberr"
)

// ValueCodec is the general reversible value codec required by Map, Vec,
// and Scalar (spec §4.4), and by every ledger/metadata record.
type ValueCodec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// Msgpack is the default ValueCodec, backed by msgpack/v5 — round-trip
// exact for any value msgpack can marshal, which is the spec's only
// requirement of the general codec.
type Msgpack[T any] struct{}

func (Msgpack[T]) Encode(v T) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, vsdberr.New("codec.Msgpack.Encode", vsdberr.DecodeError, err)
	}
	return b, nil
}

func (Msgpack[T]) Decode(b []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(b, &v); err != nil {
		var zero T
		return zero, vsdberr.New("codec.Msgpack.Decode", vsdberr.DecodeError, err)
	}
	return v, nil
}

// KeyCodec is the order-preserving key codec required by OrdMap (spec
// §4.4): Encode's byte order must match K's natural order.
type KeyCodec[K any] interface {
	Encode(k K) []byte
	Decode(b []byte) (K, error)
}

// Uint64Key encodes uint64 as 8 fixed-width big-endian bytes — memcmp order
// equals numeric order. Also the codec Vec uses for its index (spec §4.4:
// "Vec<T> encodes the index as fixed-width big-endian").
type Uint64Key struct{}

func (Uint64Key) Encode(k uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(k)
		k >>= 8
	}
	return b
}

func (Uint64Key) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, vsdberr.New("codec.Uint64Key.Decode", vsdberr.DecodeError,
			fmt.Errorf("want 8 bytes, got %d", len(b)))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// Int64Key encodes int64 order-preservingly by flipping the sign bit before
// big-endian encoding: this maps the signed range onto the unsigned range
// in the same relative order, so memcmp on the encoded bytes matches
// numeric order including across the zero crossing.
type Int64Key struct{}

func (Int64Key) Encode(k int64) []byte {
	u := uint64(k) ^ (1 << 63)
	return Uint64Key{}.Encode(u)
}

func (Int64Key) Decode(b []byte) (int64, error) {
	u, err := Uint64Key{}.Decode(b)
	if err != nil {
		return 0, err
	}
	return int64(u ^ (1 << 63)), nil
}

// BytesKey is the identity codec: raw byte strings already compare in their
// own natural order.
type BytesKey struct{}

func (BytesKey) Encode(k []byte) []byte         { return append([]byte{}, k...) }
func (BytesKey) Decode(b []byte) ([]byte, error) { return append([]byte{}, b...), nil }

// StringKey encodes a string as its UTF-8 bytes, which compare in the same
// order as Go's native string comparison (both are byte-wise).
type StringKey struct{}

func (StringKey) Encode(k string) []byte { return []byte(k) }
func (StringKey) Decode(b []byte) (string, error) { return string(b), nil }

// Uint64PairKey encodes a (high, low) pair of uint64s as 16 fixed-width
// big-endian bytes, ordered first by high then by low — used for the
// ledger's per-branch owned-version set, where high is the branch-id and
// low the version-id, so a range scan over one branch-id's prefix yields
// its versions in allocation order.
type Uint64PairKey struct{}

type Pair struct{ High, Low uint64 }

func (Uint64PairKey) Encode(k Pair) []byte {
	b := make([]byte, 16)
	copy(b[0:8], Uint64Key{}.Encode(k.High))
	copy(b[8:16], Uint64Key{}.Encode(k.Low))
	return b
}

func (Uint64PairKey) Decode(b []byte) (Pair, error) {
	if len(b) != 16 {
		return Pair{}, fmt.Errorf("codec.Uint64PairKey.Decode: want 16 bytes, got %d", len(b))
	}
	hi, _ := Uint64Key{}.Decode(b[0:8])
	lo, _ := Uint64Key{}.Decode(b[8:16])
	return Pair{High: hi, Low: lo}, nil
}

// Float64Key encodes float64 order-preservingly: flip all bits for
// negative numbers and just the sign bit for non-negative ones, so the IEEE
// 754 bit pattern's big-endian bytes sort the same way the floats compare
// (NaN excluded — callers should not use NaN as an ordered key).
type Float64Key struct{}

func (Float64Key) Encode(k float64) []byte {
	bits := math.Float64bits(k)
	if k >= 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	return Uint64Key{}.Encode(bits)
}

func (Float64Key) Decode(b []byte) (float64, error) {
	bits, err := Uint64Key{}.Decode(b)
	if err != nil {
		return 0, err
	}
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}
