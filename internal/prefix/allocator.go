// Package prefix implements the Prefix Allocator (spec §4.1): a single
// persisted counter handing out globally unique 8-byte namespace prefixes,
// with branch-id and version-id allocation as thin aliases over the same
// monotone counter.
package prefix

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/vsdb/internal/storage"
	"github.com/Klingon-tech/vsdb/internal/vsdblog"
)

// Reserved is the first non-reserved prefix value (spec §3); values below
// it are never handed out by Alloc. Null marks "no branch".
const (
	Reserved = 40_000_000
	Null     = Reserved - 1
)

// counterKey is the one meta-sub-tree key (0x00, one byte) holding the
// next-free prefix as 8 big-endian bytes (spec §6).
var counterKey = []byte{0x00}

// Allocator hands out unique prefixes from a single persisted counter.
type Allocator struct {
	meta storage.Tree
}

// Open binds an Allocator to the meta tree, initializing the counter to
// Reserved on first use.
func Open(meta storage.Tree) (*Allocator, error) {
	a := &Allocator{meta: meta}
	_, ok, err := meta.Get(counterKey)
	if err != nil {
		return nil, fmt.Errorf("prefix: read counter: %w", err)
	}
	if !ok {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, Reserved)
		if err := meta.Set(counterKey, buf); err != nil {
			return nil, fmt.Errorf("prefix: initialize counter: %w", err)
		}
	}
	return a, nil
}

// Alloc performs the atomic read-modify-write and returns the pre-increment
// value: the freshly allocated prefix.
func (a *Allocator) Alloc() (uint64, error) {
	var allocated uint64
	_, err := a.meta.AtomicUpdate(counterKey, func(cur []byte) []byte {
		var n uint64
		if len(cur) == 8 {
			n = binary.BigEndian.Uint64(cur)
		} else {
			n = Reserved
		}
		allocated = n
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, n+1)
		return out
	})
	if err != nil {
		vsdblog.Allocator.Error().Err(err).Msg("prefix allocation failed")
		return 0, fmt.Errorf("prefix: alloc: %w", err)
	}
	return allocated, nil
}

// AllocBranchID is a thin alias over Alloc: branch-ids and version-ids and
// plain collection prefixes are all drawn from the same monotone counter,
// so identifiers are globally unique across all three categories.
func (a *Allocator) AllocBranchID() (uint64, error) { return a.Alloc() }

// AllocVersionID is a thin alias over Alloc (see AllocBranchID).
func (a *Allocator) AllocVersionID() (uint64, error) { return a.Alloc() }
