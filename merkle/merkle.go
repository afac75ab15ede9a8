// Package merkle is the Merkle Helper (spec §4.8): an auxiliary, orthogonal
// to the versioned store, that turns an ordered sequence of byte leaves
// into a Merkle root, with inclusion proofs and verification. Grounded on
// the teacher's pkg/block/merkle.go pairwise-hash-with-last-duplication
// algorithm and pkg/crypto/hash.go's blake3 hashing, generalized from
// transaction hashes to arbitrary leaves.
package merkle

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a BLAKE3-256 digest.
type Hash [32]byte

func hashLeaf(data []byte) Hash {
	return blake3.Sum256(data)
}

// hashConcat hashes the concatenation of two hashes — the internal-node
// combinator, identical in shape to the teacher's HashConcat.
func hashConcat(a, b Hash) Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return blake3.Sum256(buf[:])
}

func hashLeaves(leaves [][]byte) []Hash {
	out := make([]Hash, len(leaves))
	for i, l := range leaves {
		out[i] = hashLeaf(l)
	}
	return out
}

// New computes the Merkle root of leaves. Zero leaves yields the zero
// hash; one leaf yields its own hash; otherwise pairwise-hashes levels,
// duplicating the last element of an odd level, until one hash remains.
func New(leaves [][]byte) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := hashLeaves(leaves)
	for len(level) > 1 {
		level = pairUp(level)
	}
	return level[0]
}

func pairUp(level []Hash) []Hash {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	next := make([]Hash, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next[i/2] = hashConcat(level[i], level[i+1])
	}
	return next
}

// Step is one sibling hash on the path from a leaf to the root. OnRight
// reports that the node on the path sits on the right, i.e. the sibling is
// on the left and is hashed first, since hashConcat is order-sensitive.
type Step struct {
	Sibling  Hash
	OnRight  bool
}

// Proof returns the inclusion path for leaves[index].
func Proof(leaves [][]byte, index int) ([]Step, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkle: index %d out of range (%d leaves)", index, len(leaves))
	}
	level := hashLeaves(leaves)
	idx := index
	var path []Step
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		var sibIdx int
		var onRight bool
		if idx%2 == 0 {
			sibIdx, onRight = idx+1, false
		} else {
			sibIdx, onRight = idx-1, true
		}
		path = append(path, Step{Sibling: level[sibIdx], OnRight: onRight})
		level = pairUp(level)
		idx /= 2
	}
	return path, nil
}

// Verify recomputes the root from leaf and path and compares it to root.
func Verify(root Hash, leaf []byte, path []Step) bool {
	cur := hashLeaf(leaf)
	for _, step := range path {
		if step.OnRight {
			cur = hashConcat(step.Sibling, cur)
		} else {
			cur = hashConcat(cur, step.Sibling)
		}
	}
	return cur == root
}
