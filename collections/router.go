package collections

import "github.com/Klingon-tech/vsdb/internal/storage"

// AreaRouter maps a freshly allocated prefix to the backend tree its data
// should live in — the Area Router of spec §4.2, wired at the point a
// collection is created so logical maps fan out across the backend's
// physical sub-trees instead of funneling through one.
type AreaRouter interface {
	AreaTree(prefix uint64) storage.Tree
}

// fixedRouter routes every prefix to the same tree — used for the ledger's
// and the versioned index's own bookkeeping collections, which belong in
// the meta sub-tree regardless of their prefix's residue mod AreaCount.
type fixedRouter struct{ t storage.Tree }

func (f fixedRouter) AreaTree(uint64) storage.Tree { return f.t }

// Fixed wraps a single tree as an AreaRouter that always returns it.
func Fixed(t storage.Tree) AreaRouter { return fixedRouter{t: t} }
