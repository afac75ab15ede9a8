// Package ledger implements the Version Ledger (spec §4.5): the
// branch-name↔id and version-name↔id bijections, per-branch owned-version
// sets, and ancestor chains that let the versioned store resolve a
// point-in-time read without walking the whole history on every fork.
package ledger

import (
	"fmt"

	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/collections"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/storage"
	"github.com/Klingon-tech/vsdb/internal/vsdblog"
	"github.com/Klingon-tech/vsdb/vsdberr"
)

// MainBranchID and MainBranchName are the fixed identity of the default
// branch (spec §3): id 0, drawn outside the RESERVED counter space because
// it exists before any allocation happens.
const (
	MainBranchID   uint64 = 0
	MainBranchName        = "main"
)

// AncestorsLimit bounds a branch's parent chain depth (spec §3, §4.5).
const AncestorsLimit = 128

// AncestorLink records that a branch forked from BranchID at ForkVersion:
// reads on the child never see versions on BranchID newer than ForkVersion.
type AncestorLink struct {
	BranchID    uint64
	ForkVersion uint64
}

// Branch is one named lineage (spec §3).
type Branch struct {
	ID        uint64
	Name      string
	Ancestors []AncestorLink // immediate parent first, root last; excludes self
}

// Version is one named point on a branch (spec §3).
type Version struct {
	ID       uint64
	Name     []byte
	BranchID uint64
}

// Ledger is the Version Ledger: the branch and version name↔id bijections
// (each held as a name→id and an id→info map) plus the owned-version sets
// and ancestor chains, each a collection over its own allocated prefix
// inside the meta area.
type Ledger struct {
	branchNameToID *collections.Map[string, uint64]
	branchIDToInfo *collections.Map[uint64, Branch]
	versNameToID   *collections.Map[string, uint64]
	versIDToInfo   *collections.Map[uint64, Version]
	owned          *collections.OrdMap[codec.Pair, struct{}] // (branchID,versionID) -> present
	alloc          *prefix.Allocator
}

// Open binds a Ledger to tree, registering the default "main" branch (id 0)
// on first use.
func Open(tree storage.Tree, alloc *prefix.Allocator) (*Ledger, error) {
	router := collections.Fixed(tree)
	branchNameToID, err := collections.NewMap[string, uint64](router, alloc)
	if err != nil {
		return nil, fmt.Errorf("ledger: branch name index: %w", err)
	}
	branchIDToInfo, err := collections.NewMap[uint64, Branch](router, alloc)
	if err != nil {
		return nil, fmt.Errorf("ledger: branch info index: %w", err)
	}
	versNameToID, err := collections.NewMap[string, uint64](router, alloc)
	if err != nil {
		return nil, fmt.Errorf("ledger: version name index: %w", err)
	}
	versIDToInfo, err := collections.NewMap[uint64, Version](router, alloc)
	if err != nil {
		return nil, fmt.Errorf("ledger: version info index: %w", err)
	}
	owned, err := collections.NewOrdMap[codec.Pair, struct{}](router, alloc, codec.Uint64PairKey{})
	if err != nil {
		return nil, fmt.Errorf("ledger: owned-version index: %w", err)
	}

	l := &Ledger{
		branchNameToID: branchNameToID,
		branchIDToInfo: branchIDToInfo,
		versNameToID:   versNameToID,
		versIDToInfo:   versIDToInfo,
		owned:          owned,
		alloc:          alloc,
	}

	if ok, err := l.branchIDToInfo.Contains(MainBranchID); err != nil {
		return nil, err
	} else if !ok {
		main := Branch{ID: MainBranchID, Name: MainBranchName}
		if _, _, err := l.branchIDToInfo.Insert(MainBranchID, main); err != nil {
			return nil, err
		}
		if _, _, err := l.branchNameToID.Insert(MainBranchName, MainBranchID); err != nil {
			return nil, err
		}
		// The initial version has a zero-length name (spec §3).
		v0, err := l.alloc.AllocVersionID()
		if err != nil {
			return nil, err
		}
		if _, _, err := l.versIDToInfo.Insert(v0, Version{ID: v0, Name: nil, BranchID: MainBranchID}); err != nil {
			return nil, err
		}
		if _, _, err := l.versNameToID.Insert("", v0); err != nil {
			return nil, err
		}
		if _, _, err := l.owned.Insert(codec.Pair{High: MainBranchID, Low: v0}, struct{}{}); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// BranchByName resolves a branch by name.
func (l *Ledger) BranchByName(name string) (Branch, bool, error) {
	id, ok, err := l.branchNameToID.Get(name)
	if err != nil || !ok {
		return Branch{}, false, err
	}
	return l.branchIDToInfo.Get(id)
}

// BranchByID resolves a branch by id.
func (l *Ledger) BranchByID(id uint64) (Branch, bool, error) {
	return l.branchIDToInfo.Get(id)
}

// VersionByID resolves a version by id.
func (l *Ledger) VersionByID(id uint64) (Version, bool, error) {
	return l.versIDToInfo.Get(id)
}

// Tip returns the branch's newest owned version-id.
func (l *Ledger) Tip(branchID uint64) (uint64, bool, error) {
	e, ok, err := l.owned.GetLE(codec.Pair{High: branchID, Low: ^uint64(0)})
	if err != nil || !ok || e.Key.High != branchID {
		return 0, false, err
	}
	return e.Key.Low, true, nil
}

// OwnedVersions returns branchID's owned version-ids in allocation order.
func (l *Ledger) OwnedVersions(branchID uint64) ([]uint64, error) {
	c, err := l.owned.Range(
		collections.Incl(codec.Pair{High: branchID, Low: 0}),
		collections.Incl(codec.Pair{High: branchID, Low: ^uint64(0)}),
		false,
	)
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
		out = append(out, e.Key.Low)
	}
	return out, c.Err()
}

// CreateBranch forks a new branch named name from (parentBranchID,
// parentVersion), allocating a fresh branch-id and an initial version.
func (l *Ledger) CreateBranch(name string, parentBranchID, parentVersion uint64) (Branch, error) {
	if _, exists, err := l.branchNameToID.Get(name); err != nil {
		return Branch{}, err
	} else if exists {
		return Branch{}, vsdberr.New("ledger.CreateBranch", vsdberr.Conflict, fmt.Errorf("branch %q already exists", name))
	}
	parent, ok, err := l.branchIDToInfo.Get(parentBranchID)
	if err != nil {
		return Branch{}, err
	}
	if !ok {
		return Branch{}, vsdberr.New("ledger.CreateBranch", vsdberr.InvalidCoordinate, fmt.Errorf("unknown parent branch %d", parentBranchID))
	}

	ancestors := append([]AncestorLink{{BranchID: parentBranchID, ForkVersion: parentVersion}}, parent.Ancestors...)
	if len(ancestors) > AncestorsLimit {
		return Branch{}, vsdberr.New("ledger.CreateBranch", vsdberr.AncestorsExceeded,
			fmt.Errorf("chain depth %d exceeds limit %d", len(ancestors), AncestorsLimit))
	}

	id, err := l.alloc.AllocBranchID()
	if err != nil {
		return Branch{}, err
	}
	b := Branch{ID: id, Name: name, Ancestors: ancestors}
	if _, _, err := l.branchIDToInfo.Insert(id, b); err != nil {
		return Branch{}, err
	}
	if _, _, err := l.branchNameToID.Insert(name, id); err != nil {
		return Branch{}, err
	}

	// Every branch owns at least one version from birth, unnamed and absent
	// from the name index, so Tip/GetTip resolve immediately without
	// requiring a first write — mirrors the main branch's own bootstrap in
	// Open. Without this, a fresh branch would have no tip to read or write
	// at until its first explicit CreateVersion.
	v0, err := l.alloc.AllocVersionID()
	if err != nil {
		return Branch{}, err
	}
	if _, _, err := l.versIDToInfo.Insert(v0, Version{ID: v0, Name: nil, BranchID: id}); err != nil {
		return Branch{}, err
	}
	if _, _, err := l.owned.Insert(codec.Pair{High: id, Low: v0}, struct{}{}); err != nil {
		return Branch{}, err
	}

	vsdblog.Ledger.Debug().Str("branch", name).Uint64("id", id).Uint64("parent", parentBranchID).Msg("branch created")
	return b, nil
}

// RenameBranch changes a branch's registered name.
func (l *Ledger) RenameBranch(oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	id, ok, err := l.branchNameToID.Get(oldName)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("ledger.RenameBranch", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", oldName))
	}
	if _, exists, err := l.branchNameToID.Get(newName); err != nil {
		return err
	} else if exists {
		return vsdberr.New("ledger.RenameBranch", vsdberr.Conflict, fmt.Errorf("branch %q already exists", newName))
	}
	b, _, err := l.branchIDToInfo.Get(id)
	if err != nil {
		return err
	}
	b.Name = newName
	if _, _, err := l.branchIDToInfo.Insert(id, b); err != nil {
		return err
	}
	if _, _, err := l.branchNameToID.Remove(oldName); err != nil {
		return err
	}
	_, _, err = l.branchNameToID.Insert(newName, id)
	return err
}

// hasDescendants reports whether any branch's direct parent is id.
func (l *Ledger) hasDescendants(id uint64) (bool, error) {
	c, err := l.branchIDToInfo.Iter()
	if err != nil {
		return false, err
	}
	defer c.Close()
	for c.Next() {
		e, err := c.Entry()
		if err != nil {
			return false, err
		}
		if len(e.Value.Ancestors) > 0 && e.Value.Ancestors[0].BranchID == id {
			return true, nil
		}
	}
	return false, c.Err()
}

// RemoveBranch deletes a branch. Fails with BranchHasDescendants if any
// other branch forked from it (spec §4.5).
func (l *Ledger) RemoveBranch(name string) error {
	if name == MainBranchName {
		return vsdberr.New("ledger.RemoveBranch", vsdberr.InvalidCoordinate, fmt.Errorf("cannot remove main"))
	}
	id, ok, err := l.branchNameToID.Get(name)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("ledger.RemoveBranch", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", name))
	}
	if has, err := l.hasDescendants(id); err != nil {
		return err
	} else if has {
		return vsdberr.New("ledger.RemoveBranch", vsdberr.BranchHasDescendants, fmt.Errorf("branch %q has descendants", name))
	}
	versions, err := l.OwnedVersions(id)
	if err != nil {
		return err
	}
	for _, vid := range versions {
		v, ok, err := l.versIDToInfo.Get(vid)
		if err != nil {
			return err
		}
		if ok {
			if err := l.unregisterVersionName(v); err != nil {
				return err
			}
			if _, _, err := l.versIDToInfo.Remove(vid); err != nil {
				return err
			}
		}
		if _, _, err := l.owned.Remove(codec.Pair{High: id, Low: vid}); err != nil {
			return err
		}
	}
	if _, _, err := l.branchNameToID.Remove(name); err != nil {
		return err
	}
	_, _, err = l.branchIDToInfo.Remove(id)
	return err
}

// CreateVersion allocates a new version-id on branchName, naming it name.
func (l *Ledger) CreateVersion(branchName string, name []byte) (Version, error) {
	if _, exists, err := l.versNameToID.Get(string(name)); err != nil {
		return Version{}, err
	} else if exists {
		return Version{}, vsdberr.New("ledger.CreateVersion", vsdberr.Conflict, fmt.Errorf("version %q already exists", name))
	}
	b, ok, err := l.BranchByName(branchName)
	if err != nil {
		return Version{}, err
	}
	if !ok {
		return Version{}, vsdberr.New("ledger.CreateVersion", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	id, err := l.alloc.AllocVersionID()
	if err != nil {
		return Version{}, err
	}
	v := Version{ID: id, Name: name, BranchID: b.ID}
	if _, _, err := l.versIDToInfo.Insert(id, v); err != nil {
		return Version{}, err
	}
	if _, _, err := l.versNameToID.Insert(string(name), id); err != nil {
		return Version{}, err
	}
	if _, _, err := l.owned.Insert(codec.Pair{High: b.ID, Low: id}, struct{}{}); err != nil {
		return Version{}, err
	}
	return v, nil
}

// Owns reports whether versionID was allocated on branchID.
func (l *Ledger) Owns(branchID, versionID uint64) (bool, error) {
	return l.owned.Contains(codec.Pair{High: branchID, Low: versionID})
}

// unregisterVersionName removes v from the name index, but only if v is the
// version actually registered under that name. A branch's own bootstrap
// version (allocated in CreateBranch, never named) shares the zero-length
// name with main's real initial version, so blindly removing by name would
// delete an unrelated branch's registration.
func (l *Ledger) unregisterVersionName(v Version) error {
	id, ok, err := l.versNameToID.Get(string(v.Name))
	if err != nil || !ok || id != v.ID {
		return err
	}
	_, _, err = l.versNameToID.Remove(string(v.Name))
	return err
}

// CheckPoppable resolves branchName's tip and validates it has no
// descendant fork, without mutating anything. Callers that must delete
// per-collection data before the ledger bookkeeping is removed (the
// versioned store) call this first, then PopVersion once data is gone.
func (l *Ledger) CheckPoppable(branchName string) (branchID, tip uint64, err error) {
	b, ok, err := l.BranchByName(branchName)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, vsdberr.New("ledger.CheckPoppable", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	tip, ok, err = l.Tip(b.ID)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, vsdberr.New("ledger.CheckPoppable", vsdberr.InvalidCoordinate, fmt.Errorf("branch %q has no versions", branchName))
	}
	c, err := l.branchIDToInfo.Iter()
	if err != nil {
		return 0, 0, err
	}
	defer c.Close()
	for c.Next() {
		e, err := c.Entry()
		if err != nil {
			return 0, 0, err
		}
		if len(e.Value.Ancestors) > 0 && e.Value.Ancestors[0].BranchID == b.ID && e.Value.Ancestors[0].ForkVersion == tip {
			return 0, 0, vsdberr.New("ledger.CheckPoppable", vsdberr.BranchHasDescendants,
				fmt.Errorf("branch %q forked at the tip of %q", e.Value.Name, branchName))
		}
	}
	if err := c.Err(); err != nil {
		return 0, 0, err
	}
	return b.ID, tip, nil
}

// PopVersion removes branchName's tip version from the ledger's own
// bookkeeping (name index, info, owned-set). Fails with
// BranchHasDescendants if another branch forked exactly at that version.
func (l *Ledger) PopVersion(branchName string) error {
	b, tip, err := l.CheckPoppable(branchName)
	if err != nil {
		return err
	}

	v, ok, err := l.versIDToInfo.Get(tip)
	if err != nil {
		return err
	}
	if ok {
		if err := l.unregisterVersionName(v); err != nil {
			return err
		}
		if _, _, err := l.versIDToInfo.Remove(tip); err != nil {
			return err
		}
	}
	_, _, err = l.owned.Remove(codec.Pair{High: b, Low: tip})
	return err
}

// Cutoff returns the version-id at which keeping only the last n versions
// on branchID begins: the owned version at 0-based position len-n, or false
// if n <= 0 or there are at most n versions (nothing to prune).
func (l *Ledger) Cutoff(branchID uint64, n int) (uint64, bool, error) {
	versions, err := l.OwnedVersions(branchID)
	if err != nil {
		return 0, false, err
	}
	if n <= 0 || len(versions) <= n {
		return 0, false, nil
	}
	return versions[len(versions)-n], true, nil
}
