package versioned

import (
	"fmt"

	"github.com/Klingon-tech/vsdb/ledger"
	"github.com/Klingon-tech/vsdb/vsdberr"
)

// Collection is the minimal surface Group needs from a versioned typed
// collection to forward VsMgmt operations that cross-cut per-key data
// (spec §4.7): version_pop, prune, and branch_merge. Map, Vec, and Scalar
// implement it by embedding *Store[K,V], whose methods of the same
// (unexported) name are promoted automatically; OrdMap defines them itself.
type Collection interface {
	popVersionData(branchID, versionID uint64) error
	pruneData(branchID, cutoff uint64) error
	mergeData(parentTip uint64, versions []uint64) error
}

// Group aggregates the versioned fields of a user struct and forwards
// VsMgmt operations to all of them — the manual stand-in for the "external
// derive helper" the spec names (spec §4.7); Go has no derive macros, so
// the caller registers fields once instead of generating forwarding code.
type Group struct {
	led     *ledger.Ledger
	members []Collection
}

// NewGroup binds a Group to led, forwarding to the given member collections.
func NewGroup(led *ledger.Ledger, members ...Collection) *Group {
	return &Group{led: led, members: members}
}

// VersionCreate allocates a new version on branchName. Purely a ledger
// operation — no member has per-key data to create.
func (g *Group) VersionCreate(branchName string, name []byte) (ledger.Version, error) {
	return g.led.CreateVersion(branchName, name)
}

// VersionPop removes branchName's tip version: member data first, then the
// ledger's own bookkeeping, so a failure leaves the ledger's tip intact.
func (g *Group) VersionPop(branchName string) error {
	branchID, tip, err := g.led.CheckPoppable(branchName)
	if err != nil {
		return err
	}
	for _, m := range g.members {
		if err := m.popVersionData(branchID, tip); err != nil {
			return err
		}
	}
	return g.led.PopVersion(branchName)
}

// BranchCreate forks a new branch from parentBranch's current tip.
func (g *Group) BranchCreate(name, parentBranch string) (ledger.Branch, error) {
	p, ok, err := g.led.BranchByName(parentBranch)
	if err != nil {
		return ledger.Branch{}, err
	}
	if !ok {
		return ledger.Branch{}, vsdberr.New("versioned.BranchCreate", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", parentBranch))
	}
	tip, ok, err := g.led.Tip(p.ID)
	if err != nil {
		return ledger.Branch{}, err
	}
	if !ok {
		return ledger.Branch{}, vsdberr.New("versioned.BranchCreate", vsdberr.InvalidCoordinate, fmt.Errorf("branch %q has no versions", parentBranch))
	}
	return g.led.CreateBranch(name, p.ID, tip)
}

// BranchCreateByBaseBranchVersion forks a new branch from an explicit
// (parentBranch, parentVersion) coordinate, not necessarily the tip.
func (g *Group) BranchCreateByBaseBranchVersion(name, parentBranch string, parentVersion uint64) (ledger.Branch, error) {
	p, ok, err := g.led.BranchByName(parentBranch)
	if err != nil {
		return ledger.Branch{}, err
	}
	if !ok {
		return ledger.Branch{}, vsdberr.New("versioned.BranchCreateByBaseBranchVersion", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", parentBranch))
	}
	return g.led.CreateBranch(name, p.ID, parentVersion)
}

// BranchRemove deletes branchName. Fails with BranchHasDescendants if any
// branch forked from it.
func (g *Group) BranchRemove(branchName string) error {
	return g.led.RemoveBranch(branchName)
}

// BranchMerge merges childBranch into parentBranch: a new version is
// created on parentBranch, and every member re-emits childBranch's writes
// (since its fork) onto that new tip, last-writer-wins (spec §4.6).
func (g *Group) BranchMerge(childBranch, parentBranch string) (ledger.Version, error) {
	child, ok, err := g.led.BranchByName(childBranch)
	if err != nil {
		return ledger.Version{}, err
	}
	if !ok {
		return ledger.Version{}, vsdberr.New("versioned.BranchMerge", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", childBranch))
	}
	if _, ok, err := g.led.BranchByName(parentBranch); err != nil {
		return ledger.Version{}, err
	} else if !ok {
		return ledger.Version{}, vsdberr.New("versioned.BranchMerge", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", parentBranch))
	}

	versions, err := g.led.OwnedVersions(child.ID)
	if err != nil {
		return ledger.Version{}, err
	}
	name := []byte(fmt.Sprintf("merge:%s->%s@%d", childBranch, parentBranch, len(versions)))
	v, err := g.led.CreateVersion(parentBranch, name)
	if err != nil {
		return ledger.Version{}, err
	}
	for _, m := range g.members {
		if err := m.mergeData(v.ID, versions); err != nil {
			return ledger.Version{}, err
		}
	}
	return v, nil
}

// DefaultPruneKeep is the retention count PruneDefault uses when a caller
// has no specific keepN in mind (spec's RESERVED_VERSION_NUM_DEFAULT).
const DefaultPruneKeep = 10

// PruneDefault is Prune with keepN fixed at DefaultPruneKeep.
func (g *Group) PruneDefault(branchName string) error {
	return g.Prune(branchName, DefaultPruneKeep)
}

// Prune collapses branchName's history older than its last keepN versions,
// coalescing each member's per-key writes (spec §4.6).
func (g *Group) Prune(branchName string, keepN int) error {
	b, ok, err := g.led.BranchByName(branchName)
	if err != nil {
		return err
	}
	if !ok {
		return vsdberr.New("versioned.Prune", vsdberr.InvalidCoordinate, fmt.Errorf("unknown branch %q", branchName))
	}
	cutoff, ok, err := g.led.Cutoff(b.ID, keepN)
	if err != nil || !ok {
		return err
	}
	for _, m := range g.members {
		if err := m.pruneData(b.ID, cutoff); err != nil {
			return err
		}
	}
	return nil
}
