package ledger

import (
	"testing"

	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/storage"
	"github.com/Klingon-tech/vsdb/vsdberr"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	backend := storage.OpenMemory(1)
	meta := backend.Tree(0)
	alloc, err := prefix.Open(meta)
	if err != nil {
		t.Fatalf("prefix.Open: %v", err)
	}
	l, err := Open(meta, alloc)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	return l
}

func TestOpen_RegistersMainBranch(t *testing.T) {
	l := newTestLedger(t)
	b, ok, err := l.BranchByName(MainBranchName)
	if err != nil || !ok {
		t.Fatalf("BranchByName(main): ok=%v err=%v", ok, err)
	}
	if b.ID != MainBranchID {
		t.Fatalf("main branch id = %d, want %d", b.ID, MainBranchID)
	}
	tip, ok, err := l.Tip(MainBranchID)
	if err != nil || !ok {
		t.Fatalf("Tip(main): ok=%v err=%v", ok, err)
	}
	v, ok, err := l.VersionByID(tip)
	if err != nil || !ok {
		t.Fatalf("VersionByID(tip): ok=%v err=%v", ok, err)
	}
	if len(v.Name) != 0 {
		t.Fatalf("initial version name = %q, want zero-length", v.Name)
	}
}

func TestCreateVersion_AdvancesTip(t *testing.T) {
	l := newTestLedger(t)
	tip0, _, _ := l.Tip(MainBranchID)
	v, err := l.CreateVersion(MainBranchName, []byte("v1"))
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	tip1, ok, err := l.Tip(MainBranchID)
	if err != nil || !ok {
		t.Fatalf("Tip: ok=%v err=%v", ok, err)
	}
	if tip1 != v.ID || tip1 == tip0 {
		t.Fatalf("tip did not advance: tip0=%d tip1=%d v.ID=%d", tip0, tip1, v.ID)
	}
}

func TestCreateVersion_DuplicateNameConflict(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.CreateVersion(MainBranchName, []byte("v1")); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	_, err := l.CreateVersion(MainBranchName, []byte("v1"))
	if kind, ok := vsdberr.Of(err); !ok || kind != vsdberr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestCreateBranch_AncestorChainInheritance(t *testing.T) {
	l := newTestLedger(t)
	// main: v0 (initial) -> v1 -> v2
	if _, err := l.CreateVersion(MainBranchName, []byte("v1")); err != nil {
		t.Fatalf("CreateVersion v1: %v", err)
	}
	forkPoint, _, _ := l.Tip(MainBranchID)
	if _, err := l.CreateVersion(MainBranchName, []byte("v2")); err != nil {
		t.Fatalf("CreateVersion v2: %v", err)
	}

	feat, err := l.CreateBranch("feat", MainBranchID, forkPoint)
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if len(feat.Ancestors) != 1 {
		t.Fatalf("feat.Ancestors = %v, want exactly one link to main", feat.Ancestors)
	}
	if feat.Ancestors[0].BranchID != MainBranchID || feat.Ancestors[0].ForkVersion != forkPoint {
		t.Fatalf("feat.Ancestors[0] = %+v, want {main, %d}", feat.Ancestors[0], forkPoint)
	}

	// grandchild inherits parent's chain plus its own fork link.
	grandTip, _, _ := l.Tip(feat.ID)
	grand, err := l.CreateBranch("grand", feat.ID, grandTip)
	if err != nil {
		t.Fatalf("CreateBranch grand: %v", err)
	}
	if len(grand.Ancestors) != 2 {
		t.Fatalf("grand.Ancestors = %v, want 2 links", grand.Ancestors)
	}
	if grand.Ancestors[0].BranchID != feat.ID || grand.Ancestors[1].BranchID != MainBranchID {
		t.Fatalf("grand.Ancestors chain order wrong: %+v", grand.Ancestors)
	}
}

func TestCreateBranch_AncestorsExceeded(t *testing.T) {
	l := newTestLedger(t)
	parentID := MainBranchID
	for i := 0; i < AncestorsLimit; i++ {
		tip, _, err := l.Tip(parentID)
		if err != nil {
			t.Fatalf("Tip: %v", err)
		}
		b, err := l.CreateBranch(name(i), parentID, tip)
		if err != nil {
			t.Fatalf("CreateBranch #%d: %v", i, err)
		}
		parentID = b.ID
	}
	tip, _, _ := l.Tip(parentID)
	_, err := l.CreateBranch("too-deep", parentID, tip)
	if kind, ok := vsdberr.Of(err); !ok || kind != vsdberr.AncestorsExceeded {
		t.Fatalf("expected AncestorsExceeded, got %v", err)
	}
}

func name(i int) string {
	return string(rune('a'+i%26)) + string(rune('A'+(i/26)%26))
}

func TestRemoveBranch_RefusesWithDescendants(t *testing.T) {
	l := newTestLedger(t)
	tip, _, _ := l.Tip(MainBranchID)
	feat, err := l.CreateBranch("feat", MainBranchID, tip)
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	featTip, _, _ := l.Tip(feat.ID)
	if _, err := l.CreateBranch("child", feat.ID, featTip); err != nil {
		t.Fatalf("CreateBranch child: %v", err)
	}
	err = l.RemoveBranch("feat")
	if kind, ok := vsdberr.Of(err); !ok || kind != vsdberr.BranchHasDescendants {
		t.Fatalf("expected BranchHasDescendants removing feat, got %v", err)
	}
}

func TestRemoveBranch_NoDescendantsSucceeds(t *testing.T) {
	l := newTestLedger(t)
	tip, _, _ := l.Tip(MainBranchID)
	if _, err := l.CreateBranch("feat", MainBranchID, tip); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := l.RemoveBranch("feat"); err != nil {
		t.Fatalf("RemoveBranch: %v", err)
	}
	if _, ok, err := l.BranchByName("feat"); err != nil || ok {
		t.Fatalf("feat still resolves after removal: ok=%v err=%v", ok, err)
	}
}

func TestRemoveBranch_CannotRemoveMain(t *testing.T) {
	l := newTestLedger(t)
	if err := l.RemoveBranch(MainBranchName); err == nil {
		t.Fatal("expected error removing main")
	}
}

func TestOwns(t *testing.T) {
	l := newTestLedger(t)
	v1, err := l.CreateVersion(MainBranchName, []byte("v1"))
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	ownsIt, err := l.Owns(MainBranchID, v1.ID)
	if err != nil || !ownsIt {
		t.Fatalf("Owns(main, v1) = %v, %v, want true", ownsIt, err)
	}
	ownsBogus, err := l.Owns(MainBranchID, 999999)
	if err != nil || ownsBogus {
		t.Fatalf("Owns(main, bogus) = %v, want false", ownsBogus)
	}
}

func TestPopVersion_RemovesTipAndRollsBackTip(t *testing.T) {
	l := newTestLedger(t)
	v1, err := l.CreateVersion(MainBranchName, []byte("v1"))
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if err := l.PopVersion(MainBranchName); err != nil {
		t.Fatalf("PopVersion: %v", err)
	}
	if _, ok, err := l.VersionByID(v1.ID); err != nil || ok {
		t.Fatalf("v1 still resolves after pop: ok=%v err=%v", ok, err)
	}
	tip, ok, err := l.Tip(MainBranchID)
	if err != nil || !ok {
		t.Fatalf("Tip after pop: ok=%v err=%v", ok, err)
	}
	if tip == v1.ID {
		t.Fatal("tip did not roll back after pop")
	}
}

func TestCheckPoppable_RefusesAtForkPoint(t *testing.T) {
	l := newTestLedger(t)
	tip, _, _ := l.Tip(MainBranchID)
	if _, err := l.CreateBranch("feat", MainBranchID, tip); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	_, _, err := l.CheckPoppable(MainBranchName)
	if kind, ok := vsdberr.Of(err); !ok || kind != vsdberr.BranchHasDescendants {
		t.Fatalf("expected BranchHasDescendants, got %v", err)
	}
}

func TestCutoff(t *testing.T) {
	l := newTestLedger(t)
	for i := 0; i < 5; i++ {
		if _, err := l.CreateVersion(MainBranchName, []byte(name(i))); err != nil {
			t.Fatalf("CreateVersion: %v", err)
		}
	}
	versions, err := l.OwnedVersions(MainBranchID)
	if err != nil {
		t.Fatalf("OwnedVersions: %v", err)
	}
	// 6 versions total (1 initial + 5 created).
	cutoff, ok, err := l.Cutoff(MainBranchID, 2)
	if err != nil || !ok {
		t.Fatalf("Cutoff: ok=%v err=%v", ok, err)
	}
	if cutoff != versions[len(versions)-2] {
		t.Fatalf("Cutoff = %d, want %d", cutoff, versions[len(versions)-2])
	}

	if _, ok, err := l.Cutoff(MainBranchID, 1000); err != nil || ok {
		t.Fatalf("Cutoff(n > total) should report nothing to prune: ok=%v err=%v", ok, err)
	}
}
