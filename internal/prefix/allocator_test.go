package prefix

import (
	"testing"

	"github.com/Klingon-tech/vsdb/internal/storage"
)

func TestOpen_InitializesCounterAtReserved(t *testing.T) {
	b := storage.OpenMemory(1)
	a, err := Open(b.Tree(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if p != Reserved {
		t.Fatalf("first allocated prefix = %d, want %d", p, Reserved)
	}
}

func TestAlloc_MonotonicAndUnique(t *testing.T) {
	b := storage.OpenMemory(1)
	a, err := Open(b.Tree(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	seen := make(map[uint64]bool)
	var prev uint64
	for i := 0; i < 100; i++ {
		p, err := a.Alloc()
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		if seen[p] {
			t.Fatalf("prefix %d allocated twice", p)
		}
		seen[p] = true
		if i > 0 && p <= prev {
			t.Fatalf("prefix %d did not increase from %d", p, prev)
		}
		prev = p
	}
}

func TestOpen_ReopenPreservesCounter(t *testing.T) {
	b := storage.OpenMemory(1)
	a1, err := Open(b.Tree(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := a1.Alloc(); err != nil {
			t.Fatalf("Alloc: %v", err)
		}
	}
	a2, err := Open(b.Tree(0))
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	p, err := a2.Alloc()
	if err != nil {
		t.Fatalf("Alloc after reopen: %v", err)
	}
	if p != Reserved+3 {
		t.Fatalf("next prefix after reopen = %d, want %d", p, Reserved+3)
	}
}

func TestAllocBranchIDAndVersionID_ShareCounter(t *testing.T) {
	b := storage.OpenMemory(1)
	a, err := Open(b.Tree(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	branchID, err := a.AllocBranchID()
	if err != nil {
		t.Fatalf("AllocBranchID: %v", err)
	}
	versionID, err := a.AllocVersionID()
	if err != nil {
		t.Fatalf("AllocVersionID: %v", err)
	}
	if versionID != branchID+1 {
		t.Fatalf("branch/version ids not drawn from one monotone counter: %d, %d", branchID, versionID)
	}
}
