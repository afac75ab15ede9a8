package storage

import (
	"bytes"
	"testing"
)

func TestMemoryBackend_GetSetDelete(t *testing.T) {
	b := OpenMemory(2)
	tree := b.Tree(0)

	if _, ok, err := tree.Get([]byte("k")); err != nil || ok {
		t.Fatalf("Get on empty tree: ok=%v err=%v", ok, err)
	}
	if err := tree.Set([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := tree.Get([]byte("k"))
	if err != nil || !ok || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("Get after Set: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := tree.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := tree.Get([]byte("k")); err != nil || ok {
		t.Fatalf("Get after Delete: ok=%v err=%v", ok, err)
	}
}

func TestMemoryBackend_AreaIsolation(t *testing.T) {
	b := OpenMemory(2)
	a0, a1 := b.Tree(0), b.Tree(1)
	if err := a0.Set([]byte("k"), []byte("area0")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := a1.Get([]byte("k")); err != nil || ok {
		t.Fatalf("key set in area 0 leaked into area 1: ok=%v err=%v", ok, err)
	}
}

func TestMemoryBackend_AtomicUpdate(t *testing.T) {
	b := OpenMemory(1)
	tree := b.Tree(0)
	for i := 0; i < 5; i++ {
		if _, err := tree.AtomicUpdate([]byte("ctr"), func(cur []byte) []byte {
			n := 0
			if len(cur) == 1 {
				n = int(cur[0])
			}
			return []byte{byte(n + 1)}
		}); err != nil {
			t.Fatalf("AtomicUpdate: %v", err)
		}
	}
	v, ok, err := tree.Get([]byte("ctr"))
	if err != nil || !ok || v[0] != 5 {
		t.Fatalf("counter = %v, want 5", v)
	}
}

func TestMemoryBackend_ScanOrderAndBounds(t *testing.T) {
	b := OpenMemory(1)
	tree := b.Tree(0)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		if err := tree.Set([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	t.Run("ascending full scan", func(t *testing.T) {
		it, err := tree.Scan([]byte("a"), true, []byte("e"), true, false)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		defer it.Close()
		var got []string
		for it.Next() {
			got = append(got, string(it.Key()))
		}
		want := []string{"a", "b", "c", "d", "e"}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("descending scan", func(t *testing.T) {
		it, err := tree.Scan([]byte("a"), true, []byte("e"), true, true)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		defer it.Close()
		var got []string
		for it.Next() {
			got = append(got, string(it.Key()))
		}
		want := []string{"e", "d", "c", "b", "a"}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("exclusive bounds", func(t *testing.T) {
		it, err := tree.Scan([]byte("a"), false, []byte("e"), false, false)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		defer it.Close()
		var got []string
		for it.Next() {
			got = append(got, string(it.Key()))
		}
		want := []string{"b", "c", "d"}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

// TestMemoryBackend_ScanBoundsOnProperPrefixExtension guards against
// treating an exclusive/inclusive bound's NextPrefix as if it were the
// next key after an arbitrary-length bound: "abc" properly extends "ab"
// and must be handled by exact comparison, not by NextPrefix("ab").
func TestMemoryBackend_ScanBoundsOnProperPrefixExtension(t *testing.T) {
	b := OpenMemory(1)
	tree := b.Tree(0)
	for _, k := range []string{"ab", "abc", "ac"} {
		if err := tree.Set([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	t.Run("exclusive lower bound includes a proper extension", func(t *testing.T) {
		it, err := tree.Scan([]byte("ab"), false, []byte("ac"), true, false)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		defer it.Close()
		var got []string
		for it.Next() {
			got = append(got, string(it.Key()))
		}
		want := []string{"abc", "ac"}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("inclusive upper bound excludes a proper extension", func(t *testing.T) {
		it, err := tree.Scan([]byte("aa"), true, []byte("ab"), true, false)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		defer it.Close()
		var got []string
		for it.Next() {
			got = append(got, string(it.Key()))
		}
		want := []string{"ab"}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v (must exclude abc)", got, want)
		}
	})
}

func TestNextPrefix(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{[]byte{0x01}, []byte{0x02}},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, []byte{0xFF, 0xFF, 0x00}},
	}
	for _, tt := range tests {
		got := NextPrefix(tt.in)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("NextPrefix(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolve_UnboundedBecomesNamespaceEdges(t *testing.T) {
	prefix := []byte{0x05}
	loKey, loIncl, hiKey, hiIncl := Resolve(prefix, Bound{Kind: Unbounded}, Bound{Kind: Unbounded})
	if !bytes.Equal(loKey, prefix) || !loIncl {
		t.Fatalf("unbounded lo = (%v,%v), want (%v,true)", loKey, loIncl, prefix)
	}
	if !bytes.Equal(hiKey, NextPrefix(prefix)) || hiIncl {
		t.Fatalf("unbounded hi = (%v,%v), want (%v,false)", hiKey, hiIncl, NextPrefix(prefix))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
