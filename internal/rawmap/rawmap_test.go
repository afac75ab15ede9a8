package rawmap

import (
	"testing"

	"github.com/Klingon-tech/vsdb/internal/storage"
)

func TestMap_InsertGetRemove(t *testing.T) {
	tree := storage.OpenMemory(1).Tree(0)
	m := New(tree, 1)

	if _, ok, err := m.Get([]byte("k")); err != nil || ok {
		t.Fatalf("Get on empty map: ok=%v err=%v", ok, err)
	}
	if _, had, err := m.Insert([]byte("k"), []byte("v1")); err != nil || had {
		t.Fatalf("Insert first: had=%v err=%v", had, err)
	}
	v, ok, err := m.Get([]byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get after Insert: v=%q ok=%v err=%v", v, ok, err)
	}
	prior, had, err := m.Insert([]byte("k"), []byte("v2"))
	if err != nil || !had || string(prior) != "v1" {
		t.Fatalf("overwrite Insert: prior=%q had=%v err=%v", prior, had, err)
	}
	prior, had, err = m.Remove([]byte("k"))
	if err != nil || !had || string(prior) != "v2" {
		t.Fatalf("Remove: prior=%q had=%v err=%v", prior, had, err)
	}
	if _, had, err := m.Remove([]byte("k")); err != nil || had {
		t.Fatalf("Remove on absent key: had=%v err=%v", had, err)
	}
}

func TestMap_LenTracksGenuineChangesOnly(t *testing.T) {
	tree := storage.OpenMemory(1).Tree(0)
	m := New(tree, 1)

	for _, k := range []string{"a", "b", "c"} {
		if _, _, err := m.Insert([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if n, err := m.Len(); err != nil || n != 3 {
		t.Fatalf("Len = %d, want 3 (err %v)", n, err)
	}
	// Overwriting an existing key must not change Len.
	if _, _, err := m.Insert([]byte("a"), []byte("v2")); err != nil {
		t.Fatalf("Insert overwrite: %v", err)
	}
	if n, err := m.Len(); err != nil || n != 3 {
		t.Fatalf("Len after overwrite = %d, want 3 (err %v)", n, err)
	}
	if _, _, err := m.Remove([]byte("a")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n, err := m.Len(); err != nil || n != 2 {
		t.Fatalf("Len after Remove = %d, want 2 (err %v)", n, err)
	}
	if empty, err := m.IsEmpty(); err != nil || empty {
		t.Fatalf("IsEmpty = %v, want false", empty)
	}
}

func TestMap_NamespaceIsolation(t *testing.T) {
	tree := storage.OpenMemory(1).Tree(0)
	m1 := New(tree, 1)
	m2 := New(tree, 2)

	if _, _, err := m1.Insert([]byte("k"), []byte("m1")); err != nil {
		t.Fatalf("Insert m1: %v", err)
	}
	if _, ok, err := m2.Get([]byte("k")); err != nil || ok {
		t.Fatalf("m2 sees m1's key: ok=%v err=%v", ok, err)
	}
}

func TestMap_ScalarDegenerateKeyDoesNotCollideWithLenCounter(t *testing.T) {
	tree := storage.OpenMemory(1).Tree(0)
	m := New(tree, 1)
	if _, _, err := m.Insert(nil, []byte("scalar-value")); err != nil {
		t.Fatalf("Insert empty key: %v", err)
	}
	v, ok, err := m.Get(nil)
	if err != nil || !ok || string(v) != "scalar-value" {
		t.Fatalf("Get(nil) = %q, %v, %v", v, ok, err)
	}
	if n, err := m.Len(); err != nil || n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
}

func TestMap_RangeGetGEGetLE(t *testing.T) {
	tree := storage.OpenMemory(1).Tree(0)
	m := New(tree, 1)
	kc := func(n uint64) []byte {
		b := make([]byte, 8)
		for i := 7; i >= 0; i-- {
			b[i] = byte(n)
			n >>= 8
		}
		return b
	}
	for _, n := range []uint64{1, 10, 100, 1000} {
		if _, _, err := m.Insert(kc(n), []byte("v")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	t.Run("GetGE between entries", func(t *testing.T) {
		e, ok, err := m.GetGE(kc(50))
		if err != nil || !ok {
			t.Fatalf("GetGE(50): ok=%v err=%v", ok, err)
		}
		got := decodeU64(e.Key)
		if got != 100 {
			t.Fatalf("GetGE(50) = %d, want 100", got)
		}
	})

	t.Run("GetLE between entries", func(t *testing.T) {
		e, ok, err := m.GetLE(kc(50))
		if err != nil || !ok {
			t.Fatalf("GetLE(50): ok=%v err=%v", ok, err)
		}
		got := decodeU64(e.Key)
		if got != 10 {
			t.Fatalf("GetLE(50) = %d, want 10", got)
		}
	})

	t.Run("GetGE past the end", func(t *testing.T) {
		if _, ok, err := m.GetGE(kc(5000)); err != nil || ok {
			t.Fatalf("GetGE(5000): ok=%v err=%v, want not found", ok, err)
		}
	})

	t.Run("ascending range full scan", func(t *testing.T) {
		c, err := m.Range(storage.Bound{Kind: storage.Unbounded}, storage.Bound{Kind: storage.Unbounded}, false)
		if err != nil {
			t.Fatalf("Range: %v", err)
		}
		defer c.Close()
		var got []uint64
		for c.Next() {
			got = append(got, decodeU64(c.Key()))
		}
		want := []uint64{1, 10, 100, 1000}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})
}

func TestMap_ClearResetsLenAndEntries(t *testing.T) {
	tree := storage.OpenMemory(1).Tree(0)
	m := New(tree, 1)
	for _, k := range []string{"a", "b"} {
		if _, _, err := m.Insert([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, err := m.Len(); err != nil || n != 0 {
		t.Fatalf("Len after Clear = %d, want 0", n)
	}
	if _, ok, err := m.Get([]byte("a")); err != nil || ok {
		t.Fatalf("Get after Clear: ok=%v err=%v", ok, err)
	}
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
