// Package vsdb is a versioned key-value data library: it layers Git-like
// branch/version semantics onto an embedded ordered-bytes KV store and
// exposes the result as typed collections (Map, OrdMap, Vec, Scalar) in
// both unversioned and versioned form.
package vsdb

import (
	"fmt"

	"github.com/Klingon-tech/vsdb/codec"
	"github.com/Klingon-tech/vsdb/collections"
	"github.com/Klingon-tech/vsdb/internal/prefix"
	"github.com/Klingon-tech/vsdb/internal/storage"
	"github.com/Klingon-tech/vsdb/internal/vsdblog"
	"github.com/Klingon-tech/vsdb/ledger"
	"github.com/Klingon-tech/vsdb/versioned"
	"github.com/Klingon-tech/vsdb/vsdbconfig"
)

// DefaultPruneKeep is the retention count versioned.Group.PruneDefault uses
// for a caller that has no specific keepN in mind.
const DefaultPruneKeep = versioned.DefaultPruneKeep

// DB is an open VSDB store: one backend, one Prefix Allocator, and one
// Version Ledger, plus the Area Router that fans newly allocated prefixes
// across the backend's data sub-trees (spec §4.2). The last backend tree
// is reserved for meta state (the allocator counter and the ledger's own
// indexes) and is never handed out to user collections.
type DB struct {
	backend   storage.Backend
	dataAreas int
	alloc     *prefix.Allocator
	Ledger    *ledger.Ledger
}

// Open opens (or creates) a store per cfg.
func Open(cfg *vsdbconfig.Config) (*DB, error) {
	if cfg == nil {
		cfg = vsdbconfig.Default()
	}
	dataAreas := cfg.Areas
	if dataAreas <= 0 {
		dataAreas = vsdbconfig.AreaCount
	}

	var backend storage.Backend
	switch cfg.Backend {
	case vsdbconfig.BackendMemory:
		backend = storage.OpenMemory(dataAreas + 1)
	default:
		b, err := storage.OpenBadger(cfg.BaseDir, dataAreas+1)
		if err != nil {
			return nil, fmt.Errorf("vsdb: open backend: %w", err)
		}
		backend = b
	}

	meta := backend.Tree(dataAreas) // the one tree beyond the data areas
	alloc, err := prefix.Open(meta)
	if err != nil {
		return nil, fmt.Errorf("vsdb: open allocator: %w", err)
	}
	led, err := ledger.Open(meta, alloc)
	if err != nil {
		return nil, fmt.Errorf("vsdb: open ledger: %w", err)
	}

	vsdblog.Logger.Info().Int("data_areas", dataAreas).Msg("vsdb store opened")
	return &DB{backend: backend, dataAreas: dataAreas, alloc: alloc, Ledger: led}, nil
}

// AreaTree implements collections.AreaRouter: prefix mod dataAreas
// (spec §4.2).
func (db *DB) AreaTree(p uint64) storage.Tree {
	return db.backend.Tree(int(p % uint64(db.dataAreas)))
}

// Flush forces every data and meta tree to disk.
func (db *DB) Flush() error {
	for i := 0; i <= db.dataAreas; i++ {
		if err := db.backend.Tree(i).Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the backend.
func (db *DB) Close() error { return db.backend.Close() }

// NewMap allocates an unversioned Map collection.
func NewMap[K, V any](db *DB) (*collections.Map[K, V], error) {
	return collections.NewMap[K, V](db, db.alloc)
}

// NewOrdMap allocates an unversioned OrdMap collection.
func NewOrdMap[K, V any](db *DB, kc codec.KeyCodec[K]) (*collections.OrdMap[K, V], error) {
	return collections.NewOrdMap[K, V](db, db.alloc, kc)
}

// NewVec allocates an unversioned Vec collection.
func NewVec[T any](db *DB) (*collections.Vec[T], error) {
	return collections.NewVec[T](db, db.alloc)
}

// NewScalar allocates an unversioned Scalar collection.
func NewScalar[T any](db *DB) (*collections.Scalar[T], error) {
	return collections.NewScalar[T](db, db.alloc)
}

// NewVersionedMap allocates a versioned Map collection.
func NewVersionedMap[K, V any](db *DB) (*versioned.Map[K, V], error) {
	return versioned.NewMap[K, V](db, db.alloc, db.Ledger)
}

// NewVersionedOrdMap allocates a versioned OrdMap collection, keyed with kc.
func NewVersionedOrdMap[K, V any](db *DB, kc codec.KeyCodec[K]) (*versioned.OrdMap[K, V], error) {
	return versioned.NewOrdMap[K, V](db, db.alloc, db.Ledger, kc)
}

// NewVersionedVec allocates a versioned Vec collection.
func NewVersionedVec[V any](db *DB) (*versioned.Vec[V], error) {
	return versioned.NewVec[V](db, db.alloc, db.Ledger)
}

// NewVersionedScalar allocates a versioned Scalar collection.
func NewVersionedScalar[V any](db *DB) (*versioned.Scalar[V], error) {
	return versioned.NewScalar[V](db, db.alloc, db.Ledger)
}
