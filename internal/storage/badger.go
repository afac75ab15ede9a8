package storage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Klingon-tech/vsdb/internal/vsdblog"
)

// BadgerBackend implements Backend over a single Badger instance. Badger has
// no native notion of multiple named sub-trees, so each area is carved out
// by prefixing every key with a one-byte area tag — the same
// prefix-namespacing trick the engine itself uses one level up for logical
// maps within an area.
type BadgerBackend struct {
	db    *badger.DB
	areas int
}

// OpenBadger opens (or creates) a durable Badger store at path with
// areaCount logical sub-trees.
func OpenBadger(path string, areaCount int) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("open badger store at %s: locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	vsdblog.Backend.Info().Str("path", path).Int("areas", areaCount).Msg("opened badger backend")
	return &BadgerBackend{db: db, areas: areaCount}, nil
}

func (b *BadgerBackend) AreaCount() int { return b.areas }

func (b *BadgerBackend) Tree(area int) Tree {
	if area < 0 || area >= b.areas {
		panic(errUnknownArea(area, b.areas))
	}
	return &badgerTree{db: b.db, areaTag: []byte{byte(area)}}
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

type badgerTree struct {
	db      *badger.DB
	areaTag []byte
}

func (t *badgerTree) full(key []byte) []byte {
	return ConcatKey(t.areaTag, key)
}

func (t *badgerTree) Get(key []byte) ([]byte, bool, error) {
	var val []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(t.full(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return val, val != nil, nil
}

func (t *badgerTree) Set(key, value []byte) error {
	if err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(t.full(key), value)
	}); err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

func (t *badgerTree) Delete(key []byte) error {
	if err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(t.full(key))
	}); err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// AtomicUpdate relies on Badger's SSI (serializable snapshot isolation)
// transactions: the read and the write of the same key happen inside one
// transaction, which Badger aborts on conflict. Callers are the prefix
// allocator's counter and rawmap's per-map length counter. The update is
// attempted once: a conflicting concurrent transaction on the same key is
// returned as an error, not retried.
func (t *badgerTree) AtomicUpdate(key []byte, fn func(cur []byte) []byte) ([]byte, error) {
	var next []byte
	err := t.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(t.full(key))
		var cur []byte
		switch {
		case err == badger.ErrKeyNotFound:
			cur = nil
		case err != nil:
			return err
		default:
			cur, err = item.ValueCopy(nil)
			if err != nil {
				return err
			}
		}
		next = fn(cur)
		return txn.Set(t.full(key), next)
	})
	if err != nil {
		return nil, fmt.Errorf("badger atomic update: %w", err)
	}
	return next, nil
}

func (t *badgerTree) Scan(loKey []byte, loIncl bool, hiKey []byte, hiIncl bool, reverse bool) (Iterator, error) {
	loKey, hiKey = t.full(loKey), t.full(hiKey)

	txn := t.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	opts.Prefix = t.areaTag
	it := txn.NewIterator(opts)

	bit := &badgerIter{txn: txn, it: it, loKey: loKey, loIncl: loIncl, hiKey: hiKey, hiIncl: hiIncl, reverse: reverse, areaTag: t.areaTag}
	bit.seekStart()
	return bit, nil
}

func (t *badgerTree) Flush() error {
	return t.db.Sync()
}

// badgerIter adapts Badger's push-ish Seek/Next iterator to the pull-style
// Iterator contract, clipping to loKey/hiKey per the loIncl/hiIncl flags
// passed to Scan.
type badgerIter struct {
	txn     *badger.Txn
	it      *badger.Iterator
	loKey   []byte
	loIncl  bool
	hiKey   []byte
	hiIncl  bool
	reverse bool
	areaTag []byte

	key  []byte
	val  []byte
	err  error
	done bool
}

func (bi *badgerIter) seekStart() {
	if bi.reverse {
		bi.it.Seek(bi.hiKey)
		if bi.it.Valid() && !bi.hiIncl && bytes.Equal(bi.it.Item().KeyCopy(nil), bi.hiKey) {
			bi.it.Next()
		}
	} else {
		bi.it.Seek(bi.loKey)
		if bi.it.Valid() && !bi.loIncl && bytes.Equal(bi.it.Item().KeyCopy(nil), bi.loKey) {
			bi.it.Next()
		}
	}
}

func (bi *badgerIter) Next() bool {
	if bi.done {
		return false
	}
	for bi.it.Valid() {
		item := bi.it.Item()
		full := item.KeyCopy(nil)

		if bi.reverse {
			if bytes.Compare(full, bi.loKey) < 0 || (bytes.Equal(full, bi.loKey) && !bi.loIncl) {
				bi.done = true
				return false
			}
		} else {
			if bytes.Compare(full, bi.hiKey) > 0 || (bytes.Equal(full, bi.hiKey) && !bi.hiIncl) {
				bi.done = true
				return false
			}
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			bi.err = fmt.Errorf("badger iterator value: %w", err)
			bi.done = true
			return false
		}
		bi.key = full[len(bi.areaTag):]
		bi.val = val
		bi.it.Next()
		return true
	}
	bi.done = true
	return false
}

func (bi *badgerIter) Key() []byte   { return bi.key }
func (bi *badgerIter) Value() []byte { return bi.val }
func (bi *badgerIter) Err() error    { return bi.err }
func (bi *badgerIter) Close() {
	bi.it.Close()
	bi.txn.Discard()
}
