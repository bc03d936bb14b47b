// Package rocksdb adapts github.com/linxGnu/grocksdb to the storage.Store
// contract (spec §4.2, §6). RocksDB itself is an external collaborator
// (spec §1: "RocksDB itself is treated as a keyed transactional store with
// column families"); this package only maps the four GroveDB namespaces
// onto four RocksDB column families and GroveDB's optimistic-transaction
// contract onto grocksdb's OptimisticTransactionDB.
package rocksdb

import (
	"bytes"

	"github.com/linxGnu/grocksdb"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/storage"
)

// columnFamilyNames is the fixed mapping from storage.Namespace to a
// RocksDB column family name; Meta is the only namespace that is not
// subtree-prefixed (spec §4.2).
var columnFamilyNames = []string{"default", "aux", "roots", "meta"}

// Store wraps a grocksdb.OptimisticTransactionDB opened with the four
// GroveDB column families.
type Store struct {
	db      *grocksdb.OptimisticTransactionDB
	cfs     []*grocksdb.ColumnFamilyHandle
	ro      *grocksdb.ReadOptions
	wo      *grocksdb.WriteOptions
	otxnOpt *grocksdb.OptimisticTransactionOptions
}

// Open opens (creating if necessary) a RocksDB database at dir with the
// four GroveDB column families.
func Open(dir string) (*Store, error) {
	opts := grocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetCreateIfMissingColumnFamilies(true)

	cfOpts := make([]*grocksdb.Options, len(columnFamilyNames))
	for i := range cfOpts {
		cfOpts[i] = grocksdb.NewDefaultOptions()
	}

	db, cfHandles, err := grocksdb.OpenOptimisticTransactionDbColumnFamilies(
		opts, dir, columnFamilyNames, cfOpts)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfs:     cfHandles,
		ro:      grocksdb.NewDefaultReadOptions(),
		wo:      grocksdb.NewDefaultWriteOptions(),
		otxnOpt: grocksdb.NewDefaultOptimisticTransactionOptions(),
	}, nil
}

func (s *Store) cfHandle(ns storage.Namespace) *grocksdb.ColumnFamilyHandle {
	return s.cfs[int(ns)]
}

// namespacedKey prepends the subtree prefix to key, except in the Meta
// namespace which is global and unprefixed (spec §4.2).
func namespacedKey(prefix storage.Prefix, ns storage.Namespace, key []byte) []byte {
	if ns == storage.Meta {
		return key
	}
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix[:]...)
	out = append(out, key...)
	return out
}

// Immediate returns a Context whose writes hit the base DB handle
// directly (spec §4.2 "immediate" mode).
func (s *Store) Immediate() storage.Context {
	return &dbContext{store: s}
}

// Begin starts a grocksdb optimistic transaction.
func (s *Store) Begin() (storage.Transaction, error) {
	txn := s.db.TransactionBegin(s.wo, s.otxnOpt, nil)
	return &txn_{store: s, txn: txn}, nil
}

// Close releases the database handles.
func (s *Store) Close() error {
	for _, cf := range s.cfs {
		cf.Destroy()
	}
	s.db.Close()
	return nil
}

type dbContext struct {
	store *Store
}

func (c *dbContext) Get(prefix storage.Prefix, ns storage.Namespace, key []byte) ([]byte, bool, cost.Cost, error) {
	k := namespacedKey(prefix, ns, key)
	v, err := c.store.db.GetCF(c.store.ro, c.store.cfHandle(ns), k)
	if err != nil {
		return nil, false, cost.Cost{SeekCount: 1}, err
	}
	defer v.Free()
	if !v.Exists() {
		return nil, false, cost.Cost{SeekCount: 1}, nil
	}
	out := append([]byte(nil), v.Data()...)
	return out, true, cost.Cost{SeekCount: 1, StorageLoadedBytes: uint64(len(out))}, nil
}

func (c *dbContext) sizeOf(prefix storage.Prefix, ns storage.Namespace, key []byte) uint64 {
	_, ok, cst, _ := c.Get(prefix, ns, key)
	if !ok {
		return 0
	}
	return cst.StorageLoadedBytes
}

func (c *dbContext) Put(prefix storage.Prefix, ns storage.Namespace, key, value []byte) (cost.Cost, error) {
	oldSize := c.sizeOf(prefix, ns, key)
	k := namespacedKey(prefix, ns, key)
	if err := c.store.db.PutCF(c.store.wo, c.store.cfHandle(ns), k, value); err != nil {
		return cost.Cost{}, err
	}
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(oldSize, uint64(len(value)))}, nil
}

func (c *dbContext) Delete(prefix storage.Prefix, ns storage.Namespace, key []byte) (cost.Cost, error) {
	oldSize := c.sizeOf(prefix, ns, key)
	if oldSize == 0 {
		return cost.Cost{SeekCount: 1}, nil
	}
	k := namespacedKey(prefix, ns, key)
	if err := c.store.db.DeleteCF(c.store.wo, c.store.cfHandle(ns), k); err != nil {
		return cost.Cost{}, err
	}
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(oldSize, 0)}, nil
}

func (c *dbContext) NewIterator(prefix storage.Prefix, ns storage.Namespace, start, end []byte) storage.Iterator {
	it := c.store.db.NewIteratorCF(c.store.ro, c.store.cfHandle(ns))
	lower := namespacedKey(prefix, ns, start)
	if start == nil && ns != storage.Meta {
		lower = prefix[:]
	}
	it.Seek(lower)
	return &dbIterator{it: it, prefix: prefix, ns: ns, end: end}
}

func (c *dbContext) Commit() error { return nil }

type dbIterator struct {
	it     *grocksdb.Iterator
	prefix storage.Prefix
	ns     storage.Namespace
	end    []byte
}

func (it *dbIterator) Valid() bool {
	if !it.it.Valid() {
		return false
	}
	if it.ns != storage.Meta {
		raw := it.it.Key()
		inPrefix := bytes.HasPrefix(raw.Data(), it.prefix[:])
		raw.Free()
		if !inPrefix {
			return false
		}
	}
	if it.end == nil {
		return true
	}
	k := it.Key()
	return string(k) < string(it.end)
}

func (it *dbIterator) Next() { it.it.Next() }

func (it *dbIterator) Key() []byte {
	k := it.it.Key()
	defer k.Free()
	raw := append([]byte(nil), k.Data()...)
	if it.ns == storage.Meta {
		return raw
	}
	if len(raw) < len(it.prefix) {
		return raw
	}
	return raw[len(it.prefix):]
}

func (it *dbIterator) Value() []byte {
	v := it.it.Value()
	defer v.Free()
	return append([]byte(nil), v.Data()...)
}

func (it *dbIterator) Close() { it.it.Close() }

type txn_ struct {
	store *Store
	txn   *grocksdb.Transaction
}

func (t *txn_) Context() storage.Context { return &txnContext{txn: t} }

func (t *txn_) Commit() error {
	if err := t.txn.Commit(); err != nil {
		return storage.ErrConflict
	}
	return nil
}

func (t *txn_) Rollback() error {
	return t.txn.Rollback()
}

type txnContext struct {
	txn *txn_
}

func (c *txnContext) Get(prefix storage.Prefix, ns storage.Namespace, key []byte) ([]byte, bool, cost.Cost, error) {
	k := namespacedKey(prefix, ns, key)
	v, err := c.txn.txn.GetCF(c.txn.store.ro, c.txn.store.cfHandle(ns), k)
	if err != nil {
		return nil, false, cost.Cost{SeekCount: 1}, err
	}
	defer v.Free()
	if !v.Exists() {
		return nil, false, cost.Cost{SeekCount: 1}, nil
	}
	out := append([]byte(nil), v.Data()...)
	return out, true, cost.Cost{SeekCount: 1, StorageLoadedBytes: uint64(len(out))}, nil
}

func (c *txnContext) sizeOf(prefix storage.Prefix, ns storage.Namespace, key []byte) uint64 {
	_, ok, cst, _ := c.Get(prefix, ns, key)
	if !ok {
		return 0
	}
	return cst.StorageLoadedBytes
}

func (c *txnContext) Put(prefix storage.Prefix, ns storage.Namespace, key, value []byte) (cost.Cost, error) {
	oldSize := c.sizeOf(prefix, ns, key)
	k := namespacedKey(prefix, ns, key)
	if err := c.txn.txn.PutCF(c.txn.store.cfHandle(ns), k, value); err != nil {
		return cost.Cost{}, err
	}
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(oldSize, uint64(len(value)))}, nil
}

func (c *txnContext) Delete(prefix storage.Prefix, ns storage.Namespace, key []byte) (cost.Cost, error) {
	oldSize := c.sizeOf(prefix, ns, key)
	if oldSize == 0 {
		return cost.Cost{SeekCount: 1}, nil
	}
	k := namespacedKey(prefix, ns, key)
	if err := c.txn.txn.DeleteCF(c.txn.store.cfHandle(ns), k); err != nil {
		return cost.Cost{}, err
	}
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(oldSize, 0)}, nil
}

func (c *txnContext) NewIterator(prefix storage.Prefix, ns storage.Namespace, start, end []byte) storage.Iterator {
	it := c.txn.txn.NewIteratorCF(c.txn.store.ro, c.txn.store.cfHandle(ns))
	lower := namespacedKey(prefix, ns, start)
	if start == nil && ns != storage.Meta {
		lower = prefix[:]
	}
	it.Seek(lower)
	return &dbIterator{it: it, prefix: prefix, ns: ns, end: end}
}

func (c *txnContext) Commit() error { return nil }
