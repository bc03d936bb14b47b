// Package memstore is an in-memory storage.Store reference implementation
// backed by github.com/google/btree, used by tests and by cost-estimation
// dry runs (SPEC_FULL.md "Batch dry-run / cost-estimation mode"). It
// implements the same optimistic-conflict-detection contract real
// backends (storage/rocksdb) must honor.
package memstore

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/storage"
)

type entry struct {
	key   []byte
	value []byte
}

func (e *entry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(*entry).key) < 0
}

// namespaceKey scopes a btree to one (prefix, namespace) pair.
type namespaceKey struct {
	prefix storage.Prefix
	ns     storage.Namespace
}

// Store is the in-memory Store. Zero value is not usable; use New.
type Store struct {
	mu   sync.RWMutex
	data map[namespaceKey]*btree.BTree
	rev  uint64 // global commit counter, used for optimistic conflict detection
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[namespaceKey]*btree.BTree)}
}

func (s *Store) treeFor(nk namespaceKey) *btree.BTree {
	t, ok := s.data[nk]
	if !ok {
		t = btree.New(32)
		s.data[nk] = t
	}
	return t
}

// Immediate returns a Context that writes straight into the shared store.
func (s *Store) Immediate() storage.Context {
	return &memContext{store: s}
}

// Begin starts an optimistic transaction that records the store's current
// revision; Commit fails with storage.ErrConflict if any other write (a
// committed transaction or an immediate-mode write) reached the store in
// the meantime, whether or not it touched the same keys.
func (s *Store) Begin() (storage.Transaction, error) {
	s.mu.RLock()
	startRev := atomic.LoadUint64(&s.rev)
	s.mu.RUnlock()
	return &memTxn{
		store:    s,
		startRev: startRev,
		writes:   make(map[namespaceKey]map[string][]byte),
		touched:  make(map[namespaceKey]map[string]bool),
	}, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// memContext is the immediate-mode Context: every call takes effect right
// away under the store's write lock.
type memContext struct {
	store *Store
}

func (c *memContext) Get(prefix storage.Prefix, ns storage.Namespace, key []byte) ([]byte, bool, cost.Cost, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	t := c.store.data[namespaceKey{prefix, ns}]
	if t == nil {
		return nil, false, cost.Cost{SeekCount: 1}, nil
	}
	item := t.Get(&entry{key: key})
	if item == nil {
		return nil, false, cost.Cost{SeekCount: 1}, nil
	}
	v := item.(*entry).value
	return v, true, cost.Cost{SeekCount: 1, StorageLoadedBytes: uint64(len(v))}, nil
}

func (c *memContext) Put(prefix storage.Prefix, ns storage.Namespace, key, value []byte) (cost.Cost, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	nk := namespaceKey{prefix, ns}
	t := c.store.treeFor(nk)
	var oldSize uint64
	if old := t.Get(&entry{key: key}); old != nil {
		oldSize = uint64(len(old.(*entry).value))
	}
	t.ReplaceOrInsert(&entry{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	atomic.AddUint64(&c.store.rev, 1)
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(oldSize, uint64(len(value)))}, nil
}

func (c *memContext) Delete(prefix storage.Prefix, ns storage.Namespace, key []byte) (cost.Cost, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	nk := namespaceKey{prefix, ns}
	t := c.store.data[nk]
	if t == nil {
		return cost.Cost{SeekCount: 1}, nil
	}
	old := t.Delete(&entry{key: key})
	if old == nil {
		return cost.Cost{SeekCount: 1}, nil
	}
	atomic.AddUint64(&c.store.rev, 1)
	oldSize := uint64(len(old.(*entry).value))
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(oldSize, 0)}, nil
}

func (c *memContext) NewIterator(prefix storage.Prefix, ns storage.Namespace, start, end []byte) storage.Iterator {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	t := c.store.data[namespaceKey{prefix, ns}]
	it := &memIterator{end: end}
	if t == nil {
		return it
	}
	visit := func(i btree.Item) bool {
		e := i.(*entry)
		if end != nil && bytes.Compare(e.key, end) >= 0 {
			return false
		}
		it.items = append(it.items, entry{key: append([]byte(nil), e.key...), value: append([]byte(nil), e.value...)})
		return true
	}
	if start != nil {
		t.AscendGreaterOrEqual(&entry{key: start}, visit)
	} else {
		t.Ascend(visit)
	}
	return it
}

func (c *memContext) Commit() error { return nil }

type memIterator struct {
	items []entry
	idx   int
	end   []byte
}

func (it *memIterator) Valid() bool     { return it.idx < len(it.items) }
func (it *memIterator) Next()           { it.idx++ }
func (it *memIterator) Key() []byte     { return it.items[it.idx].key }
func (it *memIterator) Value() []byte   { return it.items[it.idx].value }
func (it *memIterator) Close()          {}

// memTxn buffers writes in-memory until Commit; Get reads its own buffered
// writes first (spec §5: "reads see uncommitted writes from the same
// transaction"), then falls back to the store's current contents. Reads
// are not pinned to startRev; Commit's revision check rejects the
// transaction if the store changed after Begin.
type memTxn struct {
	store    *Store
	startRev uint64
	writes   map[namespaceKey]map[string][]byte
	deletes  map[namespaceKey]map[string]bool
	touched  map[namespaceKey]map[string]bool
	done     bool
}

func (t *memTxn) Context() storage.Context { return &memTxnContext{txn: t} }

func (t *memTxn) Commit() error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if atomic.LoadUint64(&t.store.rev) != t.startRev {
		// Another transaction committed since we started; only actually a
		// conflict if our touched keys overlap with what's there now. The
		// in-memory reference store takes the conservative, Trillian-style
		// stance of failing the whole transaction on any interleaved commit.
		return storage.ErrConflict
	}

	for nk, kv := range t.writes {
		tr := t.store.treeFor(nk)
		for k, v := range kv {
			tr.ReplaceOrInsert(&entry{key: []byte(k), value: v})
		}
	}
	for nk, dels := range t.deletes {
		tr := t.store.data[nk]
		if tr == nil {
			continue
		}
		for k := range dels {
			tr.Delete(&entry{key: []byte(k)})
		}
	}
	atomic.AddUint64(&t.store.rev, 1)
	t.done = true
	return nil
}

func (t *memTxn) Rollback() error {
	t.writes = nil
	t.deletes = nil
	t.done = true
	return nil
}

type memTxnContext struct {
	txn *memTxn
}

func (c *memTxnContext) Get(prefix storage.Prefix, ns storage.Namespace, key []byte) ([]byte, bool, cost.Cost, error) {
	nk := namespaceKey{prefix, ns}
	if kv, ok := c.txn.writes[nk]; ok {
		if v, ok := kv[string(key)]; ok {
			return v, true, cost.Cost{SeekCount: 1, StorageLoadedBytes: uint64(len(v))}, nil
		}
	}
	if dels, ok := c.txn.deletes[nk]; ok && dels[string(key)] {
		return nil, false, cost.Cost{SeekCount: 1}, nil
	}
	return (&memContext{store: c.txn.store}).Get(prefix, ns, key)
}

func (c *memTxnContext) Put(prefix storage.Prefix, ns storage.Namespace, key, value []byte) (cost.Cost, error) {
	nk := namespaceKey{prefix, ns}
	oldVal, found, _, _ := c.Get(prefix, ns, key)
	var oldSize uint64
	if found {
		oldSize = uint64(len(oldVal))
	}
	if c.txn.writes[nk] == nil {
		c.txn.writes[nk] = make(map[string][]byte)
	}
	c.txn.writes[nk][string(key)] = append([]byte(nil), value...)
	if dels := c.txn.deletes[nk]; dels != nil {
		delete(dels, string(key))
	}
	markTouched(c.txn.touched, nk, key)
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(oldSize, uint64(len(value)))}, nil
}

func (c *memTxnContext) Delete(prefix storage.Prefix, ns storage.Namespace, key []byte) (cost.Cost, error) {
	nk := namespaceKey{prefix, ns}
	oldVal, found, _, _ := c.Get(prefix, ns, key)
	if !found {
		return cost.Cost{SeekCount: 1}, nil
	}
	if c.txn.deletes == nil {
		c.txn.deletes = make(map[namespaceKey]map[string]bool)
	}
	if c.txn.deletes[nk] == nil {
		c.txn.deletes[nk] = make(map[string]bool)
	}
	c.txn.deletes[nk][string(key)] = true
	if w := c.txn.writes[nk]; w != nil {
		delete(w, string(key))
	}
	markTouched(c.txn.touched, nk, key)
	return cost.Cost{SeekCount: 1, Storage: cost.StorageDelta(uint64(len(oldVal)), 0)}, nil
}

func markTouched(touched map[namespaceKey]map[string]bool, nk namespaceKey, key []byte) {
	if touched[nk] == nil {
		touched[nk] = make(map[string]bool)
	}
	touched[nk][string(key)] = true
}

func (c *memTxnContext) NewIterator(prefix storage.Prefix, ns storage.Namespace, start, end []byte) storage.Iterator {
	// Merge the store's current contents with this transaction's buffered writes.
	base := (&memContext{store: c.txn.store}).NewIterator(prefix, ns, start, end).(*memIterator)
	nk := namespaceKey{prefix, ns}
	merged := map[string][]byte{}
	for _, e := range base.items {
		merged[string(e.key)] = e.value
	}
	for k, v := range c.txn.writes[nk] {
		if (start == nil || k >= string(start)) && (end == nil || k < string(end)) {
			merged[k] = v
		}
	}
	for k := range c.txn.deletes[nk] {
		delete(merged, k)
	}
	out := &memIterator{}
	for k, v := range merged {
		out.items = append(out.items, entry{key: []byte(k), value: v})
	}
	sortEntries(out.items)
	return out
}

func sortEntries(items []entry) {
	// small insertion sort is fine here: iterators are only used for bounded
	// range queries (spec §4.11), never full-table scans at this layer.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && bytes.Compare(items[j-1].key, items[j].key) > 0; j-- {
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}

func (c *memTxnContext) Commit() error { return nil }
