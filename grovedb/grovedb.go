// Package grovedb is the root façade: it wires storage, grove, batch,
// query, and proof into the single entry point an embedding application
// programs against, mirroring how Trillian's top-level LogVerifier/
// MapVerifier wrap the merkle + storage packages into one handle. Not a
// distinct component in the original component list, but required for the
// pieces to be usable together (SPEC_FULL.md "Supplemented features").
package grovedb

import (
	"github.com/dashpay/grovedb-go/batch"
	"github.com/dashpay/grovedb-go/config"
	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/grove"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/metrics"
	"github.com/dashpay/grovedb-go/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-go/nonmerk/commitment"
	"github.com/dashpay/grovedb-go/nonmerk/dense"
	"github.com/dashpay/grovedb-go/nonmerk/mmr"
	"github.com/dashpay/grovedb-go/proof"
	"github.com/dashpay/grovedb-go/query"
	"github.com/dashpay/grovedb-go/storage"
)

// GroveDb is the engine handle: a storage backend plus the engine tunables,
// of which proof verification reads the MMR proof caps.
type GroveDb struct {
	store   storage.Store
	cfg     config.Config
	metrics *metrics.Collectors
}

// Open wraps store with cfg's tunables.
func Open(store storage.Store, cfg config.Config) *GroveDb {
	return &GroveDb{store: store, cfg: cfg}
}

// WithMetrics attaches a Collectors set that every subsequent call
// reports its cost.Cost into.
func (db *GroveDb) WithMetrics(m *metrics.Collectors) *GroveDb {
	db.metrics = m
	return db
}

func (db *GroveDb) observe(c cost.Cost) { db.metrics.ObserveCost(c) }

// Get reads the element at path/key.
func (db *GroveDb) Get(path [][]byte, key []byte) (element.Element, cost.Cost, error) {
	e, c, err := grove.Open().Get(db.store.Immediate(), path, key)
	db.observe(c)
	return e, c, err
}

// Insert writes e at path/key, propagating the new subtree root upward.
func (db *GroveDb) Insert(path [][]byte, key []byte, e element.Element) (cost.Cost, error) {
	c, err := grove.Open().Put(db.store.Immediate(), path, key, e)
	db.observe(c)
	return c, err
}

// Delete removes path/key, propagating the root change upward.
func (db *GroveDb) Delete(path [][]byte, key []byte) (cost.Cost, error) {
	c, err := grove.Open().Delete(db.store.Immediate(), path, key)
	db.observe(c)
	return c, err
}

// DeleteUpTree removes path/key, recursively destroying its descendant
// subtree first if it is Tree-like or a non-Merk tree, then propagating
// the change upward the same way Delete does.
func (db *GroveDb) DeleteUpTree(path [][]byte, key []byte) (cost.Cost, error) {
	c, err := grove.Open().DeleteUpTree(db.store.Immediate(), path, key)
	db.observe(c)
	return c, err
}

// ApplyBatch runs a multi-operation batch through the grouping/
// propagation pipeline (spec §4.9).
func (db *GroveDb) ApplyBatch(ops []batch.QualifiedGroveDbOp) (cost.Cost, error) {
	c, err := batch.Apply(db.store.Immediate(), ops)
	db.observe(c)
	return c, err
}

// EstimateBatchCost reports the cost.Cost ops would incur without
// committing them.
func (db *GroveDb) EstimateBatchCost(ops []batch.QualifiedGroveDbOp) (cost.Cost, error) {
	return batch.EstimateCost(db.store, ops)
}

// Query evaluates pq against the current grove state.
func (db *GroveDb) Query(pq query.PathQuery) ([]query.ResultItem, cost.Cost, error) {
	results, c, err := query.Evaluate(db.store.Immediate(), pq)
	db.observe(c)
	return results, c, err
}

// Prove generates a V0 proof layer disclosing exactly keys within the
// Merk subtree at path.
func (db *GroveDb) Prove(path [][]byte, keys [][]byte) (proof.Layer, cost.Cost, error) {
	ctx := db.store.Immediate()
	tree, c1, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	if err != nil {
		db.observe(c1)
		return proof.Layer{}, c1, err
	}
	layer, c2, err := proof.Generate(tree, keys)
	total := c1.Add(c2)
	db.observe(total)
	if err == nil {
		db.metrics.ObserveProofBytes(encodedSize(layer))
	}
	return layer, total, err
}

// Verify checks a proof layer against a trusted root and returns the
// disclosed (key, value) pairs.
func (db *GroveDb) Verify(layer proof.Layer, trustedRoot hash.Digest) ([]proof.KV, error) {
	return proof.Verify(layer, trustedRoot)
}

// ProveQuery generates a nested proof for the whole subquery plan pq
// describes, one Layer per Merk subtree the plan descends through,
// generalizing Prove's single flat key list to a full query.PathQuery.
func (db *GroveDb) ProveQuery(pq query.PathQuery) (proof.NestedLayer, cost.Cost, error) {
	nested, c, err := proof.ProveQuery(db.store.Immediate(), pq)
	db.observe(c)
	return nested, c, err
}

// VerifyQuery checks a nested query proof against a trusted root and
// returns the disclosed entries, matching the shape db.Query's result set
// has (spec §4.10 "verify(prove(db, q), root(db)) yields the result of
// query(db, q)").
func (db *GroveDb) VerifyQuery(nested proof.NestedLayer, trustedRoot hash.Digest, path [][]byte) ([]query.ResultItem, error) {
	return proof.VerifyQuery(nested, trustedRoot, path)
}

// ProveNonMerk generates a V1 envelope (spec §4.10) disclosing the
// element at path/key (a non-Merk tree) plus an inclusion proof for the
// index-th entry of that tree, selected the moment a query descends out
// of the Merk subtree at path.
func (db *GroveDb) ProveNonMerk(path [][]byte, key []byte, index uint64) (proof.Envelope, cost.Cost, error) {
	ctx := db.store.Immediate()

	tree, c1, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	if err != nil {
		db.observe(c1)
		return proof.Envelope{}, c1, err
	}
	parentLayer, c2, err := proof.Generate(tree, [][]byte{key})
	total := c1.Add(c2)
	if err != nil {
		db.observe(total)
		return proof.Envelope{}, total, err
	}

	elem, c3, err := grove.Open().Get(ctx, path, key)
	total = total.Add(c3)
	if err != nil {
		db.observe(total)
		return proof.Envelope{}, total, err
	}
	if !elem.Kind.IsNonMerkTree() {
		db.observe(total)
		return proof.Envelope{}, total, groveerr.ErrNotSupported
	}

	childPrefix := storage.DerivePrefix(append(append([][]byte{}, path...), key))
	leaf, c4, err := proveNonMerkLeaf(ctx, childPrefix, elem, index)
	total = total.Add(c4)
	db.observe(total)
	if err != nil {
		return proof.Envelope{}, total, err
	}

	return proof.Envelope{ParentLayer: parentLayer, ParentKey: key, Leaf: leaf}, total, nil
}

// proveNonMerkLeaf opens the non-Merk tree elem describes and builds its
// inclusion proof for index, dispatching on the same Kind switch
// batch.applyNonMerkGroup uses to open these trees for writes.
func proveNonMerkLeaf(ctx storage.Context, prefix storage.Prefix, elem element.Element, index uint64) (proof.NonMerkProof, cost.Cost, error) {
	switch elem.Kind {
	case element.MmrTree:
		m := mmr.Open(ctx, prefix, elem.MmrSize)
		p, c, err := m.Prove(index)
		return proof.NonMerkProof{Kind: proof.LayerMMR, MMR: p}, c, err

	case element.BulkAppendTree:
		b, err := bulkappend.Open(ctx, prefix, int(elem.ChunkPower), elem.TotalCount)
		if err != nil {
			return proof.NonMerkProof{}, cost.Cost{}, err
		}
		p, c, err := b.Prove(index)
		return proof.NonMerkProof{Kind: proof.LayerBulkAppendTree, BulkAppend: p}, c, err

	case element.DenseAppendOnlyFixedSizeTree:
		d, err := dense.Open(ctx, prefix, int(elem.DenseHeight), elem.DenseCount)
		if err != nil {
			return proof.NonMerkProof{}, cost.Cost{}, err
		}
		p, c, err := d.Prove(uint32(index))
		return proof.NonMerkProof{Kind: proof.LayerDenseTree, Dense: p}, c, err

	case element.CommitmentTree:
		cm, c1, err := commitment.Open(ctx, prefix, int(elem.ChunkPower), elem.TotalCount)
		if err != nil {
			return proof.NonMerkProof{}, c1, err
		}
		p, c2, err := cm.Prove(index)
		return proof.NonMerkProof{Kind: proof.LayerCommitmentTree, Commitment: p}, c1.Add(c2), err

	default:
		return proof.NonMerkProof{}, cost.Cost{}, groveerr.ErrNotSupported
	}
}

// VerifyEnvelope checks a V1 proof against a trusted root and returns
// the disclosed element bytes and the proved non-Merk entry's payload.
func (db *GroveDb) VerifyEnvelope(env proof.Envelope, trustedRoot hash.Digest) ([]byte, []byte, error) {
	return proof.VerifyEnvelope(env, trustedRoot, db.cfg)
}

// encodedSize is a rough proof-size estimate for metrics purposes: the sum
// of every disclosed field, without a full wire encoding.
func encodedSize(layer proof.Layer) int {
	n := 0
	for _, op := range layer.Ops {
		n += 1 + len(op.Node.Key) + len(op.Node.Value) + hash.Size*2
	}
	return n
}

// Txn is a handle to an in-flight optimistic transaction (spec §4.2, §5).
type Txn struct {
	db  *GroveDb
	txn storage.Transaction
}

// StartTransaction begins a new optimistic transaction against db's
// store.
func (db *GroveDb) StartTransaction() (*Txn, error) {
	txn, err := db.store.Begin()
	if err != nil {
		return nil, err
	}
	return &Txn{db: db, txn: txn}, nil
}

// Get reads within the transaction's isolated view.
func (t *Txn) Get(path [][]byte, key []byte) (element.Element, cost.Cost, error) {
	e, c, err := grove.Open().Get(t.txn.Context(), path, key)
	t.db.observe(c)
	return e, c, err
}

// Insert writes within the transaction's isolated view.
func (t *Txn) Insert(path [][]byte, key []byte, e element.Element) (cost.Cost, error) {
	c, err := grove.Open().Put(t.txn.Context(), path, key, e)
	t.db.observe(c)
	return c, err
}

// Delete removes within the transaction's isolated view.
func (t *Txn) Delete(path [][]byte, key []byte) (cost.Cost, error) {
	c, err := grove.Open().Delete(t.txn.Context(), path, key)
	t.db.observe(c)
	return c, err
}

// DeleteUpTree removes path/key within the transaction's isolated view,
// recursively destroying its descendant subtree first if it is Tree-like
// or a non-Merk tree.
func (t *Txn) DeleteUpTree(path [][]byte, key []byte) (cost.Cost, error) {
	c, err := grove.Open().DeleteUpTree(t.txn.Context(), path, key)
	t.db.observe(c)
	return c, err
}

// ApplyBatch runs a batch within the transaction's isolated view.
func (t *Txn) ApplyBatch(ops []batch.QualifiedGroveDbOp) (cost.Cost, error) {
	c, err := batch.Apply(t.txn.Context(), ops)
	t.db.observe(c)
	return c, err
}

// Commit attempts to make every buffered write visible atomically,
// aborting with storage.ErrConflict if another transaction committed a
// conflicting write first (spec §4.2, §5).
func (t *Txn) Commit() error { return t.txn.Commit() }

// Rollback discards every buffered write. Costs already reported via
// db.metrics remain valid (spec §5: cancellation never un-charges cost).
func (t *Txn) Rollback() error { return t.txn.Rollback() }
