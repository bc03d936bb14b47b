// Package grove ties the Merk engine and the element model together into
// the "tree of trees" addressing scheme of spec §4.7: deriving subtree
// prefixes from paths, opening the Merk at a path, and propagating a
// child subtree's new root hash upward into its parent element on every
// mutation.
package grove

import (
	"github.com/golang/glog"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/storage"
)

// Grove is a set of Merk trees keyed by subtree prefix (spec §4.7 "A
// grove is a set of Merk trees keyed by subtree prefix").
type Grove struct{}

// Open returns a handle to the grove; all operations take an explicit
// storage.Context so callers can choose immediate-mode or a transaction.
func Open() *Grove { return &Grove{} }

// ctxFetcher adapts Grove.getElementAt to element.Fetcher, the single
// capability reference resolution needs (spec §4.6).
type ctxFetcher struct {
	g   *Grove
	ctx storage.Context
}

func (f ctxFetcher) GetElement(path [][]byte, key []byte) (element.Element, bool, cost.Cost, error) {
	return f.g.getElementAt(f.ctx, path, key)
}

// getElementAt opens the Merk at path and looks up key, deserializing
// whatever element payload is stored there.
func (g *Grove) getElementAt(ctx storage.Context, path [][]byte, key []byte) (element.Element, bool, cost.Cost, error) {
	prefix := storage.DerivePrefix(path)
	tree, total, err := merk.OpenTree(ctx, prefix)
	if err != nil {
		return element.Element{}, false, total, err
	}
	val, _, found, c, err := tree.Get(key)
	total = total.Add(c)
	if err != nil {
		return element.Element{}, false, total, err
	}
	if !found {
		return element.Element{}, false, total, nil
	}
	e, err := element.Deserialize(val)
	if err != nil {
		return element.Element{}, false, total, err
	}
	return e, true, total, nil
}

// Get reads path++key, resolving Reference elements per spec §4.6
// (spec §4.7 "To read path ++ key...").
func (g *Grove) Get(ctx storage.Context, path [][]byte, key []byte) (element.Element, cost.Cost, error) {
	e, found, total, err := g.getElementAt(ctx, path, key)
	if err != nil {
		return element.Element{}, total, err
	}
	if !found {
		return element.Element{}, total, groveerr.ErrKeyNotFound
	}
	if e.Kind != element.Reference {
		return e, total, nil
	}
	resolved, _, _, c, err := element.ResolveChain(ctxFetcher{g, ctx}, path, key, e.Ref)
	total = total.Add(c)
	return resolved, total, err
}

// Put stores e at path++key and propagates the change upward to the
// grove root (spec §4.7 "perform the Merk mutation at the leaf subtree,
// obtain the new subtree root, update the parent element... and
// propagate upward").
func (g *Grove) Put(ctx storage.Context, path [][]byte, key []byte, e element.Element) (cost.Cost, error) {
	var total cost.Cost

	op, c, err := g.elementOp(ctx, path, key, e)
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	tree, c, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = tree.Apply([]merk.BatchEntry{{Key: key, Op: op}})
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = tree.Commit()
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	c, err = g.propagate(ctx, path, tree)
	total = total.Add(c)
	return total, err
}

// Delete removes key from path's Merk and propagates upward.
func (g *Grove) Delete(ctx storage.Context, path [][]byte, key []byte) (cost.Cost, error) {
	tree, total, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	if err != nil {
		return total, err
	}
	c, err := tree.Apply([]merk.BatchEntry{{Key: key, Op: merk.Op{Kind: merk.OpDelete}}})
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = tree.Commit()
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = g.propagate(ctx, path, tree)
	total = total.Add(c)
	return total, err
}

// DeleteUpTree removes path++key and, if it names a Tree-like or non-Merk
// subtree, recursively destroys everything beneath it first: descendant
// Merk nodes for a Tree-like child (recursing into any further Tree-like/
// non-Merk grandchildren), or the entire data-namespace blob range for a
// non-Merk child (SPEC_FULL.md "Cost-aware DeleteUpTree"). The deletion
// then propagates upward exactly like Delete.
func (g *Grove) DeleteUpTree(ctx storage.Context, path [][]byte, key []byte) (cost.Cost, error) {
	var total cost.Cost

	elem, found, c, err := g.getElementAt(ctx, path, key)
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	if found && (elem.Kind.IsTreeLike() || elem.Kind.IsNonMerkTree()) {
		childPath := append(append([][]byte{}, path...), key)
		c, err := destroySubtree(ctx, childPath, elem.Kind)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
	}

	tree, c, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = tree.Apply([]merk.BatchEntry{{Key: key, Op: merk.Op{Kind: merk.OpDelete}}})
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = tree.Commit()
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = g.propagate(ctx, path, tree)
	total = total.Add(c)
	return total, err
}

// destroySubtree drops every key belonging to the subtree at childPath: for
// a Tree-like child, every descendant Merk node (after recursing into any
// further Tree-like/non-Merk grandchildren found while scanning it); for a
// non-Merk child, its entire Default-namespace blob range in one pass,
// since those trees are flat position-keyed stores with no further
// structure to recurse into.
func destroySubtree(ctx storage.Context, childPath [][]byte, kind element.Kind) (cost.Cost, error) {
	var total cost.Cost
	prefix := storage.DerivePrefix(childPath)

	if kind.IsNonMerkTree() {
		c, err := clearNamespace(ctx, prefix, storage.Default)
		total = total.Add(c)
		return total, err
	}

	iter := ctx.NewIterator(prefix, storage.Default, nil, nil)
	type grandchild struct {
		key  []byte
		kind element.Kind
	}
	var grandchildren []grandchild
	for iter.Valid() {
		total.SeekCount++
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		node, err := merk.Deserialize(k, v)
		if err != nil {
			iter.Close()
			return total, err
		}
		elem, err := element.Deserialize(node.Value)
		if err != nil {
			iter.Close()
			return total, err
		}
		if elem.Kind.IsTreeLike() || elem.Kind.IsNonMerkTree() {
			grandchildren = append(grandchildren, grandchild{key: k, kind: elem.Kind})
		}
		iter.Next()
	}
	iter.Close()

	for _, gc := range grandchildren {
		gcPath := append(append([][]byte{}, childPath...), gc.key)
		c, err := destroySubtree(ctx, gcPath, gc.kind)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
	}

	c, err := clearNamespace(ctx, prefix, storage.Default)
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = clearNamespace(ctx, prefix, storage.Roots)
	total = total.Add(c)
	return total, err
}

// clearNamespace deletes every key under prefix within ns -- the storage
// layer exposes no bulk/prefix-drop primitive (spec §4.2), so a wholesale
// subtree destruction has to enumerate and delete one key at a time.
func clearNamespace(ctx storage.Context, prefix storage.Prefix, ns storage.Namespace) (cost.Cost, error) {
	var total cost.Cost
	iter := ctx.NewIterator(prefix, ns, nil, nil)
	var keys [][]byte
	for iter.Valid() {
		total.SeekCount++
		keys = append(keys, append([]byte(nil), iter.Key()...))
		iter.Next()
	}
	iter.Close()

	for _, k := range keys {
		c, err := ctx.Delete(prefix, ns, k)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// elementOp converts e into the merk.Op that materializes it, resolving
// the value_hash override Tree-like, non-Merk, and Reference variants
// require (spec §3 "For Tree/Reference/non-Merk element variants the
// effective value_hash becomes combine_hash(...)").
func (g *Grove) elementOp(ctx storage.Context, path [][]byte, key []byte, e element.Element) (merk.Op, cost.Cost, error) {
	bytes := element.Serialize(e)
	feature := e.Feature()

	switch {
	case e.Kind == element.Reference:
		resolved, _, _, c, err := element.ResolveChain(ctxFetcher{g, ctx}, path, key, e.Ref)
		if err != nil {
			return merk.Op{}, c, err
		}
		vh := element.ReferenceValueHash(bytes, element.Serialize(resolved))
		return merk.Op{Kind: merk.OpPutCombinedReference, Value: bytes, Feature: feature, ValueHash: vh}, c, nil

	case e.Kind.IsTreeLike() || e.Kind.IsNonMerkTree():
		// A freshly-placed subtree element starts with an empty child, so
		// its combined value_hash binds the all-zero child root; the first
		// mutation inside the new subtree updates it via propagate.
		vh := hash.CombinedValueHash(bytes, hash.Zero)
		return merk.Op{Kind: merk.OpPutCombinedReference, Value: bytes, Feature: feature, ValueHash: vh}, cost.Cost{}, nil

	default:
		return merk.Op{Kind: merk.OpPut, Value: bytes, Feature: feature}, cost.Cost{}, nil
	}
}

// propagate folds tree's new root hash/aggregate into the parent
// element at path[:-1]/path[-1] and recurses until the grove root is
// reached, where the top-level root pointer is persisted (spec §4.7,
// §4.2 "Roots holds the root-key pointer for a subtree"). Non-Merk
// parent kinds (CommitmentTree/MmrTree/BulkAppendTree/
// DenseAppendOnlyFixedSizeTree) are out of scope here: their summary
// counters are threaded by the batch package's non-Merk preprocessing
// pass instead (spec §4.9), since they never hold a merk.Tree child to
// read a root hash from.
func (g *Grove) propagate(ctx storage.Context, path [][]byte, tree *merk.Tree) (cost.Cost, error) {
	var total cost.Cost

	if len(path) == 0 {
		if err := storage.SaveRoot(ctx, tree.RootKey()); err != nil {
			return total, err
		}
		glog.V(2).Infof("grove.propagate: grove root now %x", tree.RootHash())
		return total, nil
	}

	parentPath := path[:len(path)-1]
	childKey := append([]byte(nil), path[len(path)-1]...)

	parentElem, found, c, err := g.getElementAt(ctx, parentPath, childKey)
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	if !found {
		return total, groveerr.ErrPathNotFound
	}
	if !parentElem.Kind.IsTreeLike() {
		return total, groveerr.ErrNotSupported
	}

	agg := tree.RootAggregate()
	updated := parentElem
	updated.RootKey = tree.RootKey()
	switch parentElem.Kind {
	case element.SumTree:
		updated.Sum = agg.Sum
	case element.BigSumTree:
		updated.BigSum = agg.BigSum
	case element.CountTree, element.ProvableCountTree:
		updated.Count = agg.Count
	case element.CountSumTree, element.ProvableCountSumTree:
		updated.Count = agg.Count
		updated.Sum = agg.Sum
	}

	elemBytes := element.Serialize(updated)
	valueHash := hash.CombinedValueHash(elemBytes, tree.RootHash())
	op := merk.Op{Kind: merk.OpReplace, Value: elemBytes, Feature: updated.Feature(), ValueHash: valueHash}

	parentTree, c, err := merk.OpenTree(ctx, storage.DerivePrefix(parentPath))
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = parentTree.Apply([]merk.BatchEntry{{Key: childKey, Op: op}})
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = parentTree.Commit()
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	c, err = g.propagate(ctx, parentPath, parentTree)
	total = total.Add(c)
	return total, err
}
