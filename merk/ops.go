package merk

import (
	"bytes"
	"sort"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
)

// OpKind enumerates the batch operation variants of spec §4.5.
type OpKind uint8

const (
	OpPut OpKind = iota
	OpReplace
	OpPutWithSpecializedCost
	OpPutCombinedReference
	OpPatch
	OpDelete
	OpDeleteLayered
	OpDeleteMaybeSpecialized
)

func (k OpKind) isDelete() bool {
	return k == OpDelete || k == OpDeleteLayered || k == OpDeleteMaybeSpecialized
}

func (k OpKind) isPut() bool {
	return k == OpPut || k == OpReplace || k == OpPutWithSpecializedCost || k == OpPutCombinedReference
}

// PatchFunc computes a new value/feature from the node currently stored
// at a key, for OpPatch.
type PatchFunc func(current *Node) (newValue []byte, newFeature Feature, err error)

// Op is a single batch operation (spec §4.5).
type Op struct {
	Kind    OpKind
	Value   []byte
	Feature Feature
	// ValueHash overrides the default hash.ValueHash(Value) -- used by the
	// element layer to bind a Tree/Reference/non-Merk child root into the
	// combined value hash (spec §4.3). Zero means "compute the default".
	ValueHash hash.Digest
	Patch     PatchFunc
}

// BatchEntry pairs a key with the Op to apply to it. A batch must be
// sorted by Key (spec §4.5 "a batch is a sorted sequence").
type BatchEntry struct {
	Key []byte
	Op  Op
}

// Apply is the single entry point for both construction strategies of
// spec §4.5: if root is nil, Build-from-empty median-splits batch; if
// root is non-nil, Merge-into-existing binary searches for the split
// point and recurses via Walk.
func Apply(root *Walker, batch []BatchEntry, fetch Fetch) (*Walker, cost.Cost, error) {
	if len(batch) == 0 {
		return root, cost.Cost{}, nil
	}
	if root == nil {
		return buildFromSorted(batch, fetch)
	}
	return applyMerge(root, batch)
}

// buildFromSorted implements "median-split the sorted batch, make the
// median the root, recurse on halves" (spec §4.5 strategy 1), producing a
// perfectly balanced tree of height ceil(log2(n+1)).
func buildFromSorted(batch []BatchEntry, fetch Fetch) (*Walker, cost.Cost, error) {
	if len(batch) == 0 {
		return nil, cost.Cost{}, nil
	}
	mid := len(batch) / 2
	entry := batch[mid]

	if entry.Op.Kind.isDelete() || entry.Op.Kind == OpPatch {
		return nil, cost.Cost{}, groveerr.ErrKeyNotFound
	}

	node, err := nodeFromPut(entry.Key, entry.Op)
	if err != nil {
		return nil, cost.Cost{}, err
	}
	w := &Walker{Node: node, Fetch: fetch}

	var total cost.Cost

	left, c, err := buildFromSorted(batch[:mid], fetch)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	w, err = w.Attach(Left, left)
	if err != nil {
		return nil, total, err
	}

	right, c, err := buildFromSorted(batch[mid+1:], fetch)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	w, err = w.Attach(Right, right)
	if err != nil {
		return nil, total, err
	}

	total.Blake3Calls += 2 // kv_hash + node_hash for the freshly built node
	return w, total, nil
}

func nodeFromPut(key []byte, op Op) (*Node, error) {
	if op.Kind == OpPutCombinedReference && op.ValueHash.IsZero() {
		return nil, groveerr.ErrInvalidPayload
	}
	return NewNode(key, op.Value, op.Feature, op.ValueHash), nil
}

// applyMerge implements "binary-search the current node's key in the
// batch to find the split index; recursively apply left-half to left
// subtree and right-half to right subtree via walk, then rebalance" (spec
// §4.5 strategy 2).
func applyMerge(w *Walker, batch []BatchEntry) (*Walker, cost.Cost, error) {
	key := w.Node.Key
	idx := sort.Search(len(batch), func(i int) bool { return bytes.Compare(batch[i].Key, key) >= 0 })
	found := idx < len(batch) && bytes.Equal(batch[idx].Key, key)

	leftBatch := batch[:idx]
	var rightBatch []BatchEntry
	var matched Op
	if found {
		matched = batch[idx].Op
		rightBatch = batch[idx+1:]
	} else {
		rightBatch = batch[idx:]
	}

	var total cost.Cost
	fetch := w.Fetch

	w, c, err := w.Walk(Left, func(child *Walker) (*Walker, cost.Cost, error) {
		return Apply(child, leftBatch, fetch)
	})
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}

	w, c, err = w.Walk(Right, func(child *Walker) (*Walker, cost.Cost, error) {
		return Apply(child, rightBatch, fetch)
	})
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}

	if !found {
		balanced, c, err := MaybeBalance(w)
		total = total.Add(c)
		return balanced, total, err
	}

	if matched.Kind.isDelete() {
		replacement, c, err := deleteNode(w)
		total = total.Add(c)
		return replacement, total, err
	}

	w, c, err = applyPutOrPatch(w, matched)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	balanced, c, err := MaybeBalance(w)
	total = total.Add(c)
	return balanced, total, err
}

func applyPutOrPatch(w *Walker, op Op) (*Walker, cost.Cost, error) {
	oldSize := uint64(len(w.Node.Value))
	var newValue []byte
	var newFeature Feature

	switch op.Kind {
	case OpPut, OpReplace, OpPutWithSpecializedCost, OpPutCombinedReference:
		if op.Kind == OpPutCombinedReference && op.ValueHash.IsZero() {
			return nil, cost.Cost{}, groveerr.ErrInvalidPayload
		}
		newValue, newFeature = op.Value, op.Feature
	case OpPatch:
		if op.Patch == nil {
			return nil, cost.Cost{}, groveerr.ErrInvalidPayload
		}
		v, f, err := op.Patch(w.Node)
		if err != nil {
			return nil, cost.Cost{}, err
		}
		newValue, newFeature = v, f
	default:
		return nil, cost.Cost{}, groveerr.ErrNotSupported
	}

	vh := op.ValueHash
	if vh.IsZero() {
		vh = hash.ValueHash(newValue)
	}
	w.Node.Value = newValue
	w.Node.Feature = newFeature
	w.Node.ValueHash = vh
	w.Node.KVHash = hash.KVDigestToKVHash(w.Node.Key, vh)
	if err := w.Node.recomputeHash(); err != nil {
		return nil, cost.Cost{}, err
	}

	c := cost.Cost{Blake3Calls: 2, Storage: cost.StorageDelta(oldSize, uint64(len(newValue)))}
	return w, c, nil
}

// deleteNode implements spec §4.5's deletion rule: leaf deletion simply
// detaches; single-child deletion hoists the child; two-children deletion
// promotes an edge node from the taller subtree (leftmost of the right
// subtree if right is >= left, otherwise rightmost of the left subtree)
// to minimize post-deletion rebalancing.
func deleteNode(w *Walker) (*Walker, cost.Cost, error) {
	var total cost.Cost

	withoutLeft, leftChild, c, err := w.Detach(Left)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	withoutBoth, rightChild, c, err := withoutLeft.Detach(Right)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	_ = withoutBoth

	switch {
	case leftChild == nil && rightChild == nil:
		return nil, total, nil
	case leftChild == nil:
		return rightChild, total, nil
	case rightChild == nil:
		return leftChild, total, nil
	}

	if rightChild.Node.Height() >= leftChild.Node.Height() {
		promoted, remainder, c, err := extractLeftmost(rightChild)
		total = total.Add(c)
		if err != nil {
			return nil, total, err
		}
		return reassemble(promoted, leftChild, remainder, total)
	}
	promoted, remainder, c, err := extractRightmost(leftChild)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	return reassemble(promoted, remainder, rightChild, total)
}

func reassemble(promoted *Node, left, right *Walker, total cost.Cost) (*Walker, cost.Cost, error) {
	newRoot := NewNode(promoted.Key, promoted.Value, promoted.Feature, promoted.ValueHash)
	w := &Walker{Node: newRoot, Fetch: pickFetch(left, right)}
	w, err := w.Attach(Left, left)
	if err != nil {
		return nil, total, err
	}
	w, err = w.Attach(Right, right)
	if err != nil {
		return nil, total, err
	}
	balanced, c, err := MaybeBalance(w)
	total = total.Add(c)
	return balanced, total, err
}

func pickFetch(ws ...*Walker) Fetch {
	for _, w := range ws {
		if w != nil {
			return w.Fetch
		}
	}
	return nil
}

// extractLeftmost descends to the leftmost node of w's subtree, returning
// that node's (key,value,feature) and the remainder of the subtree with
// it removed.
func extractLeftmost(w *Walker) (*Node, *Walker, cost.Cost, error) {
	withoutLeft, leftChild, c, err := w.Detach(Left)
	if err != nil {
		return nil, nil, c, err
	}
	if leftChild == nil {
		// withoutLeft still has the original Right link attached.
		withoutBoth, rightChild, c2, err := withoutLeft.Detach(Right)
		_ = withoutBoth
		return w.Node, rightChild, c.Add(c2), err
	}

	promoted, remainderOfLeft, c2, err := extractLeftmost(leftChild)
	total := c.Add(c2)
	if err != nil {
		return nil, nil, total, err
	}
	newParent, err := withoutLeft.Attach(Left, remainderOfLeft)
	if err != nil {
		return nil, nil, total, err
	}
	balanced, c3, err := MaybeBalance(newParent)
	total = total.Add(c3)
	return promoted, balanced, total, err
}

// extractRightmost is the mirror of extractLeftmost.
func extractRightmost(w *Walker) (*Node, *Walker, cost.Cost, error) {
	withoutRight, rightChild, c, err := w.Detach(Right)
	if err != nil {
		return nil, nil, c, err
	}
	if rightChild == nil {
		withoutBoth, leftChild, c2, err := withoutRight.Detach(Left)
		_ = withoutBoth
		return w.Node, leftChild, c.Add(c2), err
	}

	promoted, remainderOfRight, c2, err := extractRightmost(rightChild)
	total := c.Add(c2)
	if err != nil {
		return nil, nil, total, err
	}
	newParent, err := withoutRight.Attach(Right, remainderOfRight)
	if err != nil {
		return nil, nil, total, err
	}
	balanced, c3, err := MaybeBalance(newParent)
	total = total.Add(c3)
	return promoted, balanced, total, err
}
