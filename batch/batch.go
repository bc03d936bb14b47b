// Package batch implements the grove batch pipeline (spec §4.9): a
// vector of QualifiedGroveDbOp entries, executed in two phases —
// non-Merk preprocessing (grouping appends by (path,key), replaying them
// against the addressed non-Merk structure, and collapsing each group
// into one internal root-replacement op) followed by the Merk apply body
// (deepest subtrees first, one merk.Tree.Apply per path, propagating new
// roots upward to the grove root). Grounded on grove.propagate's
// upward-folding shape, generalized here to operate over a whole batch
// instead of one mutation at a time.
package batch

import (
	"bytes"
	"sort"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-go/nonmerk/commitment"
	"github.com/dashpay/grovedb-go/nonmerk/dense"
	"github.com/dashpay/grovedb-go/nonmerk/mmr"
	"github.com/dashpay/grovedb-go/storage"
)

// OpKind enumerates the op variants a QualifiedGroveDbOp can carry (spec
// §4.9): the Merk ops plus one append op per non-Merk structure, and the
// internal replacement op preprocessing emits.
type OpKind uint8

const (
	OpMerkPut OpKind = iota
	OpMerkDelete
	OpMmrTreeAppend
	OpBulkAppend
	OpDenseTreeInsert
	OpCommitmentTreeInsert
	opReplaceNonMerkTreeRoot // internal, never constructed by callers
)

func (k OpKind) isNonMerkAppend() bool {
	switch k {
	case OpMmrTreeAppend, OpBulkAppend, OpDenseTreeInsert, OpCommitmentTreeInsert:
		return true
	default:
		return false
	}
}

// Op is the payload of one QualifiedGroveDbOp (spec §4.9).
type Op struct {
	Kind OpKind

	// Element is the full element to write for OpMerkPut.
	Element element.Element

	// Value is the append payload for OpMmrTreeAppend/OpBulkAppend/
	// OpDenseTreeInsert.
	Value []byte

	// Cmx/Payload are OpCommitmentTreeInsert's commitment digest and
	// ciphertext (spec §4.8.4).
	Cmx     hash.Digest
	Payload []byte

	// template/newChildHash are populated by preprocessing when it
	// collapses a non-Merk group into opReplaceNonMerkTreeRoot; template
	// carries the structure's element with its meta fields already
	// updated, newChildHash its freshly computed combined child root.
	template     element.Element
	newChildHash hash.Digest
}

// QualifiedGroveDbOp pairs a path+key with the op to apply there (spec
// §4.9).
type QualifiedGroveDbOp struct {
	Path [][]byte
	Key  []byte
	Op   Op
}

// Apply executes ops against ctx: preprocessing every non-Merk append
// group, then applying the Merk apply body bottom-up and propagating new
// subtree roots to the grove root (spec §4.9).
func Apply(ctx storage.Context, ops []QualifiedGroveDbOp) (cost.Cost, error) {
	var total cost.Cost

	processed, c, err := preprocess(ctx, ops)
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	c, err = applyBody(ctx, processed)
	total = total.Add(c)
	return total, err
}

func qualifiedKey(path [][]byte, key []byte) string {
	var buf bytes.Buffer
	for _, seg := range path {
		buf.WriteByte(0)
		buf.Write(seg)
	}
	buf.WriteByte(1)
	buf.Write(key)
	return buf.String()
}

func pathKey(path [][]byte) string {
	var buf bytes.Buffer
	for _, seg := range path {
		buf.WriteByte(0)
		buf.Write(seg)
	}
	return buf.String()
}

// preprocess groups every non-Merk op by (path,key), replays each group
// against the addressed structure, and replaces the group with one
// opReplaceNonMerkTreeRoot op (spec §4.9 phase 1). Duplicate (path,key)
// entries are only legal among non-Merk append ops (spec §4.9 "Duplicate
// entries are permitted only for non-Merk append ops"); any other
// duplicate is rejected.
func preprocess(ctx storage.Context, ops []QualifiedGroveDbOp) ([]QualifiedGroveDbOp, cost.Cost, error) {
	var total cost.Cost

	type group struct {
		path [][]byte
		key  []byte
		ops  []Op
	}
	groups := map[string]*group{}
	var order []string
	var merkOps []QualifiedGroveDbOp
	seen := map[string]bool{}

	for _, op := range ops {
		qk := qualifiedKey(op.Path, op.Key)
		if op.Op.Kind.isNonMerkAppend() {
			g, ok := groups[qk]
			if !ok {
				g = &group{path: op.Path, key: op.Key}
				groups[qk] = g
				order = append(order, qk)
			}
			g.ops = append(g.ops, op.Op)
			continue
		}
		if seen[qk] {
			return nil, total, groveerr.ErrInvalidPayload
		}
		seen[qk] = true
		merkOps = append(merkOps, op)
	}

	result := append([]QualifiedGroveDbOp(nil), merkOps...)
	for _, qk := range order {
		g := groups[qk]
		replacement, c, err := applyNonMerkGroup(ctx, g.path, g.key, g.ops)
		total = total.Add(c)
		if err != nil {
			return nil, total, err
		}
		result = append(result, QualifiedGroveDbOp{Path: g.path, Key: g.key, Op: replacement})
	}
	return result, total, nil
}

// getElementAt opens the Merk at path and deserializes the element stored
// at key, mirroring grove.getElementAt: the batch pipeline resolves
// non-Merk structures and References independently of the grove façade
// so the two packages stay decoupled.
func getElementAt(ctx storage.Context, path [][]byte, key []byte) (element.Element, bool, cost.Cost, error) {
	tree, total, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	if err != nil {
		return element.Element{}, false, total, err
	}
	raw, _, found, c, err := tree.Get(key)
	total = total.Add(c)
	if err != nil {
		return element.Element{}, false, total, err
	}
	if !found {
		return element.Element{}, false, total, nil
	}
	e, err := element.Deserialize(raw)
	if err != nil {
		return element.Element{}, false, total, err
	}
	return e, true, total, nil
}

type ctxFetcher struct{ ctx storage.Context }

func (f ctxFetcher) GetElement(path [][]byte, key []byte) (element.Element, bool, cost.Cost, error) {
	return getElementAt(f.ctx, path, key)
}

// applyNonMerkGroup opens the data context for the non-Merk structure
// stored at path/key, replays ops against it in order, and returns the
// collapsed opReplaceNonMerkTreeRoot op carrying its new child hash and
// updated meta fields.
func applyNonMerkGroup(ctx storage.Context, path [][]byte, key []byte, ops []Op) (Op, cost.Cost, error) {
	var total cost.Cost

	elem, found, c, err := getElementAt(ctx, path, key)
	total = total.Add(c)
	if err != nil {
		return Op{}, total, err
	}
	if !found {
		return Op{}, total, groveerr.ErrPathNotFound
	}

	childPrefix := storage.DerivePrefix(append(append([][]byte{}, path...), key))

	switch elem.Kind {
	case element.MmrTree:
		m := mmr.Open(ctx, childPrefix, elem.MmrSize)
		for _, op := range ops {
			if op.Kind != OpMmrTreeAppend {
				return Op{}, total, groveerr.ErrInvalidPayload
			}
			c, err := m.Append(op.Value)
			total = total.Add(c)
			if err != nil {
				return Op{}, total, err
			}
		}
		root, c, err := m.Root()
		total = total.Add(c)
		if err != nil {
			return Op{}, total, err
		}
		updated := elem
		updated.MmrSize = m.Size()
		return Op{Kind: opReplaceNonMerkTreeRoot, template: updated, newChildHash: root}, total, nil

	case element.BulkAppendTree:
		b, err := bulkappend.Open(ctx, childPrefix, int(elem.ChunkPower), elem.TotalCount)
		if err != nil {
			return Op{}, total, err
		}
		for _, op := range ops {
			if op.Kind != OpBulkAppend {
				return Op{}, total, groveerr.ErrInvalidPayload
			}
			c, err := b.Append(op.Value)
			total = total.Add(c)
			if err != nil {
				return Op{}, total, err
			}
		}
		root, c, err := b.StateRoot()
		total = total.Add(c)
		if err != nil {
			return Op{}, total, err
		}
		updated := elem
		updated.TotalCount = b.TotalCount()
		return Op{Kind: opReplaceNonMerkTreeRoot, template: updated, newChildHash: root}, total, nil

	case element.DenseAppendOnlyFixedSizeTree:
		d, err := dense.Open(ctx, childPrefix, int(elem.DenseHeight), elem.DenseCount)
		if err != nil {
			return Op{}, total, err
		}
		for _, op := range ops {
			if op.Kind != OpDenseTreeInsert {
				return Op{}, total, groveerr.ErrInvalidPayload
			}
			c, err := d.Append(op.Value)
			total = total.Add(c)
			if err != nil {
				return Op{}, total, err
			}
		}
		root, c, err := d.Root()
		total = total.Add(c)
		if err != nil {
			return Op{}, total, err
		}
		updated := elem
		updated.DenseCount = uint16(d.Count())
		return Op{Kind: opReplaceNonMerkTreeRoot, template: updated, newChildHash: root}, total, nil

	case element.CommitmentTree:
		cm, c, err := commitment.Open(ctx, childPrefix, int(elem.ChunkPower), elem.TotalCount)
		total = total.Add(c)
		if err != nil {
			return Op{}, total, err
		}
		for _, op := range ops {
			if op.Kind != OpCommitmentTreeInsert {
				return Op{}, total, groveerr.ErrInvalidPayload
			}
			c, err := cm.Append(op.Cmx, op.Payload)
			total = total.Add(c)
			if err != nil {
				return Op{}, total, err
			}
		}
		root, c, err := cm.ChildHash()
		total = total.Add(c)
		if err != nil {
			return Op{}, total, err
		}
		updated := elem
		updated.TotalCount = cm.TotalCount()
		return Op{Kind: opReplaceNonMerkTreeRoot, template: updated, newChildHash: root}, total, nil

	default:
		return Op{}, total, groveerr.ErrNotSupported
	}
}

// pathWork accumulates the Merk batch entries destined for one subtree
// path as the apply body folds child results upward.
type pathWork struct {
	path    [][]byte
	entries []merk.BatchEntry
}

// applyBody is phase 2 of spec §4.9: traverse paths deepest-first,
// opening each Merk once, applying its batch, and propagating the new
// root into a synthesized entry on the parent path's pending work.
func applyBody(ctx storage.Context, ops []QualifiedGroveDbOp) (cost.Cost, error) {
	var total cost.Cost

	pending := map[string]*pathWork{}
	var queue []string

	for _, op := range ops {
		be, c, err := toBatchEntry(ctx, op)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
		k := pathKey(op.Path)
		pw, ok := pending[k]
		if !ok {
			pw = &pathWork{path: op.Path}
			pending[k] = pw
			queue = append(queue, k)
		}
		pw.entries = append(pw.entries, be)
	}

	for len(queue) > 0 {
		deepest := 0
		for i := 1; i < len(queue); i++ {
			if len(pending[queue[i]].path) > len(pending[queue[deepest]].path) {
				deepest = i
			}
		}
		k := queue[deepest]
		queue = append(queue[:deepest], queue[deepest+1:]...)
		pw := pending[k]
		delete(pending, k)

		sort.Slice(pw.entries, func(i, j int) bool { return bytes.Compare(pw.entries[i].Key, pw.entries[j].Key) < 0 })

		tree, c, err := merk.OpenTree(ctx, storage.DerivePrefix(pw.path))
		total = total.Add(c)
		if err != nil {
			return total, err
		}
		c, err = tree.Apply(pw.entries)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
		c, err = tree.Commit()
		total = total.Add(c)
		if err != nil {
			return total, err
		}

		if len(pw.path) == 0 {
			if err := storage.SaveRoot(ctx, tree.RootKey()); err != nil {
				return total, err
			}
			continue
		}

		parentPath := pw.path[:len(pw.path)-1]
		childKey := pw.path[len(pw.path)-1]

		parentElem, found, c, err := getElementAt(ctx, parentPath, childKey)
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
			updated.Count, updated.Sum = agg.Count, agg.Sum
		}

		elemBytes := element.Serialize(updated)
		vh := hash.CombinedValueHash(elemBytes, tree.RootHash())
		foldOp := merk.BatchEntry{Key: childKey, Op: merk.Op{Kind: merk.OpReplace, Value: elemBytes, Feature: updated.Feature(), ValueHash: vh}}

		pk := pathKey(parentPath)
		ppw, ok := pending[pk]
		if !ok {
			ppw = &pathWork{path: parentPath}
			pending[pk] = ppw
			queue = append(queue, pk)
		}
		ppw.entries = append(ppw.entries, foldOp)
	}
	return total, nil
}

// toBatchEntry converts one QualifiedGroveDbOp into the merk.BatchEntry
// that materializes it, resolving Reference/Tree-like/non-Merk value_hash
// overrides the same way grove.elementOp does for a single-op Put. A
// Reference op's chain resolution carries its own cost (storage reads
// across however many hops it follows), which must be charged here the
// same as grove.elementOp charges it for a single-op Put.
func toBatchEntry(ctx storage.Context, op QualifiedGroveDbOp) (merk.BatchEntry, cost.Cost, error) {
	switch op.Op.Kind {
	case OpMerkDelete:
		return merk.BatchEntry{Key: op.Key, Op: merk.Op{Kind: merk.OpDelete}}, cost.Cost{}, nil

	case opReplaceNonMerkTreeRoot:
		elemBytes := element.Serialize(op.Op.template)
		vh := hash.CombinedValueHash(elemBytes, op.Op.newChildHash)
		return merk.BatchEntry{Key: op.Key, Op: merk.Op{Kind: merk.OpReplace, Value: elemBytes, Feature: op.Op.template.Feature(), ValueHash: vh}}, cost.Cost{}, nil

	case OpMerkPut:
		e := op.Op.Element
		elemBytes := element.Serialize(e)
		feature := e.Feature()

		switch {
		case e.Kind == element.Reference:
			resolved, _, _, c, err := element.ResolveChain(ctxFetcher{ctx}, op.Path, op.Key, e.Ref)
			if err != nil {
				return merk.BatchEntry{}, c, err
			}
			vh := element.ReferenceValueHash(elemBytes, element.Serialize(resolved))
			return merk.BatchEntry{Key: op.Key, Op: merk.Op{Kind: merk.OpPutCombinedReference, Value: elemBytes, Feature: feature, ValueHash: vh}}, c, nil

		case e.Kind.IsTreeLike() || e.Kind.IsNonMerkTree():
			vh := hash.CombinedValueHash(elemBytes, hash.Zero)
			return merk.BatchEntry{Key: op.Key, Op: merk.Op{Kind: merk.OpPutCombinedReference, Value: elemBytes, Feature: feature, ValueHash: vh}}, cost.Cost{}, nil

		default:
			return merk.BatchEntry{Key: op.Key, Op: merk.Op{Kind: merk.OpPut, Value: elemBytes, Feature: feature}}, cost.Cost{}, nil
		}

	default:
		return merk.BatchEntry{}, cost.Cost{}, groveerr.ErrInvalidPayload
	}
}
